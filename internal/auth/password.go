package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatchedSecret is returned when a secret does not match its hash.
var ErrMismatchedSecret = errors.New("secret does not match hash")

//go:generate mockgen -source=password.go -destination=mocks/hasher.go -package=mocks SecretHasher

// SecretHasher hashes and verifies terminal secrets and staff passwords.
type SecretHasher interface {
	Hash(plain []byte) (string, error)
	Compare(hashed string, plain []byte) error
}

// BcryptHasher is the production SecretHasher.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher clamps cost into bcrypt's accepted range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

func (h BcryptHasher) Hash(plain []byte) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(plain, h.Cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h BcryptHasher) Compare(hashed string, plain []byte) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), plain); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedSecret
		}
		return err
	}
	return nil
}

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	return NewBcryptHasher(cost).Hash([]byte(password))
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return BcryptHasher{}.Compare(hashed, []byte(plain))
}
