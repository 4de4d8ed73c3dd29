package auth

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/access-service/internal/domain"
)

func TestTerminalSecretRoundTrip(t *testing.T) {
	raw, encoded, err := GenerateTerminalSecret()
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	decoded, err := DecodeTerminalSecret(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, decoded))

	unpadded := base64.RawStdEncoding.EncodeToString(raw)
	decoded, err = DecodeTerminalSecret(unpadded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, decoded))
}

func TestDecodeTerminalSecretRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not base64!!", "@@@@"} {
		_, err := DecodeTerminalSecret(in)
		assert.ErrorIs(t, err, ErrMalformedSecret, in)
	}
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hashed, err := h.Hash([]byte("s3cret"))
	require.NoError(t, err)

	require.NoError(t, h.Compare(hashed, []byte("s3cret")))
	assert.ErrorIs(t, h.Compare(hashed, []byte("wrong")), ErrMismatchedSecret)
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).Cost)
	assert.Equal(t, 12, NewBcryptHasher(12).Cost)
}

func TestTokenManagerRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 5)
	staff := &domain.StaffMember{ID: "staff-1", TenantID: "tenant-1", Role: domain.StaffRoleAdmin}

	token, exp, err := tm.GenerateToken(staff)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.StaffID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, domain.StaffRoleAdmin, claims.Role)

	_, err = NewTokenManager("other-secret", 5).ParseToken(token)
	assert.Error(t, err)
}
