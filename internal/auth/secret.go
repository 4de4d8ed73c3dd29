package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

const terminalSecretBytes = 32

// ErrMalformedSecret is returned when a transport-encoded secret is not valid base64.
var ErrMalformedSecret = errors.New("malformed terminal secret")

// GenerateTerminalSecret returns a random secret and its base64 transport encoding.
func GenerateTerminalSecret() ([]byte, string, error) {
	raw := make([]byte, terminalSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTerminalSecret reverses the transport encoding of X-Terminal-Secret.
// Both padded and unpadded standard encodings are accepted.
func DecodeTerminalSecret(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrMalformedSecret
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, ErrMalformedSecret
		}
	}
	if len(raw) == 0 {
		return nil, ErrMalformedSecret
	}
	return raw, nil
}
