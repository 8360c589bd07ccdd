package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const (
	appIDSuffixLength = 16
	apiKeyLength      = 32
	secretKeyLength   = 64

	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewAppID generates a credential application id of the wire form
// "app_" + 16 random alphanumerics.
func NewAppID() (string, error) {
	suffix, err := randomAlphanumeric(appIDSuffixLength)
	if err != nil {
		return "", err
	}
	return "app_" + suffix, nil
}

// NewAPIKey generates a 32-character API key.
func NewAPIKey() (string, error) {
	return randomAlphanumeric(apiKeyLength)
}

// NewSecretKey generates a 64-character signing secret. The caller must
// expose it exactly once, at creation time.
func NewSecretKey() (string, error) {
	return randomAlphanumeric(secretKeyLength)
}

// MaskKey renders a key for listings: first and last four characters kept,
// the middle replaced. Keys shorter than eight characters are fully masked.
func MaskKey(key string) string {
	if len(key) < 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func randomAlphanumeric(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid key length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(keyAlphabet[n.Int64()])
	}

	return b.String(), nil
}
