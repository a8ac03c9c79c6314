// Package secrets generates and verifies the shared secrets this service
// hands out: pairing credentials for capture devices and the decision
// engine's callback API key.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
)

// secretBytes sets the entropy of a generated secret. 32 bytes keeps the
// encoded token short enough for a scannable QR payload.
const secretBytes = 32

// Generate mints a random secret. The encoding is URL safe because pairing
// tokens ride in the capture URL's query string.
func Generate() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash derives the bcrypt digest stored in place of a secret. Only the
// long-lived engine key is kept this way; pairing tokens expire in minutes
// and store a plain SHA-256 digest instead.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a presented plaintext against a stored bcrypt hash.
// bcrypt's comparison is constant time, so verification leaks nothing
// about how close a guess came.
func Verify(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid secret")
		}
		return fmt.Errorf("verify secret: %w", err)
	}
	return nil
}
