package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// passwordHashCost is deliberately above the bcrypt default; account
// credentials are long-lived and hashing happens off the hot path.
const passwordHashCost = 14

// HashPassword derives the stored credential hash for an account.
// Empty passwords are rejected before they ever reach the hasher.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ComparePasswordAndHash checks a cleartext password against a stored
// hash. A mismatch maps to ErrMismatchedHashAndPassword so callers can
// fold it into the uniform credential failure.
func ComparePasswordAndHash(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatchedHashAndPassword
	}
	return err
}

// RandomPasswordHash mints a hash for a password nobody knows. Used
// when provisioning externally asserted accounts, which must never be
// able to log in with a password.
func RandomPasswordHash() string {
	var seed [24]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(err)
	}

	h, err := HashPassword(base64.RawURLEncoding.EncodeToString(seed[:]))
	if err != nil {
		panic(err)
	}
	return h
}
