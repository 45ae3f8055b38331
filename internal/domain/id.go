// Package domain id.go contains functions to generate, parse, and validate IDs
package domain

import (
	"crypto/rand"
	"encoding/base64"
)

// idBytes is the amount of randomness behind a SecretID (96 bits).
const idBytes = 12

// IDLength is the encoded length of a SecretID.
const IDLength = 16

// SecretID is the canonical identifier for a stored secret.
// It is a 96-bit random value encoded as 16 unpadded base64url characters,
// which keeps share links short and URL-safe.
type SecretID string

// NewID generates a new cryptographically random SecretID.
func NewID() (SecretID, error) {
	var b [idBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return SecretID(base64.RawURLEncoding.EncodeToString(b[:])), nil
}

// ParseID validates s and returns it as a SecretID. It enforces:
// - length == 16
// - only base64url characters [A-Za-z0-9_-]
// Returns ErrInvalidID on failure.
func ParseID(s string) (SecretID, error) {
	if !isValidID(s) {
		return "", ErrInvalidID
	}
	return SecretID(s), nil
}

// String returns the string form of the SecretID.
func (id SecretID) String() string { return string(id) }

// Valid reports whether the ID satisfies the same rules as ParseID.
func (id SecretID) Valid() bool { return isValidID(string(id)) }

// isValidID performs validation without allocating errors.
func isValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
