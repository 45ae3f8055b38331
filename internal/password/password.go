// Package password hashes and verifies secret passwords with bcrypt.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/haukened/onetimeview/internal/domain"
)

// maxLen is bcrypt's input limit; longer passwords are rejected instead of
// being silently truncated.
const maxLen = 72

// ErrTooLong is returned by Hash for passwords over bcrypt's input limit.
var ErrTooLong = domain.InvalidInput("password exceeds 72 bytes")

// Hasher implements app.Hasher.
type Hasher struct {
	Cost int
}

// New returns a Hasher. A cost outside bcrypt's range falls back to
// bcrypt.DefaultCost.
func New(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h Hasher) Hash(password string) (string, error) {
	if len(password) > maxLen {
		return "", ErrTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether candidate matches hash. Malformed hashes never match.
func (h Hasher) Verify(candidate, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
