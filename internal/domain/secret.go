// Package domain secret.go defines the Secret record governed by the lifecycle
// rules in lifecycle.go.
package domain

import "time"

// Secret is the sole persistent entity. All fields except ViewCount (and, for
// binary kinds, ExpiresAt when the grace window opens) are fixed at creation.
type Secret struct {
	ID           SecretID
	Kind         ContentKind
	Content      string // inline text, text kind only
	BlobHandle   string // storage adapter reference, binary kinds only
	FileName     string
	MimeType     string
	Size         int64 // blob length in bytes
	PasswordHash string
	ExpiresAt    *time.Time // nil means no time-based expiry
	ViewCount    int
	MaxViews     int
	Premium      bool
	CreatedAt    time.Time
}

// HasPassword reports whether the secret is password gated.
func (s Secret) HasPassword() bool { return s.PasswordHash != "" }

// HasBlob reports whether a blob must be removed alongside the record.
func (s Secret) HasBlob() bool { return s.BlobHandle != "" }
