// Package store defines internal persistence adapter ports used by the
// higher-level SecretStore implementation. These ports isolate the record
// index (SQLite, Redis or memory) and blob storage (filesystem or object
// store) so they can be tested and evolved independently. Callers outside this
// package interact only with the app.SecretStore implementation and the
// janitor-facing methods of Store.
package store

import (
	"context"
	"io"
	"time"

	"github.com/haukened/onetimeview/internal/domain"
)

// Index abstracts the secret record repository. Every method that targets a
// single id returns domain.ErrNotFound when the record is absent.
type Index interface {
	Insert(ctx context.Context, s domain.Secret) error
	Get(ctx context.Context, id string) (domain.Secret, error)
	// IncrementView is a compare-and-set: the counter moves only if, at the
	// moment of the update, ViewCount < MaxViews and the expiry has not passed.
	// A lost race returns domain.ErrNotFound.
	IncrementView(ctx context.Context, id string, now time.Time) (domain.Secret, error)
	SetExpiry(ctx context.Context, id string, at time.Time) error
	// Delete removes the record and returns it. Exactly one concurrent caller
	// observes ok=true for a given id.
	Delete(ctx context.Context, id string) (s domain.Secret, ok bool, err error)
	// Expired returns records that are exhausted or past their expiry at now.
	Expired(ctx context.Context, now time.Time) ([]domain.Secret, error)
	// BlobHandles returns the handles of every record that owns a blob.
	BlobHandles(ctx context.Context) ([]string, error)
}

// BlobStorage abstracts binary payload persistence.
type BlobStorage interface {
	// Put stores exactly size bytes from r and returns the new handle.
	Put(ctx context.Context, r io.Reader, size int64, fileName string) (string, error)
	// Open streams length bytes starting at offset; a negative length reads
	// to the end of the blob.
	Open(ctx context.Context, handle string, offset, length int64) (io.ReadCloser, error)
	// Delete removes a blob. Deleting an absent handle is not an error.
	Delete(ctx context.Context, handle string) error
	// List returns every blob present in storage.
	List(ctx context.Context) ([]BlobInfo, error)
}

// BlobInfo describes a stored blob for orphan reconciliation.
type BlobInfo struct {
	Handle  string
	ModTime time.Time
}
