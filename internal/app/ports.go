// Package app defines the application layer "ports" (interfaces) and simple
// data contracts that the core use-cases of onetimeview depend upon. It follows
// a hexagonal (ports & adapters) design: this package declares what the core
// needs, while adapter packages (SQLite/Redis/memory repositories, filesystem
// and object-store blobs, the HTTP layer, the janitor) provide concrete
// implementations. No SQL or network concerns belong here.
package app

import (
	"context"
	"io"
	"time"

	"github.com/haukened/onetimeview/internal/domain"
)

// Clock abstracts time to enable deterministic testing of expiry logic.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// Hasher is the password primitive. Verify must be free of side effects.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(candidate, hash string) bool
}

// BlobUpload describes the binary payload handed to SecretStore.Create.
type BlobUpload struct {
	Reader   io.Reader
	Size     int64
	FileName string
	Kind     domain.ContentKind
}

// SecretStore is the storage port for secrets. Implementations coordinate a
// repository (record index) with blob storage but those details are outside
// this interface.
type SecretStore interface {
	// Create uploads the blob (if any), then inserts the record. It fails
	// with domain.ErrStorageUnavailable when the upload fails and must not
	// leave a record pointing at a missing blob. The stored secret (with its
	// blob handle) is returned.
	Create(ctx context.Context, s domain.Secret, blob *BlobUpload) (domain.Secret, error)
	// Get returns the record or domain.ErrNotFound.
	Get(ctx context.Context, id string) (domain.Secret, error)
	// RecordView atomically increments the view counter if, at the moment of
	// the update, the secret is neither exhausted nor time expired. Losing
	// that race yields domain.ErrNotFound. The post-increment record is
	// returned.
	RecordView(ctx context.Context, id string, now time.Time) (domain.Secret, error)
	// OpenGraceWindow sets the absolute expiry to until.
	OpenGraceWindow(ctx context.Context, id string, until time.Time) error
	// OpenBlob streams length bytes of the blob starting at offset; a
	// negative length reads to the end.
	OpenBlob(ctx context.Context, handle string, offset, length int64) (io.ReadCloser, error)
}

// Reclaimer is the immediate deletion primitive owned by the janitor. Purge
// removes the record and its blob; purging an absent id is a no-op.
type Reclaimer interface {
	Purge(ctx context.Context, id string) error
}

// Recorder receives metric events. It is satisfied by *metrics.Manager.
type Recorder interface {
	Inc(name string, delta int64)
}
