// Package store provides the concrete implementation of the application
// SecretStore port by composing lower-layer persistence ports (Index and
// BlobStorage). External packages should construct the store via New.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/haukened/onetimeview/internal/app"
	"github.com/haukened/onetimeview/internal/domain"
)

// Store composes an Index and BlobStorage to satisfy app.SecretStore. It also
// exposes the removal and reconciliation primitives used by the janitor.
type Store struct {
	index        Index
	blobs        BlobStorage
	clock        app.Clock
	orphanMinAge time.Duration
}

// New returns a Store. Blobs younger than orphanMinAge are never treated as
// orphans, which protects uploads whose record has not been inserted yet.
func New(index Index, blobs BlobStorage, clock app.Clock, orphanMinAge time.Duration) *Store {
	return &Store{index: index, blobs: blobs, clock: clock, orphanMinAge: orphanMinAge}
}

var _ app.SecretStore = (*Store)(nil)

// Create uploads the blob (when given) and then inserts the record. A failed
// insert removes the just-uploaded blob.
func (s *Store) Create(ctx context.Context, sec domain.Secret, blob *app.BlobUpload) (domain.Secret, error) {
	if s == nil || s.index == nil || s.clock == nil {
		return domain.Secret{}, errors.New("store not properly initialized")
	}
	if blob != nil {
		if s.blobs == nil {
			return domain.Secret{}, fmt.Errorf("%w: no blob storage configured", domain.ErrStorageUnavailable)
		}
		if blob.Size < 0 {
			return domain.Secret{}, errors.New("size must be non-negative")
		}
		handle, err := s.blobs.Put(ctx, blob.Reader, blob.Size, blob.FileName)
		if err != nil {
			return domain.Secret{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		sec.BlobHandle = handle
	}
	if err := s.index.Insert(ctx, sec); err != nil {
		if sec.HasBlob() {
			if dErr := s.blobs.Delete(ctx, sec.BlobHandle); dErr != nil {
				clog.FromContext(ctx).With("domain", "store").Warn("rollback blob", "handle", sec.BlobHandle, "error", dErr)
			}
		}
		return domain.Secret{}, fmt.Errorf("%w: insert: %v", domain.ErrStorageUnavailable, err)
	}
	return sec, nil
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (domain.Secret, error) {
	return s.index.Get(ctx, id)
}

// RecordView counts one view under the index's compare-and-set.
func (s *Store) RecordView(ctx context.Context, id string, now time.Time) (domain.Secret, error) {
	return s.index.IncrementView(ctx, id, now)
}

// OpenGraceWindow moves the record's expiry to until.
func (s *Store) OpenGraceWindow(ctx context.Context, id string, until time.Time) error {
	return s.index.SetExpiry(ctx, id, until)
}

// OpenBlob streams part or all of a blob.
func (s *Store) OpenBlob(ctx context.Context, handle string, offset, length int64) (io.ReadCloser, error) {
	if s.blobs == nil {
		return nil, errors.New("no blob storage configured")
	}
	return s.blobs.Open(ctx, handle, offset, length)
}

// Remove claims the record and then deletes its blob. Only the caller that
// claimed the record touches the blob, so concurrent removals are safe. A
// failed blob delete is logged and left to Reconcile. The bool reports
// whether this call removed the record.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	sec, ok, err := s.index.Delete(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	if sec.HasBlob() && s.blobs != nil {
		if bErr := s.blobs.Delete(ctx, sec.BlobHandle); bErr != nil {
			clog.FromContext(ctx).With("domain", "store").Warn("blob delete failed; left for reconcile", "handle", sec.BlobHandle, "error", bErr)
		}
	}
	return true, nil
}

// Expired lists records that are exhausted or time expired at now.
func (s *Store) Expired(ctx context.Context, now time.Time) ([]domain.Secret, error) {
	return s.index.Expired(ctx, now)
}

// Reconcile deletes blobs no record references. Blobs younger than the
// freshness guard are skipped. It returns the number of blobs removed.
func (s *Store) Reconcile(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, errors.New("store not properly initialized")
	}
	if s.blobs == nil {
		return 0, nil
	}
	blobs, err := s.blobs.List(ctx)
	if err != nil {
		return 0, err
	}
	handles, err := s.index.BlobHandles(ctx)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		referenced[h] = struct{}{}
	}
	cutoff := s.clock.Now().Add(-s.orphanMinAge)
	removed := 0
	for _, b := range blobs {
		if _, ok := referenced[b.Handle]; ok || b.ModTime.After(cutoff) {
			continue
		}
		if err := s.blobs.Delete(ctx, b.Handle); err != nil {
			clog.FromContext(ctx).With("domain", "store").Warn("orphan delete failed", "handle", b.Handle, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
