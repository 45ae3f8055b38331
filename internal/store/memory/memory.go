// Package memory provides an in-process implementation of the store.Index port.
// It backs tests and single-node deployments that accept losing secrets on
// restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/haukened/onetimeview/internal/domain"
	"github.com/haukened/onetimeview/internal/store"
)

var _ store.Index = (*Index)(nil)

// Index keeps records in a map guarded by a single mutex. Every mutation runs
// under the write lock, which makes IncrementView and Delete atomic.
type Index struct {
	mu      sync.RWMutex
	secrets map[string]domain.Secret
}

// New returns an empty Index.
func New() *Index {
	return &Index{secrets: make(map[string]domain.Secret)}
}

// Insert stores a copy of s.
func (i *Index) Insert(_ context.Context, s domain.Secret) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.secrets[s.ID.String()] = copySecret(s)
	return nil
}

// Get returns a copy of the record.
func (i *Index) Get(_ context.Context, id string) (domain.Secret, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.secrets[id]
	if !ok {
		return domain.Secret{}, domain.ErrNotFound
	}
	return copySecret(s), nil
}

// IncrementView applies the view guard and the increment under one lock.
func (i *Index) IncrementView(_ context.Context, id string, now time.Time) (domain.Secret, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.secrets[id]
	if !ok || domain.IsExpired(s, now) {
		return domain.Secret{}, domain.ErrNotFound
	}
	s.ViewCount++
	i.secrets[id] = s
	return copySecret(s), nil
}

// SetExpiry overwrites the expiry of an existing record.
func (i *Index) SetExpiry(_ context.Context, id string, at time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.secrets[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.ExpiresAt = &at
	i.secrets[id] = s
	return nil
}

// Delete removes and returns the record.
func (i *Index) Delete(_ context.Context, id string) (domain.Secret, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.secrets[id]
	if !ok {
		return domain.Secret{}, false, nil
	}
	delete(i.secrets, id)
	return s, true, nil
}

// Expired returns copies of records that are exhausted or time expired.
func (i *Index) Expired(_ context.Context, now time.Time) ([]domain.Secret, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []domain.Secret
	for _, s := range i.secrets {
		if domain.IsExpired(s, now) {
			out = append(out, copySecret(s))
		}
	}
	return out, nil
}

// BlobHandles returns the handles of records that own a blob.
func (i *Index) BlobHandles(_ context.Context) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var handles []string
	for _, s := range i.secrets {
		if s.HasBlob() {
			handles = append(handles, s.BlobHandle)
		}
	}
	return handles, nil
}

// Len returns the number of stored records.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.secrets)
}

// copySecret detaches the ExpiresAt pointer from the stored record.
func copySecret(s domain.Secret) domain.Secret {
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		s.ExpiresAt = &t
	}
	return s
}
