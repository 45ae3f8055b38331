// Package storetest holds a conformance suite shared by the store.Index
// adapters.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haukened/onetimeview/internal/domain"
	"github.com/haukened/onetimeview/internal/store"
)

// NewSecret returns an active text secret with a fresh id.
func NewSecret(t *testing.T, now time.Time, maxViews int) domain.Secret {
	t.Helper()
	id, err := domain.NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	exp := now.Add(time.Hour).Truncate(time.Millisecond)
	return domain.Secret{
		ID:        id,
		Kind:      domain.KindText,
		Content:   "hello",
		ExpiresAt: &exp,
		MaxViews:  maxViews,
		CreatedAt: now.Truncate(time.Millisecond),
	}
}

// RunIndex exercises the store.Index contract. newIndex must return an empty
// index for every call.
func RunIndex(t *testing.T, newIndex func(t *testing.T) store.Index) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("insert and get", func(t *testing.T) {
		ix := newIndex(t)
		s := NewSecret(t, now, 3)
		s.PasswordHash = "hash"
		s.Premium = true
		if err := ix.Insert(ctx, s); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		got, err := ix.Get(ctx, s.ID.String())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != s.ID || got.Content != s.Content || got.MaxViews != 3 || got.PasswordHash != "hash" || !got.Premium {
			t.Fatalf("record mismatch: %+v", got)
		}
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(*s.ExpiresAt) {
			t.Fatalf("expiry mismatch: %v vs %v", got.ExpiresAt, s.ExpiresAt)
		}
		if _, err := ix.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("nil expiry round trips", func(t *testing.T) {
		ix := newIndex(t)
		s := NewSecret(t, now, 1)
		s.ExpiresAt = nil
		if err := ix.Insert(ctx, s); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		got, err := ix.Get(ctx, s.ID.String())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ExpiresAt != nil {
			t.Fatalf("expected nil expiry, got %v", got.ExpiresAt)
		}
	})

	t.Run("increment guards", func(t *testing.T) {
		ix := newIndex(t)
		s := NewSecret(t, now, 2)
		_ = ix.Insert(ctx, s)
		for want := 1; want <= 2; want++ {
			got, err := ix.IncrementView(ctx, s.ID.String(), now)
			if err != nil {
				t.Fatalf("IncrementView %d: %v", want, err)
			}
			if got.ViewCount != want {
				t.Fatalf("view count %d want %d", got.ViewCount, want)
			}
		}
		if _, err := ix.IncrementView(ctx, s.ID.String(), now); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("exhausted increment: expected ErrNotFound, got %v", err)
		}
		got, _ := ix.Get(ctx, s.ID.String())
		if got.ViewCount != 2 {
			t.Fatalf("counter moved past max: %d", got.ViewCount)
		}

		late := NewSecret(t, now, 5)
		_ = ix.Insert(ctx, late)
		if _, err := ix.IncrementView(ctx, late.ID.String(), now.Add(2*time.Hour)); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expired increment: expected ErrNotFound, got %v", err)
		}
		if _, err := ix.IncrementView(ctx, "missing", now); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("missing increment: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent increments never exceed max", func(t *testing.T) {
		ix := newIndex(t)
		s := NewSecret(t, now, 1)
		_ = ix.Insert(ctx, s)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for n := 0; n < 16; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := ix.IncrementView(ctx, s.ID.String(), now); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins.Load())
		}
	})

	t.Run("set expiry", func(t *testing.T) {
		ix := newIndex(t)
		s := NewSecret(t, now, 1)
		_ = ix.Insert(ctx, s)
		until := now.Add(5 * time.Minute).Truncate(time.Millisecond)
		if err := ix.SetExpiry(ctx, s.ID.String(), until); err != nil {
			t.Fatalf("SetExpiry: %v", err)
		}
		got, _ := ix.Get(ctx, s.ID.String())
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(until) {
			t.Fatalf("expiry not updated: %v", got.ExpiresAt)
		}
		if err := ix.SetExpiry(ctx, "missing", until); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete claims once", func(t *testing.T) {
		ix := newIndex(t)
		s := NewSecret(t, now, 1)
		s.Kind = domain.KindImage
		s.Content = ""
		s.BlobHandle = "blob-handle"
		_ = ix.Insert(ctx, s)
		var claims atomic.Int32
		var wg sync.WaitGroup
		for n := 0; n < 8; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, ok, err := ix.Delete(ctx, s.ID.String())
				if err != nil {
					t.Errorf("Delete: %v", err)
					return
				}
				if ok {
					claims.Add(1)
					if got.BlobHandle != "blob-handle" {
						t.Errorf("claimed record lost blob handle: %+v", got)
					}
				}
			}()
		}
		wg.Wait()
		if claims.Load() != 1 {
			t.Fatalf("expected exactly one claim, got %d", claims.Load())
		}
		if _, err := ix.Get(ctx, s.ID.String()); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected record gone, got %v", err)
		}
	})

	t.Run("expired and blob handles", func(t *testing.T) {
		ix := newIndex(t)
		active := NewSecret(t, now, 2)
		active.Kind = domain.KindFile
		active.Content = ""
		active.BlobHandle = "active-blob"
		exhausted := NewSecret(t, now, 1)
		exhausted.ViewCount = 1
		old := NewSecret(t, now, 1)
		past := now.Add(-time.Minute).Truncate(time.Millisecond)
		old.ExpiresAt = &past
		for _, s := range []domain.Secret{active, exhausted, old} {
			if err := ix.Insert(ctx, s); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		expired, err := ix.Expired(ctx, now)
		if err != nil {
			t.Fatalf("Expired: %v", err)
		}
		got := map[domain.SecretID]bool{}
		for _, s := range expired {
			got[s.ID] = true
		}
		if len(expired) != 2 || !got[exhausted.ID] || !got[old.ID] {
			t.Fatalf("unexpected expired set: %+v", expired)
		}
		handles, err := ix.BlobHandles(ctx)
		if err != nil {
			t.Fatalf("BlobHandles: %v", err)
		}
		if len(handles) != 1 || handles[0] != "active-blob" {
			t.Fatalf("unexpected handles: %v", handles)
		}
	})
}
