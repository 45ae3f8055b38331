package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/chainguard-dev/clog"

	"github.com/haukened/onetimeview/internal/domain"
	"github.com/haukened/onetimeview/internal/metrics"
)

// FetchRequest asks for the bytes of a binary secret.
type FetchRequest struct {
	ID       string
	Kind     domain.ContentKind
	Password string
	Range    string // raw Range header, honored for video only
}

// Content is an open blob stream. Closing it releases the body and, when the
// fetch completed the final view, schedules deletion of the secret.
type Content struct {
	Secret domain.Secret
	Body   io.ReadCloser
	Range  *domain.ByteRange // nil for a full response

	finalize func()
	once     sync.Once
}

// Read reads from the underlying blob stream.
func (c *Content) Read(p []byte) (int, error) { return c.Body.Read(p) }

// Length returns the number of bytes the response carries.
func (c *Content) Length() int64 {
	if c.Range != nil {
		return c.Range.Length()
	}
	return c.Secret.Size
}

// WillDelete reports whether closing the content deletes the secret.
func (c *Content) WillDelete() bool { return c.finalize != nil }

// Close closes the body and fires the deletion at most once, whether or not
// the body was read in full.
func (c *Content) Close() error {
	err := c.Body.Close()
	c.once.Do(func() {
		if c.finalize != nil {
			c.finalize()
		}
	})
	return err
}

// FetchContent opens the blob of a servable binary secret. It never increments
// the view counter. When the secret is exhausted, deletion is scheduled for
// when the returned Content is closed, for every range. If the blob cannot be
// opened, an exhausted secret is deleted anyway.
func (s *Service) FetchContent(ctx context.Context, req FetchRequest) (*Content, error) {
	log := clog.FromContext(ctx).With("domain", "service", "action", "fetch")
	if _, err := domain.ParseID(req.ID); err != nil {
		return nil, domain.ErrNotFound
	}
	sec, err := s.Store.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !domain.IsServable(sec, s.Clock.Now()) {
		return nil, domain.ErrNotFound
	}
	if err := s.checkPassword(sec, req.Password); err != nil {
		return nil, err
	}
	if sec.Kind != req.Kind || !sec.HasBlob() {
		return nil, domain.InvalidInput("wrong content type for this endpoint")
	}

	var rng *domain.ByteRange
	offset, length := int64(0), int64(-1)
	if sec.Kind == domain.KindVideo && req.Range != "" {
		r, rErr := domain.ParseRange(req.Range, sec.Size)
		if rErr != nil {
			return nil, rErr
		}
		rng = &r
		offset, length = r.Start, r.Length()
	}

	body, err := s.Store.OpenBlob(ctx, sec.BlobHandle, offset, length)
	if err != nil {
		log.Error("open blob", "error", err)
		if domain.IsExhausted(sec) {
			s.deferPurge(ctx, req.ID)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	s.inc(metrics.CounterContentServed)

	c := &Content{Secret: sec, Body: body, Range: rng}
	if domain.IsExhausted(sec) {
		id := req.ID
		c.finalize = func() { s.deferPurge(ctx, id) }
	}
	return c, nil
}
