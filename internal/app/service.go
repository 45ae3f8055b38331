// Package app contains the application orchestration layer for onetimeview. It
// wires the lifecycle rules in domain with the persistence ports.
package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/haukened/onetimeview/internal/domain"
	"github.com/haukened/onetimeview/internal/metrics"
)

// sniffLen is how many leading bytes are inspected to detect a blob's type.
const sniffLen = 3072

// purgeTimeout bounds a deferred deletion running after a response.
const purgeTimeout = 30 * time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

// Limits holds creation and lifecycle tunables resolved from config.
type Limits struct {
	MaxViewsCeiling       int
	DefaultExpiry         time.Duration
	MaxExpiry             time.Duration
	GraceWindow           time.Duration
	MaxTextLength         int
	MaxUploadBytes        int64
	MaxUploadBytesPremium int64
}

// Service orchestrates creation, password verification, metadata reads and
// content delivery. Deferred deletions run on background goroutines tracked by
// the service so shutdown can wait for them.
type Service struct {
	Store     SecretStore
	Reclaimer Reclaimer
	Hasher    Hasher
	Clock     Clock
	Metrics   Recorder // optional
	Limits    Limits

	pending sync.WaitGroup
}

// CreateInput is the validated request to create a secret. Blob and Size are
// only used for binary kinds; Content only for text.
type CreateInput struct {
	Kind        domain.ContentKind `validate:"required,oneof=text image video file"`
	Content     string
	Blob        io.Reader
	Size        int64  `validate:"gte=0"`
	FileName    string `validate:"required_unless=Kind text,max=255"`
	Password    string `validate:"max=72"`
	ExpiryHours *int
	MaxViews    *int
	Premium     bool
}

// CreateResult reports what was stored.
type CreateResult struct {
	ID          domain.SecretID
	Kind        domain.ContentKind
	ExpiresAt   *time.Time
	HasPassword bool
	MaxViews    int
}

// View is the metadata read payload.
type View struct {
	ID             domain.SecretID
	Kind           domain.ContentKind
	Content        string
	FileName       string
	MimeType       string
	Size           int64
	RemainingViews int
}

// formFields names CreateInput fields the way clients send them.
var formFields = map[string]string{
	"Kind":     "content_type",
	"FileName": "file name",
	"Size":     "file",
	"Password": "password",
}

// invalidField turns a validator failure into an InputError naming the first
// offending form field.
func invalidField(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		if name, ok := formFields[ve[0].Field()]; ok {
			return domain.InvalidInput("invalid " + name)
		}
	}
	return domain.InvalidInput("invalid input")
}

// Create validates the input, uploads any blob and persists the record. All
// validation happens before anything is written to storage.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if err := validate.Struct(in); err != nil {
		return CreateResult{}, invalidField(err)
	}
	now := s.Clock.Now()
	sec := domain.Secret{
		Kind:      in.Kind,
		MaxViews:  domain.ClampMaxViews(in.MaxViews, s.Limits.MaxViewsCeiling),
		Premium:   in.Premium,
		CreatedAt: now,
	}
	var upload *BlobUpload
	if in.Kind.IsBinary() {
		var err error
		if upload, err = s.prepareUpload(in, &sec); err != nil {
			return CreateResult{}, err
		}
	} else {
		if in.Blob != nil {
			return CreateResult{}, domain.InvalidInput("text secrets take no file")
		}
		sec.Content = domain.SanitizeText(in.Content, s.Limits.MaxTextLength)
		if sec.Content == "" {
			return CreateResult{}, domain.InvalidInput("content is required for text secrets")
		}
	}

	expiresAt, err := domain.ResolveExpiry(in.ExpiryHours, now, domain.ExpiryPolicy{Default: s.Limits.DefaultExpiry, Max: s.Limits.MaxExpiry}, in.Premium)
	if err != nil {
		return CreateResult{}, domain.InvalidInput("expiry not allowed")
	}
	sec.ExpiresAt = expiresAt

	if in.Password != "" {
		hash, hErr := s.Hasher.Hash(in.Password)
		if hErr != nil {
			return CreateResult{}, hErr
		}
		sec.PasswordHash = hash
	}

	id, err := domain.NewID()
	if err != nil {
		return CreateResult{}, err
	}
	sec.ID = id

	stored, err := s.Store.Create(ctx, sec, upload)
	if err != nil {
		return CreateResult{}, err
	}
	s.inc(metrics.CounterSecretsCreated)
	clog.FromContext(ctx).With("domain", "service").Info("secret created", "kind", stored.Kind, "max_views", stored.MaxViews, "has_password", stored.HasPassword())
	return CreateResult{
		ID:          stored.ID,
		Kind:        stored.Kind,
		ExpiresAt:   stored.ExpiresAt,
		HasPassword: stored.HasPassword(),
		MaxViews:    stored.MaxViews,
	}, nil
}

// prepareUpload checks the blob against the kind, the extension allowlist and
// the size tier, sniffs its leading bytes, and returns a reader that replays
// them.
func (s *Service) prepareUpload(in CreateInput, sec *domain.Secret) (*BlobUpload, error) {
	if in.Blob == nil || in.Size <= 0 {
		return nil, domain.InvalidInput("file is required")
	}
	extKind, ok := domain.KindForFile(in.FileName)
	if !ok {
		return nil, domain.InvalidInput("file type not allowed")
	}
	if extKind != in.Kind {
		return nil, domain.InvalidInput("file extension does not match content_type")
	}
	limit := s.Limits.MaxUploadBytes
	if in.Premium {
		limit = s.Limits.MaxUploadBytesPremium
	}
	if limit > 0 && in.Size > limit {
		return nil, domain.ErrTooLarge
	}
	head := make([]byte, min(in.Size, sniffLen))
	n, err := io.ReadFull(in.Blob, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, domain.InvalidInput("could not read upload")
	}
	head = head[:n]
	if detected := mimetype.Detect(head); !in.Kind.MatchesFamily(detected.String()) {
		return nil, domain.InvalidInput("file content does not match content_type")
	}
	sec.FileName = in.FileName
	sec.MimeType = domain.MimeForFile(in.FileName)
	sec.Size = in.Size
	return &BlobUpload{
		Reader:   io.MultiReader(bytes.NewReader(head), in.Blob),
		Size:     in.Size,
		FileName: in.FileName,
		Kind:     in.Kind,
	}, nil
}

// VerifyPassword checks a candidate without side effects. Time-expired secrets
// are NotFound; view exhaustion is deliberately not checked so the check works
// on what will be the final view.
func (s *Service) VerifyPassword(ctx context.Context, id, candidate string) (bool, error) {
	if _, err := domain.ParseID(id); err != nil {
		return false, domain.ErrNotFound
	}
	sec, err := s.Store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if domain.IsTimeExpired(sec, s.Clock.Now()) {
		return false, domain.ErrNotFound
	}
	if !sec.HasPassword() {
		return true, nil
	}
	return candidate != "" && s.Hasher.Verify(candidate, sec.PasswordHash), nil
}

// ReadMetadata serves one counted view. Expired secrets are deleted on sight.
// Password failures mutate nothing. Exhausted text is deleted before
// returning; exhausted binary secrets get a short grace window so the content
// fetch can complete the view.
func (s *Service) ReadMetadata(ctx context.Context, id, password string) (View, error) {
	log := clog.FromContext(ctx).With("domain", "service", "action", "read")
	if _, err := domain.ParseID(id); err != nil {
		return View{}, domain.ErrNotFound
	}
	sec, err := s.Store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	now := s.Clock.Now()
	if domain.IsExpired(sec, now) {
		s.purge(ctx, id)
		return View{}, domain.ErrNotFound
	}
	if err := s.checkPassword(sec, password); err != nil {
		return View{}, err
	}
	viewed, err := s.Store.RecordView(ctx, id, now)
	if err != nil {
		return View{}, err
	}
	s.inc(metrics.CounterSecretsViewed)

	switch domain.AfterView(viewed) {
	case domain.ActionDeleteNow:
		s.purge(ctx, id)
	case domain.ActionDeferDelete:
		if gErr := s.Store.OpenGraceWindow(ctx, id, now.Add(s.Limits.GraceWindow)); gErr != nil {
			// Without a grace window the record could stay exhausted forever.
			log.Error("open grace window", "error", gErr)
			s.purge(ctx, id)
			return View{}, gErr
		}
	}
	return View{
		ID:             viewed.ID,
		Kind:           viewed.Kind,
		Content:        viewed.Content,
		FileName:       viewed.FileName,
		MimeType:       viewed.MimeType,
		Size:           viewed.Size,
		RemainingViews: domain.RemainingViews(viewed),
	}, nil
}

// Wait blocks until deferred deletions scheduled so far have finished.
func (s *Service) Wait() { s.pending.Wait() }

func (s *Service) checkPassword(sec domain.Secret, candidate string) error {
	if !sec.HasPassword() {
		return nil
	}
	if candidate == "" || !s.Hasher.Verify(candidate, sec.PasswordHash) {
		return domain.ErrUnauthorized
	}
	return nil
}

// purge deletes synchronously on the request path. Failures are logged; the
// janitor reclaims whatever is left.
func (s *Service) purge(ctx context.Context, id string) {
	if err := s.Reclaimer.Purge(ctx, id); err != nil {
		clog.FromContext(ctx).With("domain", "service").Warn("purge failed", "error", err)
		return
	}
	s.inc(metrics.CounterSecretsBurned)
}

// deferPurge schedules deletion on its own goroutine, detached from the
// request's cancellation so a client disconnect cannot skip it.
func (s *Service) deferPurge(ctx context.Context, id string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), purgeTimeout)
		defer cancel()
		s.purge(pctx, id)
	}()
}

func (s *Service) inc(name string) {
	if s.Metrics != nil {
		s.Metrics.Inc(name, 1)
	}
}
