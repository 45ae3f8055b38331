// Package httpx contains the HTTP delivery layer for the onetimeview service.
// It maps HTTP requests to the application service while enforcing size
// limits, security headers, streaming semantics and error translation.
// Handlers are split across files (create.go, read.go, content.go, health.go,
// errors.go).
package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/haukened/onetimeview/internal/app"
)

// ServicePort abstracts the subset of app.Service used by the HTTP layer.
// It is satisfied by *app.Service in production and mocked in tests.
type ServicePort interface {
	Create(ctx context.Context, in app.CreateInput) (app.CreateResult, error)
	VerifyPassword(ctx context.Context, id, candidate string) (bool, error)
	ReadMetadata(ctx context.Context, id, password string) (app.View, error)
	FetchContent(ctx context.Context, req app.FetchRequest) (*app.Content, error)
}

// Handler wires HTTP endpoints to the application service.
// It is safe for concurrent use. Zero-value is not valid; construct via New.
type Handler struct {
	Service      ServicePort
	MaxBody      int64                       // largest accepted create request body
	Readiness    func(context.Context) error // optional readiness probe
	Metrics      http.Handler                // optional, mounted at /metrics
	PremiumToken string                      // empty disables premium
	BaseURL      string                      // public origin; derived from the request when empty
}

// New returns a configured Handler.
// svc: application service port implementation.
// maxBody: maximum allowed create body size (0 disables the extra check).
// readiness: optional probe function for /readyz (nil => always ready).
func New(svc ServicePort, maxBody int64, readiness func(context.Context) error) *Handler {
	return &Handler{Service: svc, MaxBody: maxBody, Readiness: readiness}
}

// Router constructs and returns an http.Handler with all routes mounted and
// security headers middleware applied.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(CorrelationIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(h.secureHeaders)

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/secrets", h.handleCreateSecret)
		r.Get("/secrets/{id}", h.handleReadSecret)
		r.Post("/secrets/{id}/verify", h.handleVerifyPassword)
		r.Get("/image/{id}", h.handleImage)
		r.Get("/video/{id}", h.handleVideo)
		r.Get("/file/{id}", h.handleFile)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(r.Context(), w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(r.Context(), w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// secureHeaders middleware adds standard security & cache control headers.
// Nothing served here may be cached: every response is tied to a view.
func (h *Handler) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; media-src 'self'; frame-ancestors 'none'; base-uri 'none'")
		next.ServeHTTP(w, r)
	})
}

// isPremium reports whether the request carries the configured premium token.
func (h *Handler) isPremium(r *http.Request) bool {
	if h.PremiumToken == "" {
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(h.PremiumToken)) == 1
}

// baseURL returns the public origin used for links in responses.
func (h *Handler) baseURL(r *http.Request) string {
	if h.BaseURL != "" {
		return strings.TrimRight(h.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd == "http" || fwd == "https" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
