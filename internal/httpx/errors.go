package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chainguard-dev/clog"

	"github.com/haukened/onetimeview/internal/domain"
)

// writeError writes a JSON error body with given status code.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
	clog.FromContext(ctx).Debug("wrote error response", "status", code, "msg", msg)
}

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// mapServiceError maps domain/store/service errors to HTTP responses.
// Expired and never-existing secrets both surface as 404.
func (h *Handler) mapServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	log := clog.FromContext(ctx).With("domain", "http")
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Info("service error", "code", "not_found")
		h.writeError(ctx, w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		log.Info("service error", "code", "unauthorized")
		h.writeError(ctx, w, http.StatusUnauthorized, "password required or incorrect")
	case errors.Is(err, domain.ErrRangeNotSatisfied):
		log.Info("service error", "code", "range_not_satisfiable")
		h.writeError(ctx, w, http.StatusRequestedRangeNotSatisfiable, "range not satisfiable")
	case errors.Is(err, domain.ErrTooLarge):
		log.Warn("service error", "code", "too_large")
		h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "size exceeded")
	case errors.Is(err, domain.ErrInvalidRequest):
		log.Warn("service error", "code", "invalid_request")
		msg := "invalid request"
		var ie *domain.InputError
		if errors.As(err, &ie) {
			msg = ie.Msg
		}
		h.writeError(ctx, w, http.StatusBadRequest, msg)
	case errors.Is(err, domain.ErrDeliveryFailed):
		log.Error("service error", "code", "delivery_failed")
		h.writeError(ctx, w, http.StatusBadGateway, "content delivery failed")
	case errors.Is(err, domain.ErrStorageUnavailable):
		log.Error("service error", "code", "storage_unavailable")
		h.writeError(ctx, w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		// Do not log the raw error string to avoid leaking ids or paths.
		log.Error("unhandled service error", "code", "unhandled")
		h.writeError(ctx, w, http.StatusInternalServerError, "internal")
	}
}
