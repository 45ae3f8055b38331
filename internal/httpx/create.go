package httpx

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haukened/onetimeview/internal/app"
	"github.com/haukened/onetimeview/internal/domain"
)

// formMemory is how much of a multipart body is held in memory before the
// remainder spills to temporary files.
const formMemory = 8 << 20

// multipartOverhead allows for form fields and boundaries around the file.
const multipartOverhead = 1 << 20

type createResponse struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	ExpiresAt   *time.Time `json:"expires_at"`
	HasPassword bool       `json:"has_password"`
	ContentType string     `json:"content_type"`
	MaxViews    int        `json:"max_views"`
}

// handleCreateSecret implements POST /api/secrets. The body is a multipart
// form with content_type, content, password, expiry_hours, max_views and an
// optional file part.
func (h *Handler) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.MaxBody > 0 {
		if r.ContentLength > h.MaxBody+multipartOverhead {
			h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "size exceeded")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBody+multipartOverhead)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "size exceeded")
			return
		}
		h.writeError(ctx, w, http.StatusBadRequest, "invalid form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in, err := h.createInput(r)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Kind.IsBinary() {
		file, hdr, fErr := r.FormFile("file")
		if fErr != nil {
			h.writeError(ctx, w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()
		in.Blob, in.Size, in.FileName = file, hdr.Size, fileName(hdr)
	}

	res, err := h.Service.Create(ctx, in)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	id := res.ID.String()
	writeJSON(w, http.StatusCreated, createResponse{
		ID:          id,
		URL:         h.baseURL(r) + "/api/secrets/" + id,
		ExpiresAt:   res.ExpiresAt,
		HasPassword: res.HasPassword,
		ContentType: res.Kind.String(),
		MaxViews:    res.MaxViews,
	})
}

// createInput reads the scalar form fields into an app.CreateInput.
func (h *Handler) createInput(r *http.Request) (app.CreateInput, error) {
	kind, err := domain.ParseKind(strings.TrimSpace(r.FormValue("content_type")))
	if err != nil {
		return app.CreateInput{}, errors.New("invalid content_type")
	}
	expiry, err := optionalInt(r.FormValue("expiry_hours"))
	if err != nil {
		return app.CreateInput{}, errors.New("invalid expiry_hours")
	}
	maxViews, err := optionalInt(r.FormValue("max_views"))
	if err != nil {
		return app.CreateInput{}, errors.New("invalid max_views")
	}
	return app.CreateInput{
		Kind:        kind,
		Content:     r.FormValue("content"),
		Password:    r.FormValue("password"),
		ExpiryHours: expiry,
		MaxViews:    maxViews,
		Premium:     h.isPremium(r),
	}, nil
}

// optionalInt parses an integer form value; blank means unset.
func optionalInt(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// fileName strips any client supplied directory components.
func fileName(hdr *multipart.FileHeader) string {
	name := hdr.Filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}
