package httpx

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"

	"github.com/haukened/onetimeview/internal/app"
	"github.com/haukened/onetimeview/internal/domain"
)

// handleImage serves an image inline with its MIME type.
func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	h.serveContent(w, r, domain.KindImage, "inline")
}

// handleVideo serves a video with byte range support.
func (h *Handler) handleVideo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Accept-Ranges", "bytes")
	h.serveContent(w, r, domain.KindVideo, "inline")
}

// handleFile serves a file as an attachment under its original name.
func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	h.serveContent(w, r, domain.KindFile, "attachment")
}

// serveContent is the shared content path for every binary kind. The view has
// already been counted by the metadata read; closing the stream finishes it.
func (h *Handler) serveContent(w http.ResponseWriter, r *http.Request, kind domain.ContentKind, disposition string) {
	ctx := r.Context()
	req := app.FetchRequest{
		ID:       chi.URLParam(r, "id"),
		Kind:     kind,
		Password: r.URL.Query().Get("password"),
	}
	if kind == domain.KindVideo {
		req.Range = r.Header.Get("Range")
	}
	c, err := h.Service.FetchContent(ctx, req)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	defer c.Close()

	hdr := w.Header()
	ct := c.Secret.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	hdr.Set("Content-Type", ct)
	if cd := mime.FormatMediaType(disposition, map[string]string{"filename": c.Secret.FileName}); cd != "" {
		hdr.Set("Content-Disposition", cd)
	} else {
		hdr.Set("Content-Disposition", disposition)
	}
	hdr.Set("Content-Length", strconv.FormatInt(c.Length(), 10))
	status := http.StatusOK
	if c.Range != nil {
		hdr.Set("Content-Range", c.Range.ContentRange())
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	if _, err := io.CopyN(w, c, c.Length()); err != nil {
		clog.FromContext(ctx).With("domain", "http").Warn("content stream interrupted", "kind", kind, "error", err)
	}
}
