package httpx

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxVerifyBody bounds the JSON body of a password verification.
const maxVerifyBody = 4 << 10

type metadataResponse struct {
	ContentType    string `json:"content_type"`
	Content        string `json:"content,omitempty"`
	FileName       string `json:"file_name,omitempty"`
	MimeType       string `json:"mime_type,omitempty"`
	Size           int64  `json:"size,omitempty"`
	DownloadURL    string `json:"download_url,omitempty"`
	RemainingViews int    `json:"remaining_views"`
}

// handleReadSecret implements GET /api/secrets/{id}. Each successful call
// consumes one view.
func (h *Handler) handleReadSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	view, err := h.Service.ReadMetadata(ctx, id, r.URL.Query().Get("password"))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	resp := metadataResponse{
		ContentType:    view.Kind.String(),
		Content:        view.Content,
		FileName:       view.FileName,
		MimeType:       view.MimeType,
		Size:           view.Size,
		RemainingViews: view.RemainingViews,
	}
	if view.Kind.IsBinary() {
		resp.DownloadURL = h.baseURL(r) + "/api/" + view.Kind.String() + "/" + id
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVerifyPassword implements POST /api/secrets/{id}/verify. It never
// consumes a view.
func (h *Handler) handleVerifyPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxVerifyBody)).Decode(&body); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid json")
		return
	}
	ok, err := h.Service.VerifyPassword(ctx, chi.URLParam(r, "id"), body.Password)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Verified bool `json:"verified"`
	}{Verified: ok})
}
