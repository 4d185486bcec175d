package api

import (
	"bytes"
	"database/sql"
	"fmt"
	"mime"
	"net/http"

	"github.com/erazemk/objectory/internal/model"
	"github.com/erazemk/objectory/internal/store"
)

// CapturesHandler serves finished capture videos.
type CapturesHandler struct {
	DB *sql.DB
}

// List handles GET /api/items/{id}/captures.
func (h *CapturesHandler) List(w http.ResponseWriter, r *http.Request) {
	captures, err := store.ListCaptures(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list captures")
		return
	}
	if captures == nil {
		captures = []model.VideoAsset{}
	}
	jsonResponse(w, http.StatusOK, captures)
}

// Get handles GET /api/captures/{id}.
func (h *CapturesHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset, err := store.GetCapture(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get capture")
		return
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "capture not found")
		return
	}
	jsonResponse(w, http.StatusOK, asset)
}

// Video handles GET /api/captures/{id}/video. The video is sent as an
// attachment named after the item; ?inline=1 serves it for preview instead.
func (h *CapturesHandler) Video(w http.ResponseWriter, r *http.Request) {
	asset, err := store.GetCapture(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get capture")
		return
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "capture not found")
		return
	}
	serveVideo(w, r, asset, r.URL.Query().Get("inline") == "")
}

// serveVideo writes asset with range and conditional request support.
func serveVideo(w http.ResponseWriter, r *http.Request, asset *model.VideoAsset, attachment bool) {
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", asset.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": asset.Filename}))
	w.Header().Set("ETag", fmt.Sprintf(`"%s"`, asset.Digest))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, asset.Filename, asset.CreatedAt, bytes.NewReader(asset.Data))
}
