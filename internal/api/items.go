package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/erazemk/objectory/internal/imaging"
	"github.com/erazemk/objectory/internal/model"
	"github.com/erazemk/objectory/internal/store"
)

// ItemsHandler handles the collection endpoints.
type ItemsHandler struct {
	DB         *sql.DB
	Collection *store.Collection
}

// List handles GET /api/items. The optional category query parameter
// filters the list; "All" or an empty value returns everything.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.Collection.Filter(r.URL.Query().Get("category"))

	raw, err := store.EncodeRecord(items)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	etag := fmt.Sprintf(`W/"%s"`, strconv.FormatUint(xxhash.Sum64String(raw), 16))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft model.Draft
	if err := decodeJSON(w, r, &draft); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Collection.Add(r.Context(), draft)
	if errors.Is(err, model.ErrInvalidDraft) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to add item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save item")
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.Collection.Get(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}. Deleting an unknown item is not an
// error.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := h.Collection.Delete(r.Context(), id)
	if err != nil {
		slog.Error("failed to delete item", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}
	if deleted {
		h.deleteAssets(r, id)
	}

	jsonResponse(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// Categories handles GET /api/categories.
func (h *ItemsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.Collection.Categories())
}

// DeleteCategory handles DELETE /api/categories/{name}.
func (h *ItemsHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	removed, err := h.Collection.DeleteCategory(r.Context(), name)
	if err != nil {
		slog.Error("failed to delete category", "category", name, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete category")
		return
	}

	ids := make([]string, 0, len(removed))
	for _, item := range removed {
		ids = append(ids, item.ID)
	}
	h.deleteAssets(r, ids...)

	jsonResponse(w, http.StatusOK, map[string]any{"deleted": len(removed)})
}

// deleteAssets drops posters and captures of removed items. The collection
// is already updated, so failures here only leave orphaned rows behind.
func (h *ItemsHandler) deleteAssets(r *http.Request, ids ...string) {
	if err := store.DeleteItemAssets(r.Context(), h.DB, ids...); err != nil {
		slog.Warn("failed to delete item assets", "items", ids, "error", err)
	}
}

// UploadPoster handles PUT /api/items/{id}/poster.
func (h *ItemsHandler) UploadPoster(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	item, ok := h.Collection.Get(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("poster")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "poster file required")
		return
	}
	defer file.Close()

	poster, err := imaging.ProcessPoster(file, imaging.ParseHexColor(item.Color))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetPoster(r.Context(), h.DB, id, poster.Data, poster.MIME); err != nil {
		slog.Error("failed to save poster", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save poster")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"url":    PosterURL(id),
		"width":  poster.Width,
		"height": poster.Height,
	})
}

// GetPoster handles GET /api/items/{id}/poster.
func (h *ItemsHandler) GetPoster(w http.ResponseWriter, r *http.Request) {
	data, mime, err := store.GetPoster(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get poster")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no poster")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// PosterURL is the path an uploaded poster of item id is served from.
func PosterURL(id string) string {
	return "/api/items/" + id + "/poster"
}
