package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/erazemk/objectory/internal/imaging"
	"github.com/erazemk/objectory/internal/model"
	"github.com/erazemk/objectory/internal/store"
)

type itemFormData struct {
	PageData
	Categories  []string
	Types       []model.ItemType
	Draft       model.Draft
	NewCategory string
}

// ItemNewPage handles GET /items/new.
func (s *Server) ItemNewPage(w http.ResponseWriter, r *http.Request) {
	s.renderItemForm(w, http.StatusOK, model.Draft{Type: model.ItemTypeSculpture}, "", "")
}

func (s *Server) renderItemForm(w http.ResponseWriter, status int, draft model.Draft, newCategory, errMsg string) {
	s.Templates.Render(w, status, "item_new.html", &itemFormData{
		PageData:    PageData{Title: "Register your piece", Error: errMsg},
		Categories:  s.Collection.Categories(),
		Types:       model.ItemTypes,
		Draft:       draft,
		NewCategory: newCategory,
	})
}

// ItemCreateSubmit handles POST /items.
func (s *Server) ItemCreateSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	// A new category typed by the user wins over the selected one.
	newCategory := strings.TrimSpace(r.FormValue("new_category"))
	category := r.FormValue("category")
	if newCategory != "" {
		category = newCategory
	}

	draft := model.Draft{
		Name:     r.FormValue("name"),
		Brand:    r.FormValue("brand"),
		Type:     model.ItemType(r.FormValue("type")),
		Category: category,
		GLBSrc:   strings.TrimSpace(r.FormValue("glb_src")),
	}
	if draft.GLBSrc == "" {
		draft.GLBSrc = HeroModel
	}
	draft.Normalize()
	draft.Description = model.DefaultDescription(draft.Name, draft.Brand, draft.Category)

	item, err := s.Collection.Add(r.Context(), draft)
	if errors.Is(err, model.ErrInvalidDraft) {
		s.renderItemForm(w, http.StatusBadRequest, draft, newCategory, "Please fill in the name, brand and category.")
		return
	}
	if err != nil {
		slog.Error("failed to add item", "error", err)
		s.renderItemForm(w, http.StatusInternalServerError, draft, newCategory, "The item could not be saved. Please try again.")
		return
	}

	slog.Info("item added", "id", item.ID, "name", item.Name)
	http.Redirect(w, r, "/gallery?added="+url.QueryEscape(item.Name), http.StatusSeeOther)
}

// ItemDetailPage handles GET /items/{id}. Unknown items get the not found
// page.
func (s *Server) ItemDetailPage(w http.ResponseWriter, r *http.Request) {
	item, ok := s.Collection.Get(r.PathValue("id"))
	if !ok {
		s.Templates.Render(w, http.StatusNotFound, "not_found.html", &PageData{Title: "Item not found"})
		return
	}
	s.renderDetail(w, r, http.StatusOK, item, "")
}

func (s *Server) renderDetail(w http.ResponseWriter, r *http.Request, status int, item model.Item, errMsg string) {
	captures, err := store.ListCaptures(r.Context(), s.DB, item.ID)
	if err != nil {
		slog.Error("failed to list captures", "item", item.ID, "error", err)
	}

	poster, _, err := store.GetPoster(r.Context(), s.DB, item.ID)
	if err != nil {
		slog.Error("failed to get poster", "item", item.ID, "error", err)
	}

	s.Templates.Render(w, status, "item_detail.html", &struct {
		PageData
		Item      model.Item
		HasPoster bool
		Captures  []model.VideoAsset
		ShareURL  string
	}{
		PageData:  PageData{Title: item.Name, Error: errMsg, Success: r.URL.Query().Get("saved")},
		Item:      item,
		HasPoster: poster != nil,
		Captures:  captures,
		ShareURL:  model.ShareIntentURL(model.ShareText(item.Name)),
	})
}

// ItemDeleteSubmit handles POST /items/{id}/delete.
func (s *Server) ItemDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.Collection.Delete(r.Context(), id)
	if err != nil {
		slog.Error("failed to delete item", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if deleted {
		if err := store.DeleteItemAssets(r.Context(), s.DB, id); err != nil {
			slog.Warn("failed to delete item assets", "id", id, "error", err)
		}
	}
	http.Redirect(w, r, "/gallery", http.StatusSeeOther)
}

// CategoryDeleteSubmit handles POST /categories/delete.
func (s *Server) CategoryDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	category := r.FormValue("category")

	removed, err := s.Collection.DeleteCategory(r.Context(), category)
	if err != nil {
		slog.Error("failed to delete category", "category", category, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ids := make([]string, 0, len(removed))
	for _, item := range removed {
		ids = append(ids, item.ID)
	}
	if err := store.DeleteItemAssets(r.Context(), s.DB, ids...); err != nil {
		slog.Warn("failed to delete item assets", "category", category, "error", err)
	}

	http.Redirect(w, r, "/gallery", http.StatusSeeOther)
}

// ItemPosterSubmit handles POST /items/{id}/poster.
func (s *Server) ItemPosterSubmit(w http.ResponseWriter, r *http.Request) {
	item, ok := s.Collection.Get(r.PathValue("id"))
	if !ok {
		s.Templates.Render(w, http.StatusNotFound, "not_found.html", &PageData{Title: "Item not found"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		s.renderDetail(w, r, http.StatusBadRequest, item, "The poster is too large.")
		return
	}

	file, _, err := r.FormFile("poster")
	if err != nil {
		s.renderDetail(w, r, http.StatusBadRequest, item, "Choose an image to upload.")
		return
	}
	defer file.Close()

	poster, err := imaging.ProcessPoster(file, imaging.ParseHexColor(item.Color))
	if err != nil {
		s.renderDetail(w, r, http.StatusBadRequest, item, "Posters must be JPEG, PNG or WebP images.")
		return
	}

	if err := store.SetPoster(r.Context(), s.DB, item.ID, poster.Data, poster.MIME); err != nil {
		slog.Error("failed to save poster", "item", item.ID, "error", err)
		s.renderDetail(w, r, http.StatusInternalServerError, item, "The poster could not be saved.")
		return
	}

	http.Redirect(w, r, "/items/"+item.ID+"?saved=Poster+updated", http.StatusSeeOther)
}

// ItemPosterGet handles GET /items/{id}/poster.
func (s *Server) ItemPosterGet(w http.ResponseWriter, r *http.Request) {
	data, mime, err := store.GetPoster(r.Context(), s.DB, r.PathValue("id"))
	if err != nil {
		slog.Error("failed to get poster", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if data == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(data); err != nil {
		slog.Error("failed to write poster response", "error", err)
	}
}
