package web

import (
	"net/http"

	"github.com/erazemk/objectory/internal/model"
	"github.com/erazemk/objectory/internal/store"
)

// HeroModel is the model shown on the landing page.
const HeroModel = "https://modelviewer.dev/shared-assets/models/Astronaut.glb"

// Home handles GET /.
func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, http.StatusOK, "home.html", &struct {
		PageData
		HeroModel  string
		Items      int
		Categories int
	}{
		PageData:   PageData{Title: "Objectory"},
		HeroModel:  HeroModel,
		Items:      len(s.Collection.List()),
		Categories: len(s.Collection.Categories()),
	})
}

// GalleryPage handles GET /gallery. The category query parameter selects a
// tab; unknown categories simply show an empty grid.
func (s *Server) GalleryPage(w http.ResponseWriter, r *http.Request) {
	active := r.URL.Query().Get("category")
	if active == "" {
		active = store.AllCategories
	}

	tabs := append([]string{store.AllCategories}, s.Collection.Categories()...)

	var success string
	if added := r.URL.Query().Get("added"); added != "" {
		success = added + " was added to the gallery."
	}

	s.Templates.Render(w, http.StatusOK, "gallery.html", &struct {
		PageData
		Categories []string
		Active     string
		Items      []model.Item
	}{
		PageData:   PageData{Title: "Gallery", Success: success},
		Categories: tabs,
		Active:     active,
		Items:      s.Collection.Filter(active),
	})
}

type plan struct {
	Title       string
	Price       string
	Description string
	Features    []string
	Recommended bool
}

var plans = []plan{
	{
		Title:       "Standard",
		Price:       "¥0",
		Description: "Perfect for individuals starting their museum journey.",
		Features: []string{
			"Up to 10 Museum Items",
			"Standard 3D Visualizer",
			"Classic Porcelain Background",
			"Basic SNS Sharing",
		},
	},
	{
		Title:       "Pro",
		Price:       "¥2,900",
		Description: "The ultimate studio for serious collectors and curators.",
		Features: []string{
			"Unlimited Museum Items",
			"AI-Powered 3D Modeling API",
			"Custom Interactive Exhibits",
			"Pro Cinematic Camera Paths",
			"Priority Rendering Server",
			"Curator's Verified Profile",
		},
		Recommended: true,
	},
}

// PricingPage handles GET /pricing. It is static marketing content.
func (s *Server) PricingPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, http.StatusOK, "pricing.html", &struct {
		PageData
		Plans []plan
	}{
		PageData: PageData{Title: "Pricing"},
		Plans:    plans,
	})
}

// NotFound renders the not found page for unknown paths.
func (s *Server) NotFound(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, http.StatusNotFound, "not_found.html", &PageData{Title: "Not found"})
}
