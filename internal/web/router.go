package web

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/objectory/internal/store"
	webembed "github.com/erazemk/objectory/web"
)

// NewRouter creates the web page router with all page routes registered.
func NewRouter(db *sql.DB, collection *store.Collection) (http.Handler, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		DB:         db,
		Collection: collection,
		Templates:  templates,
	}

	mux := http.NewServeMux()

	// Static assets.
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(webembed.StaticFS()))))

	mux.HandleFunc("GET /{$}", s.Home)
	mux.HandleFunc("GET /gallery", s.GalleryPage)
	mux.HandleFunc("GET /pricing", s.PricingPage)

	mux.HandleFunc("GET /items/new", s.ItemNewPage)
	mux.HandleFunc("POST /items", s.ItemCreateSubmit)
	mux.HandleFunc("GET /items/{id}", s.ItemDetailPage)
	mux.HandleFunc("POST /items/{id}/delete", s.ItemDeleteSubmit)
	mux.HandleFunc("POST /items/{id}/poster", s.ItemPosterSubmit)
	mux.HandleFunc("GET /items/{id}/poster", s.ItemPosterGet)

	mux.HandleFunc("POST /categories/delete", s.CategoryDeleteSubmit)

	mux.HandleFunc("/", s.NotFound)

	return mux, nil
}
