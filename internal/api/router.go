package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/objectory/internal/capture"
	"github.com/erazemk/objectory/internal/metrics"
	"github.com/erazemk/objectory/internal/store"
	"github.com/erazemk/objectory/internal/viewer"
)

// Options holds the dependencies of the API router.
type Options struct {
	DB         *sql.DB
	Collection *store.Collection
	Hub        *viewer.Hub

	// ShareSecret signs public capture links valid for ShareTTL.
	ShareSecret string
	ShareTTL    time.Duration
	// PublicURL is the base of links handed out for sharing.
	PublicURL string

	Capture capture.Config
	Metrics *metrics.Metrics
}

// NewRouter creates the API router with all endpoints registered. It serves
// everything under /api/ plus the public /v/ capture links.
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()

	itemsHandler := &ItemsHandler{DB: opts.DB, Collection: opts.Collection}
	shareHandler := &ShareHandler{
		DB:         opts.DB,
		Collection: opts.Collection,
		Secret:     opts.ShareSecret,
		TTL:        opts.ShareTTL,
		PublicURL:  opts.PublicURL,
	}
	viewerHandler := NewViewerHandler(opts.DB, opts.Collection, opts.Hub, opts.Capture, opts.Metrics)
	capturesHandler := &CapturesHandler{DB: opts.DB}

	// Collection.
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.HandleFunc("POST /api/items", itemsHandler.Create)
	mux.HandleFunc("GET /api/items/{id}", itemsHandler.Get)
	mux.HandleFunc("DELETE /api/items/{id}", itemsHandler.Delete)
	mux.HandleFunc("GET /api/categories", itemsHandler.Categories)
	mux.HandleFunc("DELETE /api/categories/{name}", itemsHandler.DeleteCategory)

	// Posters.
	mux.HandleFunc("PUT /api/items/{id}/poster", itemsHandler.UploadPoster)
	mux.HandleFunc("GET /api/items/{id}/poster", itemsHandler.GetPoster)

	// Sharing.
	mux.HandleFunc("GET /api/items/{id}/share", shareHandler.ItemShare)
	mux.HandleFunc("GET /api/captures/{id}/link", shareHandler.CaptureLink)
	mux.HandleFunc("GET /v/{token}", shareHandler.Download)
	mux.HandleFunc("DELETE /v/{token}", shareHandler.Revoke)

	// Viewer sessions and capture.
	mux.HandleFunc("GET /api/viewer/ws", viewerHandler.Connect)
	mux.HandleFunc("GET /api/viewer/{session}", viewerHandler.Get)
	mux.HandleFunc("POST /api/viewer/{session}/capture", viewerHandler.StartCapture)
	mux.HandleFunc("DELETE /api/viewer/{session}/capture", viewerHandler.CancelCapture)

	// Finished captures.
	mux.HandleFunc("GET /api/items/{id}/captures", capturesHandler.List)
	mux.HandleFunc("GET /api/captures/{id}", capturesHandler.Get)
	mux.HandleFunc("GET /api/captures/{id}/video", capturesHandler.Video)

	return mux
}
