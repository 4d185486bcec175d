package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/erazemk/objectory/internal/capture"
	"github.com/erazemk/objectory/internal/metrics"
	"github.com/erazemk/objectory/internal/model"
	"github.com/erazemk/objectory/internal/store"
	"github.com/erazemk/objectory/internal/viewer"
)

// saveTimeout bounds storing a finished capture, which may happen after the
// viewer page has gone away.
const saveTimeout = 30 * time.Second

// ViewerHandler connects viewer pages and runs captures on them. Every
// connected page gets its own capture controller.
type ViewerHandler struct {
	DB         *sql.DB
	Collection *store.Collection
	Hub        *viewer.Hub
	Capture    capture.Config
	Metrics    *metrics.Metrics

	mu          sync.Mutex
	controllers map[string]*capture.Controller
}

// NewViewerHandler creates a ViewerHandler.
func NewViewerHandler(db *sql.DB, c *store.Collection, hub *viewer.Hub, cfg capture.Config, m *metrics.Metrics) *ViewerHandler {
	return &ViewerHandler{
		DB:          db,
		Collection:  c,
		Hub:         hub,
		Capture:     cfg,
		Metrics:     m,
		controllers: make(map[string]*capture.Controller),
	}
}

// sessionNotice is the first message a page receives.
type sessionNotice struct {
	Type    string     `json:"type"`
	Session string     `json:"session"`
	Item    model.Item `json:"item"`
}

// captureNotice forwards capture events to the page.
type captureNotice struct {
	Type     string        `json:"type"`
	Event    capture.Event `json:"event"`
	VideoURL string        `json:"videoUrl,omitempty"`
}

type viewerState struct {
	Session       string        `json:"session"`
	ItemID        string        `json:"itemId"`
	Status        viewer.Status `json:"status"`
	AutoRotate    bool          `json:"autoRotate"`
	RotationSpeed int           `json:"rotationSpeed"`
	Interactive   bool          `json:"interactive"`
	Capture       capture.State `json:"capture"`
	LastEvent     capture.Event `json:"lastEvent"`
}

// Connect handles GET /api/viewer/ws?item={id}. It upgrades to WebSocket,
// loads the item's model into the page and serves the session until the
// page goes away.
func (h *ViewerHandler) Connect(w http.ResponseWriter, r *http.Request) {
	item, ok := h.Collection.Get(r.URL.Query().Get("item"))
	if !ok {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	s, err := h.Hub.Accept(w, r, item.ID)
	if err != nil {
		// The upgrader has already replied.
		slog.Warn("viewer upgrade failed", "item", item.ID, "error", err)
		return
	}

	ctrl := capture.NewController(s.Viewer, s.Viewer, h.Capture, capture.WithMetrics(h.Metrics))
	ctrl.Subscribe(h.forward(s))

	h.mu.Lock()
	h.controllers[s.ID] = ctrl
	h.mu.Unlock()

	defer func() {
		ctrl.Cancel()
		h.mu.Lock()
		delete(h.controllers, s.ID)
		h.mu.Unlock()
		h.Hub.Remove(s.ID)
	}()

	if err := s.Viewer.Notify(sessionNotice{Type: "session", Session: s.ID, Item: item}); err != nil {
		slog.Warn("viewer went away before loading", "session", s.ID, "error", err)
		return
	}
	if err := s.Viewer.Load(s.Context(), item.GLBSrc, h.posterFor(r.Context(), item)); err != nil {
		slog.Warn("failed to send model to viewer", "session", s.ID, "error", err)
		return
	}

	if err := s.Viewer.Serve(s.Context()); err != nil {
		slog.Warn("viewer session ended", "session", s.ID, "error", err)
	}
}

// Get handles GET /api/viewer/{session}.
func (h *ViewerHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ctrl, ok := h.session(r.PathValue("session"))
	if !ok {
		jsonError(w, http.StatusNotFound, "viewer session not found")
		return
	}

	jsonResponse(w, http.StatusOK, viewerState{
		Session:       s.ID,
		ItemID:        s.ItemID,
		Status:        s.Viewer.Status(),
		AutoRotate:    s.Viewer.AutoRotate(),
		RotationSpeed: s.Viewer.RotationSpeed(),
		Interactive:   s.Viewer.Interactive(),
		Capture:       ctrl.State(),
		LastEvent:     ctrl.Last(),
	})
}

// StartCapture handles POST /api/viewer/{session}/capture. The capture runs
// in the background; progress and the result are pushed to the page.
func (h *ViewerHandler) StartCapture(w http.ResponseWriter, r *http.Request) {
	s, ctrl, ok := h.session(r.PathValue("session"))
	if !ok {
		jsonError(w, http.StatusNotFound, "viewer session not found")
		return
	}
	item, ok := h.Collection.Get(s.ItemID)
	if !ok {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	// The capture belongs to the page, not to this request.
	cs, err := ctrl.Start(s.Context(), item)
	if errors.Is(err, capture.ErrInProgress) {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to start capture")
		return
	}

	jsonResponse(w, http.StatusAccepted, map[string]any{
		"capture":  cs.ID,
		"state":    capture.StateRecording,
		"duration": ctrl.Config().Duration.Milliseconds(),
	})
}

// CancelCapture handles DELETE /api/viewer/{session}/capture.
func (h *ViewerHandler) CancelCapture(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := h.session(r.PathValue("session"))
	if !ok {
		jsonError(w, http.StatusNotFound, "viewer session not found")
		return
	}
	active := ctrl.Active()
	ctrl.Cancel()
	if active == nil {
		jsonResponse(w, http.StatusOK, map[string]any{"state": capture.StateIdle})
		return
	}
	jsonResponse(w, http.StatusAccepted, map[string]any{"capture": active.ID, "state": "canceling"})
}

func (h *ViewerHandler) session(id string) (*viewer.Session, *capture.Controller, bool) {
	s, ok := h.Hub.Get(id)
	if !ok {
		return nil, nil, false
	}
	h.mu.Lock()
	ctrl, ok := h.controllers[id]
	h.mu.Unlock()
	return s, ctrl, ok
}

// forward stores finished captures and relays every event to the page.
func (h *ViewerHandler) forward(s *viewer.Session) func(capture.Event) {
	return func(ev capture.Event) {
		notice := captureNotice{Type: "capture", Event: ev}

		if ev.State == capture.StateCompleted && ev.Asset != nil {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			err := store.SaveCapture(ctx, h.DB, ev.Asset)
			cancel()
			if err != nil {
				slog.Error("failed to save capture", "session", s.ID, "capture", ev.Asset.ID, "error", err)
				notice.Event.Notice = "The video was recorded but could not be saved."
			} else {
				notice.VideoURL = "/api/captures/" + ev.Asset.ID + "/video"
			}
		}

		if err := s.Viewer.Notify(notice); err != nil && !errors.Is(err, viewer.ErrClosed) {
			slog.Warn("failed to notify viewer", "session", s.ID, "error", err)
		}
	}
}

// posterFor returns the placeholder image shown while the model loads. An
// uploaded poster wins over the item's poster URL.
func (h *ViewerHandler) posterFor(ctx context.Context, item model.Item) string {
	data, _, err := store.GetPoster(ctx, h.DB, item.ID)
	if err != nil {
		slog.Warn("failed to look up poster", "item", item.ID, "error", err)
	}
	if data != nil {
		return PosterURL(item.ID)
	}
	return item.Poster
}
