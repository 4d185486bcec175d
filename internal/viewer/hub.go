package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session is one connected viewer page.
type Session struct {
	ID     string
	ItemID string
	Viewer *Remote

	ctx    context.Context
	cancel context.CancelFunc
}

// Context is canceled when the session is removed from its hub.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Hub upgrades viewer connections and keeps track of the live sessions.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub creates a hub. checkOrigin may be nil to accept same-origin
// requests only.
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		sessions: make(map[string]*Session),
	}
}

// Accept upgrades the request and registers a session for itemID. The caller
// must call Remove when the session ends.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request, itemID string) (*Session, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrading viewer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:     uuid.NewString(),
		ItemID: itemID,
		Viewer: NewRemote(conn),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	slog.Info("viewer connected", "session", s.ID, "item", itemID, "remote", r.RemoteAddr)
	return s, nil
}

// Get returns a live session.
func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Remove unregisters a session, cancels its context and closes its
// connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if !ok {
		return
	}
	s.cancel()
	s.Viewer.Close()
	slog.Info("viewer disconnected", "session", id)
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll removes every live session. Hijacked connections are not closed
// by http.Server.Shutdown, so the server calls this on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Remove(id)
	}
}
