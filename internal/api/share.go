package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/objectory/internal/auth"
	"github.com/erazemk/objectory/internal/model"
	"github.com/erazemk/objectory/internal/store"
)

// ShareHandler builds share intents and serves public capture links.
type ShareHandler struct {
	DB         *sql.DB
	Collection *store.Collection
	Secret     string
	TTL        time.Duration
	PublicURL  string
}

type shareResponse struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type captureLinkResponse struct {
	URL       string    `json:"url"`
	ShareURL  string    `json:"share_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ItemShare handles GET /api/items/{id}/share. It returns the pre-filled
// post text for an item and the compose URL that opens it.
func (h *ShareHandler) ItemShare(w http.ResponseWriter, r *http.Request) {
	item, ok := h.Collection.Get(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	text := model.ShareText(item.Name)
	jsonResponse(w, http.StatusOK, shareResponse{Text: text, URL: model.ShareIntentURL(text)})
}

// CaptureLink handles GET /api/captures/{id}/link. It signs a public
// download link for a capture.
func (h *ShareHandler) CaptureLink(w http.ResponseWriter, r *http.Request) {
	asset, err := store.GetCapture(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get capture")
		return
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "capture not found")
		return
	}

	ttl := h.TTL
	if ttl <= 0 {
		ttl = auth.DefaultShareTTL
	}
	token, err := auth.GenerateShareToken(h.Secret, asset.ID, asset.ItemID, ttl)
	if err != nil {
		slog.Error("failed to sign share link", "capture", asset.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create link")
		return
	}

	link := h.PublicURL + "/v/" + token
	text := model.ShareText(itemName(h.Collection, asset.ItemID)) + " " + link
	jsonResponse(w, http.StatusOK, captureLinkResponse{
		URL:       link,
		ShareURL:  model.ShareIntentURL(text),
		ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
	})
}

// Download handles GET /v/{token}, the public side of a capture link.
func (h *ShareHandler) Download(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.validLink(w, r)
	if !ok {
		return
	}

	asset, err := store.GetCapture(r.Context(), h.DB, claims.CaptureID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get capture")
		return
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "capture not found")
		return
	}
	serveVideo(w, r, asset, r.URL.Query().Get("download") != "")
}

// Revoke handles DELETE /v/{token}. Anyone holding a link may revoke it.
func (h *ShareHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.validLink(w, r)
	if !ok {
		return
	}

	if err := store.RevokeShareLink(r.Context(), h.DB, claims.ID, claims.ExpiresAt.Time); err != nil {
		slog.Error("failed to revoke share link", "capture", claims.CaptureID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to revoke link")
		return
	}

	slog.Info("share link revoked", "capture", claims.CaptureID)
	w.WriteHeader(http.StatusNoContent)
}

// validLink checks the signature, expiry and revocation of the link in the
// path. It writes the error response itself.
func (h *ShareHandler) validLink(w http.ResponseWriter, r *http.Request) (*auth.ShareClaims, bool) {
	claims, err := auth.ValidateShareToken(h.Secret, r.PathValue("token"))
	if err != nil {
		jsonError(w, http.StatusNotFound, "link expired or invalid")
		return nil, false
	}

	revoked, err := store.IsShareLinkRevoked(r.Context(), h.DB, claims.ID)
	if err != nil {
		slog.Error("failed to check share link", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if revoked {
		jsonError(w, http.StatusNotFound, "link expired or invalid")
		return nil, false
	}
	return claims, true
}

// itemName returns the name of an item, or a generic one for items that
// have since been deleted.
func itemName(c *store.Collection, id string) string {
	if item, ok := c.Get(id); ok {
		return item.Name
	}
	return "my collection"
}
