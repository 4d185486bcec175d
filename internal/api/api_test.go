package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/objectory/internal/capture"
	"github.com/erazemk/objectory/internal/db"
	"github.com/erazemk/objectory/internal/model"
	"github.com/erazemk/objectory/internal/store"
	"github.com/erazemk/objectory/internal/viewer"
)

const testShareSecret = "test-secret"

func setupTestServer(t *testing.T) (*httptest.Server, *sql.DB, *store.Collection) {
	t.Helper()
	database := db.NewTestDB(t)

	collection, err := store.OpenCollection(context.Background(), store.NewSQLiteKV(database))
	if err != nil {
		t.Fatalf("opening collection: %v", err)
	}

	captureCfg := capture.DefaultConfig()
	captureCfg.Duration = 300 * time.Millisecond
	captureCfg.Tick = 50 * time.Millisecond

	router := NewRouter(Options{
		DB:          database,
		Collection:  collection,
		Hub:         viewer.NewHub(nil),
		ShareSecret: testShareSecret,
		ShareTTL:    time.Hour,
		PublicURL:   "https://objectory.example",
		Capture:     captureCfg,
	})
	server := httptest.NewServer(Chain(nil).Then(router))
	t.Cleanup(server.Close)

	return server, database, collection
}

func jsonRequest(method, url string, body any) (*http.Request, error) {
	var bodyReader io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	req, err := jsonRequest(method, url, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestItemsAPIFlow(t *testing.T) {
	server, _, _ := setupTestServer(t)

	// Seed data.
	resp := do(t, "GET", server.URL+"/api/items", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var items []model.Item
	json.NewDecoder(resp.Body).Decode(&items)
	if len(items) != 2 {
		t.Fatalf("expected 2 seed items, got %d", len(items))
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag")
	}

	// Unchanged list.
	req, _ := jsonRequest("GET", server.URL+"/api/items", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}

	// Create item.
	resp = do(t, "POST", server.URL+"/api/items", map[string]string{
		"name":     "Vintage Submariner",
		"brand":    "Rolex",
		"category": "Watch",
		"type":     "watch",
		"glbSrc":   "https://models.example/sub.glb",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created model.Item
	json.NewDecoder(resp.Body).Decode(&created)
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.Date != time.Now().Format(model.DateLayout) {
		t.Errorf("expected today's date, got %q", created.Date)
	}

	// The list changed, so the old ETag no longer matches.
	req, _ = jsonRequest("GET", server.URL+"/api/items", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = http.DefaultClient.Do(req)
	json.NewDecoder(resp.Body).Decode(&items)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(items) != 3 || items[0].ID != created.ID {
		t.Errorf("expected new item at the head of 3 items, got %+v", items)
	}

	// Get item.
	resp = do(t, "GET", server.URL+"/api/items/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Delete item.
	resp = do(t, "DELETE", server.URL+"/api/items/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = do(t, "GET", server.URL+"/api/items/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestCreateItemValidation(t *testing.T) {
	server, _, collection := setupTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing name", map[string]string{"brand": "Rolex", "category": "Watch", "glbSrc": "a.glb"}},
		{"missing model", map[string]string{"name": "Sub", "brand": "Rolex", "category": "Watch"}},
		{"unknown type", map[string]string{"name": "Sub", "brand": "Rolex", "type": "boat", "glbSrc": "a.glb"}},
		{"unknown field", map[string]string{"name": "Sub", "owner": "me"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, "POST", server.URL+"/api/items", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}

	if n := len(collection.List()); n != 2 {
		t.Errorf("rejected drafts must not change the collection, got %d items", n)
	}
}

func TestCategoriesAPI(t *testing.T) {
	server, _, _ := setupTestServer(t)

	resp := do(t, "GET", server.URL+"/api/categories", nil)
	var categories []string
	json.NewDecoder(resp.Body).Decode(&categories)
	if strings.Join(categories, ",") != "Watch,Sneaker" {
		t.Fatalf("unexpected categories: %v", categories)
	}

	resp = do(t, "GET", server.URL+"/api/items?category=Sneaker", nil)
	var items []model.Item
	json.NewDecoder(resp.Body).Decode(&items)
	if len(items) != 1 || items[0].Category != "Sneaker" {
		t.Errorf("expected only the sneaker, got %+v", items)
	}

	resp = do(t, "DELETE", server.URL+"/api/categories/Watch", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = do(t, "GET", server.URL+"/api/categories", nil)
	json.NewDecoder(resp.Body).Decode(&categories)
	if len(categories) != 1 || categories[0] != "Sneaker" {
		t.Errorf("expected [Sneaker], got %v", categories)
	}
}

func posterForm(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var img bytes.Buffer
	png.Encode(&img, image.NewNRGBA(image.Rect(0, 0, 64, 48)))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("poster", "poster.png")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	fw.Write(img.Bytes())
	mw.Close()
	return &body, mw.FormDataContentType()
}

func TestPosterUpload(t *testing.T) {
	server, _, _ := setupTestServer(t)

	body, contentType := posterForm(t)
	req, _ := http.NewRequest("PUT", server.URL+"/api/items/1/poster", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = do(t, "GET", server.URL+"/api/items/1/poster", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}

	body, contentType = posterForm(t)
	req, _ = http.NewRequest("PUT", server.URL+"/api/items/nope/poster", body)
	req.Header.Set("Content-Type", contentType)
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown item, got %d", resp.StatusCode)
	}

	resp = do(t, "GET", server.URL+"/api/items/2/poster", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 without poster, got %d", resp.StatusCode)
	}
}

func TestItemShare(t *testing.T) {
	server, _, _ := setupTestServer(t)

	resp := do(t, "GET", server.URL+"/api/items/1/share", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var share shareResponse
	json.NewDecoder(resp.Body).Decode(&share)
	if share.Text != "Check out my collection on Objectory: Vintage Watch #3D #Objectory" {
		t.Errorf("unexpected share text %q", share.Text)
	}
	if !strings.HasPrefix(share.URL, "https://twitter.com/intent/tweet?text=") {
		t.Errorf("unexpected share url %q", share.URL)
	}

	resp = do(t, "GET", server.URL+"/api/items/missing/share", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCaptureDownloadAndLink(t *testing.T) {
	server, database, _ := setupTestServer(t)

	asset := &model.VideoAsset{
		ID:        "cap-1",
		ItemID:    "1",
		Filename:  "objectory_vintage_watch.webm",
		MIMEType:  "video/webm;codecs=vp9",
		Digest:    "abc123",
		CreatedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Data:      []byte("webm-video"),
	}
	if err := store.SaveCapture(context.Background(), database, asset); err != nil {
		t.Fatalf("SaveCapture: %v", err)
	}

	resp := do(t, "GET", server.URL+"/api/captures/cap-1/video", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "webm-video" {
		t.Errorf("unexpected body %q", data)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename=objectory_vintage_watch.webm` {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}

	req, _ := http.NewRequest("GET", server.URL+"/api/captures/cap-1/video", nil)
	req.Header.Set("If-None-Match", resp.Header.Get("ETag"))
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}

	resp = do(t, "GET", server.URL+"/api/items/1/captures", nil)
	var listed []model.VideoAsset
	json.NewDecoder(resp.Body).Decode(&listed)
	if len(listed) != 1 || listed[0].Size != len("webm-video") {
		t.Errorf("unexpected capture list %+v", listed)
	}

	// Public link.
	resp = do(t, "GET", server.URL+"/api/captures/cap-1/link", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var link captureLinkResponse
	json.NewDecoder(resp.Body).Decode(&link)
	if !strings.HasPrefix(link.URL, "https://objectory.example/v/") {
		t.Fatalf("unexpected link %q", link.URL)
	}

	path := strings.TrimPrefix(link.URL, "https://objectory.example")
	resp = do(t, "GET", server.URL+path, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for public link, got %d", resp.StatusCode)
	}
	data, _ = io.ReadAll(resp.Body)
	if string(data) != "webm-video" {
		t.Errorf("unexpected public body %q", data)
	}

	resp = do(t, "GET", server.URL+"/v/not-a-token", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for bad token, got %d", resp.StatusCode)
	}

	// Revoked links stop working.
	resp = do(t, "DELETE", server.URL+path, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on revoke, got %d", resp.StatusCode)
	}
	resp = do(t, "GET", server.URL+path, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for revoked link, got %d", resp.StatusCode)
	}

	resp = do(t, "GET", server.URL+"/api/captures/missing/video", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing capture, got %d", resp.StatusCode)
	}
}

func TestDeleteItemRemovesAssets(t *testing.T) {
	server, database, _ := setupTestServer(t)
	ctx := context.Background()

	store.SetPoster(ctx, database, "1", []byte("jpeg"), "image/jpeg")
	store.SaveCapture(ctx, database, &model.VideoAsset{ID: "cap-1", ItemID: "1", Data: []byte("v"), CreatedAt: time.Now()})

	resp := do(t, "DELETE", server.URL+"/api/items/1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if data, _, _ := store.GetPoster(ctx, database, "1"); data != nil {
		t.Error("poster should be deleted with its item")
	}
	if asset, _ := store.GetCapture(ctx, database, "cap-1"); asset != nil {
		t.Error("capture should be deleted with its item")
	}

	// Deleting again is a no-op.
	resp = do(t, "DELETE", server.URL+"/api/items/1", nil)
	var result map[string]bool
	json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK || result["deleted"] {
		t.Errorf("expected no-op delete, got %d %v", resp.StatusCode, result)
	}
}

// page plays the browser side of a viewer connection.
type page struct {
	conn    *websocket.Conn
	notices chan map[string]any
}

func (p *page) run() {
	defer close(p.notices)
	for {
		var msg map[string]any
		if err := p.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg["op"] {
		case "load":
			p.conn.WriteJSON(map[string]string{"event": "loaded"})
		case "stream.open":
			p.conn.WriteJSON(map[string]string{"event": "stream.opened"})
		case "record.start":
			p.conn.WriteMessage(websocket.BinaryMessage, []byte("webm-bytes"))
		case "record.stop":
			p.conn.WriteJSON(map[string]string{"event": "record.stopped"})
		case "notify":
			payload, _ := msg["payload"].(map[string]any)
			p.notices <- payload
		}
	}
}

func (p *page) next(t *testing.T, match func(map[string]any) bool) map[string]any {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case n, ok := <-p.notices:
			if !ok {
				t.Fatal("viewer connection closed")
			}
			if match(n) {
				return n
			}
		case <-timeout:
			t.Fatal("timed out waiting for viewer notice")
		}
	}
}

func TestViewerCaptureFlow(t *testing.T) {
	server, _, _ := setupTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/viewer/ws?item=2"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	p := &page{conn: conn, notices: make(chan map[string]any, 100)}
	go p.run()

	hello := p.next(t, func(n map[string]any) bool { return n["type"] == "session" })
	session, _ := hello["session"].(string)
	if session == "" {
		t.Fatal("expected a session id")
	}

	// Wait for the model to be reported loaded.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp := do(t, "GET", server.URL+"/api/viewer/"+session, nil)
		var state viewerState
		json.NewDecoder(resp.Body).Decode(&state)
		if state.Status == viewer.StatusReady {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("viewer never became ready, last status %q", state.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp := do(t, "POST", server.URL+"/api/viewer/"+session+"/capture", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	resp = do(t, "POST", server.URL+"/api/viewer/"+session+"/capture", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for a second capture, got %d", resp.StatusCode)
	}

	done := p.next(t, func(n map[string]any) bool {
		ev, _ := n["event"].(map[string]any)
		return n["type"] == "capture" && ev["state"] != string(capture.StateRecording)
	})
	ev := done["event"].(map[string]any)
	if ev["state"] != string(capture.StateCompleted) {
		t.Fatalf("expected completed capture, got %v", ev)
	}
	videoURL, _ := done["videoUrl"].(string)
	if videoURL == "" {
		t.Fatal("expected a video url")
	}

	resp = do(t, "GET", server.URL+videoURL, nil)
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "webm-bytes" {
		t.Errorf("unexpected video %q", data)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "objectory_materials_shoe.webm") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}

	resp = do(t, "GET", server.URL+"/api/viewer/unknown/capture", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func TestViewerUnknownItem(t *testing.T) {
	server, _, _ := setupTestServer(t)

	resp := do(t, "GET", server.URL+"/api/viewer/ws?item=missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	resp = do(t, "POST", server.URL+"/api/viewer/nope/capture", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
