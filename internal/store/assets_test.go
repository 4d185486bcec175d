package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/objectory/internal/db"
	"github.com/erazemk/objectory/internal/model"
)

func TestPosterLifecycle(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	data, _, err := GetPoster(ctx, database, "item-1")
	if err != nil {
		t.Fatalf("GetPoster: %v", err)
	}
	if data != nil {
		t.Error("expected no poster")
	}

	if err := SetPoster(ctx, database, "item-1", []byte("first"), "image/jpeg"); err != nil {
		t.Fatalf("SetPoster: %v", err)
	}
	if err := SetPoster(ctx, database, "item-1", []byte("second"), "image/jpeg"); err != nil {
		t.Fatalf("replacing poster: %v", err)
	}

	data, mime, err := GetPoster(ctx, database, "item-1")
	if err != nil {
		t.Fatalf("GetPoster: %v", err)
	}
	if string(data) != "second" || mime != "image/jpeg" {
		t.Errorf("unexpected poster %q %q", data, mime)
	}

	if err := DeletePosters(ctx, database, "item-1", "unknown"); err != nil {
		t.Fatalf("DeletePosters: %v", err)
	}
	data, _, _ = GetPoster(ctx, database, "item-1")
	if data != nil {
		t.Error("expected poster to be deleted")
	}
}

func TestCaptureLifecycle(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	asset := &model.VideoAsset{
		ID:        "cap-1",
		ItemID:    "item-1",
		Filename:  "objectory_vintage_watch.webm",
		MIMEType:  "video/webm",
		Digest:    "abc",
		Data:      []byte("webm bytes"),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := SaveCapture(ctx, database, asset); err != nil {
		t.Fatalf("SaveCapture: %v", err)
	}

	got, err := GetCapture(ctx, database, "cap-1")
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if got == nil {
		t.Fatal("expected capture")
	}
	if string(got.Data) != "webm bytes" || got.Size != len("webm bytes") || got.Filename != asset.Filename {
		t.Errorf("unexpected capture %+v", got)
	}

	list, err := ListCaptures(ctx, database, "item-1")
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if len(list) != 1 || list[0].Size != len("webm bytes") || list[0].Data != nil {
		t.Errorf("unexpected list %+v", list)
	}

	missing, err := GetCapture(ctx, database, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown capture, got %+v %v", missing, err)
	}

	if err := DeleteCaptures(ctx, database, "item-1"); err != nil {
		t.Fatalf("DeleteCaptures: %v", err)
	}
	list, _ = ListCaptures(ctx, database, "item-1")
	if len(list) != 0 {
		t.Errorf("expected no captures, got %d", len(list))
	}
}

func TestDeleteItemAssets(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	SetPoster(ctx, database, "a", []byte("pa"), "image/jpeg")
	SetPoster(ctx, database, "b", []byte("pb"), "image/jpeg")
	SaveCapture(ctx, database, &model.VideoAsset{ID: "ca", ItemID: "a", Data: []byte("x"), CreatedAt: time.Now()})
	SaveCapture(ctx, database, &model.VideoAsset{ID: "cb", ItemID: "b", Data: []byte("y"), CreatedAt: time.Now()})

	if err := DeleteItemAssets(ctx, database, "a"); err != nil {
		t.Fatalf("DeleteItemAssets: %v", err)
	}

	if data, _, _ := GetPoster(ctx, database, "a"); data != nil {
		t.Error("poster of a should be gone")
	}
	if asset, _ := GetCapture(ctx, database, "ca"); asset != nil {
		t.Error("capture of a should be gone")
	}
	if data, _, _ := GetPoster(ctx, database, "b"); data == nil {
		t.Error("poster of b should remain")
	}
	if asset, _ := GetCapture(ctx, database, "cb"); asset == nil {
		t.Error("capture of b should remain")
	}

	if err := DeleteItemAssets(ctx, database); err != nil {
		t.Errorf("DeleteItemAssets with no ids: %v", err)
	}
}
