package store

import (
	"context"
	"testing"

	"github.com/erazemk/objectory/internal/db"
)

func TestSQLiteKV(t *testing.T) {
	kv := NewSQLiteKV(db.NewTestDB(t))
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected missing key to be absent")
	}

	if err := kv.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("second Set: %v", err)
	}

	v, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: %q %v %v", v, ok, err)
	}
	if v != "v2" {
		t.Errorf("expected last write to win, got %q", v)
	}
}
