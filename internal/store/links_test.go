package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/objectory/internal/db"
)

func TestRevokeShareLink(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	revoked, err := IsShareLinkRevoked(ctx, database, "link-1")
	if err != nil {
		t.Fatalf("IsShareLinkRevoked: %v", err)
	}
	if revoked {
		t.Error("expected link not to be revoked")
	}

	if err := RevokeShareLink(ctx, database, "link-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeShareLink: %v", err)
	}
	// Revoking twice is fine.
	if err := RevokeShareLink(ctx, database, "link-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeShareLink again: %v", err)
	}

	revoked, err = IsShareLinkRevoked(ctx, database, "link-1")
	if err != nil {
		t.Fatalf("IsShareLinkRevoked: %v", err)
	}
	if !revoked {
		t.Error("expected link to be revoked")
	}

	revoked, err = IsShareLinkRevoked(ctx, database, "link-2")
	if err != nil {
		t.Fatalf("IsShareLinkRevoked: %v", err)
	}
	if revoked {
		t.Error("expected other link not to be revoked")
	}
}

func TestRevokeShareLinkPrunesExpired(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if err := RevokeShareLink(ctx, database, "old", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("RevokeShareLink: %v", err)
	}
	// The next revocation prunes the already expired entry.
	if err := RevokeShareLink(ctx, database, "new", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeShareLink: %v", err)
	}

	revoked, err := IsShareLinkRevoked(ctx, database, "old")
	if err != nil {
		t.Fatalf("IsShareLinkRevoked: %v", err)
	}
	if revoked {
		t.Error("expected expired revocation to be pruned")
	}
}
