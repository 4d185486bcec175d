package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RevokeShareLink blocks the share link with the given token ID until it
// would have expired anyway.
func RevokeShareLink(ctx context.Context, db *sql.DB, jti string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_links (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("revoking share link: %w", err)
	}

	// Expired links are rejected by their signature check alone.
	_, _ = db.ExecContext(ctx,
		`DELETE FROM revoked_links WHERE expires_at < ?`, time.Now().UTC(),
	)

	return nil
}

// IsShareLinkRevoked reports whether a share link has been revoked.
func IsShareLinkRevoked(ctx context.Context, db *sql.DB, jti string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_links WHERE jti = ?`, jti,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking share link: %w", err)
	}
	return count > 0, nil
}
