package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// shareSecretKey holds the share-link signing key in the settings table.
const shareSecretKey = "share_secret"

// SetIfAbsent stores value under key unless the key already exists, and
// returns whichever value is stored afterwards. Concurrent callers all get
// the same value.
func (s *SQLiteKV) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	if _, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, value,
	); err != nil {
		return "", fmt.Errorf("writing %s: %w", key, err)
	}

	stored, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s vanished after write", key)
	}
	return stored, nil
}

// GetShareSecret returns the share-link signing key, generating and storing
// a random one on first use.
func GetShareSecret(ctx context.Context, db *sql.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating share secret: %w", err)
	}

	secret, err := NewSQLiteKV(db).SetIfAbsent(ctx, shareSecretKey, hex.EncodeToString(buf))
	if err != nil {
		return "", fmt.Errorf("getting share secret: %w", err)
	}
	return secret, nil
}
