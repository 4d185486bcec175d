package store

import (
	"context"
	"database/sql"
	"fmt"
)

// KV is a durable string key-value store holding whole-document records.
type KV interface {
	// Get returns the value stored under key. The boolean is false when the
	// key has never been written.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key, value string) error
}

// SQLiteKV stores records in the settings table.
type SQLiteKV struct {
	DB *sql.DB
}

// NewSQLiteKV returns a KV backed by the settings table of db.
func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{DB: db}
}

// Get implements KV.
func (s *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements KV.
func (s *SQLiteKV) Set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
