package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/objectory/internal/model"
)

// SaveCapture stores a finished video asset.
func SaveCapture(ctx context.Context, db *sql.DB, asset *model.VideoAsset) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO captures (id, item_id, filename, mime_type, digest, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		asset.ID, asset.ItemID, asset.Filename, asset.MIMEType, asset.Digest, asset.Data, asset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving capture: %w", err)
	}
	return nil
}

// GetCapture returns a video asset including its data, or nil if not found.
func GetCapture(ctx context.Context, db *sql.DB, id string) (*model.VideoAsset, error) {
	a := &model.VideoAsset{}
	err := db.QueryRowContext(ctx,
		`SELECT id, item_id, filename, mime_type, digest, data, created_at
		 FROM captures WHERE id = ?`, id,
	).Scan(&a.ID, &a.ItemID, &a.Filename, &a.MIMEType, &a.Digest, &a.Data, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting capture: %w", err)
	}
	a.Size = len(a.Data)
	return a, nil
}

// ListCaptures returns the metadata of an item's captures, newest first.
func ListCaptures(ctx context.Context, db *sql.DB, itemID string) ([]model.VideoAsset, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, item_id, filename, mime_type, digest, length(data), created_at
		 FROM captures WHERE item_id = ? ORDER BY created_at DESC`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing captures: %w", err)
	}
	defer rows.Close()

	var assets []model.VideoAsset
	for rows.Next() {
		var a model.VideoAsset
		if err := rows.Scan(&a.ID, &a.ItemID, &a.Filename, &a.MIMEType, &a.Digest, &a.Size, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning capture: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// DeleteCaptures removes every capture of the given items.
func DeleteCaptures(ctx context.Context, db *sql.DB, itemIDs ...string) error {
	for _, id := range itemIDs {
		if _, err := db.ExecContext(ctx, `DELETE FROM captures WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("deleting captures: %w", err)
		}
	}
	return nil
}

// DeleteItemAssets removes the posters and captures of deleted items in one
// transaction.
func DeleteItemAssets(ctx context.Context, db *sql.DB, itemIDs ...string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range itemIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM posters WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("deleting poster: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM captures WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("deleting captures: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}
