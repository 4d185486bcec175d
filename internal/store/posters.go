package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SetPoster stores an item's placeholder image, replacing any previous one.
func SetPoster(ctx context.Context, db *sql.DB, itemID string, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO posters (item_id, image, image_mime) VALUES (?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET image = excluded.image,
		     image_mime = excluded.image_mime, updated_at = CURRENT_TIMESTAMP`,
		itemID, image, mime,
	)
	if err != nil {
		return fmt.Errorf("setting poster: %w", err)
	}
	return nil
}

// GetPoster returns an item's poster data and MIME type. Data is nil if the
// item has no poster.
func GetPoster(ctx context.Context, db *sql.DB, itemID string) ([]byte, string, error) {
	var image []byte
	var mime string
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM posters WHERE item_id = ?`, itemID,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting poster: %w", err)
	}
	return image, mime, nil
}

// DeletePosters removes the posters of the given items.
func DeletePosters(ctx context.Context, db *sql.DB, itemIDs ...string) error {
	for _, id := range itemIDs {
		if _, err := db.ExecContext(ctx, `DELETE FROM posters WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("deleting poster: %w", err)
		}
	}
	return nil
}
