package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/membuddy/linkauth/internal/client/store"
)

type assetCacheRepo struct {
	db *sql.DB
}

func (r *assetCacheRepo) Put(ctx context.Context, attemptID, asset string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO qr_assets (attempt_id, asset, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(attempt_id) DO UPDATE SET asset = excluded.asset, expires_at = excluded.expires_at`,
		attemptID, asset, expiresAt.UTC(),
	)
	return err
}

func (r *assetCacheRepo) Get(ctx context.Context, attemptID string, now time.Time) (string, error) {
	var (
		asset     string
		expiresAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT asset, expires_at FROM qr_assets WHERE attempt_id = ?`, attemptID,
	).Scan(&asset, &expiresAt)
	if err != nil {
		return "", mapNotFound(err)
	}

	if !now.Before(expiresAt) {
		// Expired entries are never reused; drop eagerly.
		_ = r.Delete(ctx, attemptID)
		return "", store.ErrNotFound
	}
	return asset, nil
}

func (r *assetCacheRepo) Delete(ctx context.Context, attemptID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM qr_assets WHERE attempt_id = ?`, attemptID,
	)
	return err
}

func (r *assetCacheRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM qr_assets WHERE expires_at <= ?`, now.UTC(),
	)
	return err
}
