package sqlite

import (
	"context"
	"database/sql"
	"time"
)

type sentinelsRepo struct {
	db *sql.DB
}

func (r *sentinelsRepo) Write(ctx context.Context, attemptID, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sentinels (attempt_id, value, written_at) VALUES (?, ?, ?)
		ON CONFLICT(attempt_id) DO UPDATE SET value = excluded.value, written_at = excluded.written_at`,
		attemptID, value, time.Now().UTC(),
	)
	return err
}

// Consume reads and deletes in one transaction so two racing pollers cannot
// both observe the same sentinel.
func (r *sentinelsRepo) Consume(ctx context.Context, attemptID string) (string, time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		value     string
		writtenAt time.Time
	)
	err = tx.QueryRowContext(ctx,
		`SELECT value, written_at FROM sentinels WHERE attempt_id = ?`, attemptID,
	).Scan(&value, &writtenAt)
	if err != nil {
		return "", time.Time{}, mapNotFound(err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sentinels WHERE attempt_id = ?`, attemptID,
	); err != nil {
		return "", time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return "", time.Time{}, err
	}
	return value, writtenAt, nil
}

func (r *sentinelsRepo) DeleteStale(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sentinels WHERE written_at < ?`, before.UTC(),
	)
	return err
}
