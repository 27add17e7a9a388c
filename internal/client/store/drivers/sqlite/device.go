package sqlite

import (
	"context"
	"database/sql"
)

const keyDeviceID = "device_id"

type deviceRepo struct {
	db *sql.DB
}

func (r *deviceRepo) ID(ctx context.Context) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM local_values WHERE key = ?`, keyDeviceID,
	).Scan(&v)
	if err != nil {
		return "", mapNotFound(err)
	}
	return v, nil
}

func (r *deviceRepo) SetID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, upsertValue, keyDeviceID, id)
	return err
}
