package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/membuddy/linkauth/internal/client/domain"
	"github.com/membuddy/linkauth/internal/client/store"
)

// Storage keys carried over from the web client so the layout stays
// recognisable across platforms.
const (
	keyAuthToken    = "auth_token"
	keyRefreshToken = "refresh_token"
	keyUserData     = "user_data"
)

type credentialsRepo struct {
	db *sql.DB
}

const upsertValue = `
	INSERT INTO local_values (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

func (r *credentialsRepo) SaveSession(ctx context.Context, s domain.Session) error {
	userJSON, err := json.Marshal(s.User)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, kv := range [][2]string{
		{keyAuthToken, s.Token},
		{keyRefreshToken, s.RefreshToken},
		{keyUserData, string(userJSON)},
	} {
		if _, err := tx.ExecContext(ctx, upsertValue, kv[0], kv[1]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *credentialsRepo) LoadSession(ctx context.Context) (domain.Session, error) {
	token, err := r.value(ctx, keyAuthToken)
	if err != nil {
		return domain.Session{}, err
	}

	refresh, err := r.value(ctx, keyRefreshToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, err
	}

	userJSON, err := r.value(ctx, keyUserData)
	if err != nil {
		return domain.Session{}, err
	}

	var user domain.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil || user.ID == "" {
		// Unparsable stored state reads as "no prior session".
		return domain.Session{}, store.ErrNotFound
	}

	return domain.Session{User: &user, Token: token, RefreshToken: refresh}, nil
}

func (r *credentialsRepo) ClearSession(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM local_values WHERE key IN (?, ?, ?)`,
		keyAuthToken, keyRefreshToken, keyUserData,
	)
	return err
}

func (r *credentialsRepo) value(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM local_values WHERE key = ?`, key,
	).Scan(&v)
	if err != nil {
		return "", mapNotFound(err)
	}
	return v, nil
}
