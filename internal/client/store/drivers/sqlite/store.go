package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/membuddy/linkauth/internal/client/store"

	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed durable storage for the client. It is the local
// analogue of a browser's localStorage: a handful of keys with last-writer-wins
// semantics, surviving process restarts.
type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Several tickers can hit the file at once (session writes, sentinel
	// polls); serialise through one connection rather than fight SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Credentials() store.Credentials { return &credentialsRepo{db: s.db} }
func (s *Store) Sentinels() store.Sentinels     { return &sentinelsRepo{db: s.db} }
func (s *Store) AssetCache() store.AssetCache   { return &assetCacheRepo{db: s.db} }
func (s *Store) Device() store.Device           { return &deviceRepo{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
