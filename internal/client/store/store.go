package store

import (
	"context"
	"errors"
	"time"

	"github.com/membuddy/linkauth/internal/client/domain"
)

// ErrNotFound is the canonical "absent" result. Durable storage is a plain
// last-writer-wins key-value surface; a key deleted out from under a reader is
// reported as absent, never as a failure.
var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface for the client's durable storage.
// Concrete drivers (sqlite today) implement this. Sub-repositories keep the
// storage concerns (cached credentials, completion sentinels, the
// rendered-asset cache) from bleeding into each other.
type Store interface {
	Credentials() Credentials
	Sentinels() Sentinels
	AssetCache() AssetCache
	Device() Device

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Credentials interface {
	// SaveSession persists the token, refresh token and user record.
	SaveSession(ctx context.Context, s domain.Session) error

	// LoadSession reads back a previously persisted session. A partially
	// present or unparsable record yields ErrNotFound so startup never fails
	// on bad stored state.
	LoadSession(ctx context.Context) (domain.Session, error)

	// ClearSession removes all persisted session keys. Clearing keys that do
	// not exist is not an error.
	ClearSession(ctx context.Context) error
}

type Sentinels interface {
	// Write records a completion sentinel for an attempt nonce. Writing the
	// same nonce twice overwrites (last writer wins).
	Write(ctx context.Context, attemptID, value string) error

	// Consume atomically reads and deletes the sentinel for an attempt nonce,
	// returning its value and write instant. Missing sentinels return
	// ErrNotFound. A second Consume of the same nonce returns ErrNotFound.
	Consume(ctx context.Context, attemptID string) (value string, writtenAt time.Time, err error)

	// DeleteStale removes sentinels written before the given instant.
	DeleteStale(ctx context.Context, before time.Time) error
}

type AssetCache interface {
	// Put caches a rendered scannable asset for an attempt until it expires.
	Put(ctx context.Context, attemptID, asset string, expiresAt time.Time) error

	// Get returns a cached asset that has not expired, else ErrNotFound.
	Get(ctx context.Context, attemptID string, now time.Time) (string, error)

	// Delete drops the cache entry for an attempt.
	Delete(ctx context.Context, attemptID string) error

	// DeleteExpired removes entries past their expiry (housekeeping).
	DeleteExpired(ctx context.Context, now time.Time) error
}

type Device interface {
	// ID returns the stored installation id, or ErrNotFound.
	ID(ctx context.Context) (string, error)

	// SetID stores the installation id.
	SetID(ctx context.Context, id string) error
}
