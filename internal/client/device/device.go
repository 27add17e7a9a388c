// Package device manages the stable installation identifier this client
// presents to the user-center. Mobile-style hardware fingerprints are not
// portably available to a Go process, so the id is minted once and persisted.
package device

import (
	"context"
	"errors"

	"github.com/membuddy/linkauth/internal/client/store"

	"github.com/google/uuid"
)

// EnsureID returns the persisted installation id, minting and storing a new
// one on first run.
func EnsureID(ctx context.Context, repo store.Device) (string, error) {
	id, err := repo.ID(ctx)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	id = uuid.NewString()
	if err := repo.SetID(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}
