// Package presence tracks which users currently hold a live connection.
// The registry is the single authority for online status: one entry per
// user, superseded by newer connections, removed by connection id so a
// stale offline for an already-replaced connection never evicts the
// newer entry.
package presence

import (
	"context"

	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

type Registry interface {
	// GoOnline registers the connection for the user, superseding any
	// previous entry for the same user, and returns the new snapshot.
	GoOnline(ctx context.Context, userID, connectionID string) ([]models.PresenceEntry, error)

	// GoOffline removes the entry matched by connection id (not user
	// id) and returns the new snapshot.
	GoOffline(ctx context.Context, userID, connectionID string) ([]models.PresenceEntry, error)

	// Disconnect is the cleanup path for ungraceful termination, when
	// only the connection id is known.
	Disconnect(ctx context.Context, connectionID string) ([]models.PresenceEntry, error)

	Snapshot(ctx context.Context) ([]models.PresenceEntry, error)
}
