package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry_OneEntryPerUser(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	snap, err := r.GoOnline(ctx, "u1", "conn1")
	require.NoError(t, err)
	require.Len(t, snap, 1)

	// Second tab for the same user supersedes, never appends.
	snap, err = r.GoOnline(ctx, "u1", "conn2")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	require.Equal(t, "conn2", snap[0].ConnectionID)

	snap, err = r.GoOnline(ctx, "u2", "conn3")
	require.NoError(t, err)
	require.Len(t, snap, 2)
}

func TestMemoryRegistry_StaleOfflineDoesNotEvict(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	_, err := r.GoOnline(ctx, "u1", "conn1")
	require.NoError(t, err)
	_, err = r.GoOnline(ctx, "u1", "conn2")
	require.NoError(t, err)

	// The offline for the superseded connection arrives late: the
	// newer entry must survive.
	snap, err := r.GoOffline(ctx, "u1", "conn1")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	require.Equal(t, "conn2", snap[0].ConnectionID)

	snap, err = r.GoOffline(ctx, "u1", "conn2")
	require.NoError(t, err)
	require.Empty(t, snap)
}

func TestMemoryRegistry_Disconnect(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	_, err := r.GoOnline(ctx, "u1", "conn1")
	require.NoError(t, err)
	_, err = r.GoOnline(ctx, "u2", "conn2")
	require.NoError(t, err)

	snap, err := r.Disconnect(ctx, "conn1")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	require.Equal(t, "u2", snap[0].UserID)

	// Unknown connection is a no-op.
	snap, err = r.Disconnect(ctx, "conn9")
	require.NoError(t, err)
	require.Len(t, snap, 1)

	snap, err = r.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	require.Equal(t, "u2", snap[0].UserID)
}
