package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/c-pro/geche"

	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

// MemoryRegistry is the single-instance implementation: an in-process
// table keyed by user id plus a connection index for the by-connection
// removal paths. Every mutation is a critical section under one mutex.
type MemoryRegistry struct {
	mu    sync.Mutex
	users geche.Geche[string, models.PresenceEntry]
	conns map[string]string
	now   func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		users: geche.NewMapCache[string, models.PresenceEntry](),
		conns: make(map[string]string),
		now:   time.Now,
	}
}

func (r *MemoryRegistry) GoOnline(_ context.Context, userID, connectionID string) ([]models.PresenceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A reconnect before the clean disconnect of the previous tab
	// silently supersedes the old entry.
	if prev, err := r.users.Get(userID); err == nil {
		delete(r.conns, prev.ConnectionID)
	}

	r.users.Set(userID, models.PresenceEntry{
		UserID:       userID,
		ConnectionID: connectionID,
		JoinedAt:     r.now().Unix(),
	})
	r.conns[connectionID] = userID

	return r.snapshotLocked(), nil
}

func (r *MemoryRegistry) GoOffline(_ context.Context, userID, connectionID string) ([]models.PresenceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(userID, connectionID)
	return r.snapshotLocked(), nil
}

func (r *MemoryRegistry) Disconnect(_ context.Context, connectionID string) ([]models.PresenceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if userID, ok := r.conns[connectionID]; ok {
		r.removeLocked(userID, connectionID)
	}
	return r.snapshotLocked(), nil
}

func (r *MemoryRegistry) Snapshot(_ context.Context) ([]models.PresenceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(), nil
}

// removeLocked drops the entry only when the connection id matches, so
// a stale offline for a superseded connection leaves the newer entry.
func (r *MemoryRegistry) removeLocked(userID, connectionID string) {
	delete(r.conns, connectionID)

	entry, err := r.users.Get(userID)
	if err != nil {
		return
	}
	if entry.ConnectionID == connectionID {
		_ = r.users.Del(userID)
	}
}

func (r *MemoryRegistry) snapshotLocked() []models.PresenceEntry {
	table := r.users.Snapshot()
	entries := make([]models.PresenceEntry, 0, len(table))
	for _, entry := range table {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UserID < entries[j].UserID
	})
	return entries
}
