package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

const (
	usersKey = "presence:users"
	connsKey = "presence:conns"
)

// RedisRegistry keeps the presence table in a shared Redis instance so
// multiple server processes agree on who is online. Same contract as
// MemoryRegistry; the per-user entry lives in one hash field, the
// connection index in another hash.
type RedisRegistry struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client, now: time.Now}
}

func (r *RedisRegistry) GoOnline(ctx context.Context, userID, connectionID string) ([]models.PresenceEntry, error) {
	if prev, err := r.entry(ctx, userID); err == nil {
		if err := r.client.HDel(ctx, connsKey, prev.ConnectionID).Err(); err != nil {
			return nil, models.Dependency(err)
		}
	} else if !models.IsNotFound(err) {
		return nil, err
	}

	entry := models.PresenceEntry{
		UserID:       userID,
		ConnectionID: connectionID,
		JoinedAt:     r.now().Unix(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if err := r.client.HSet(ctx, usersKey, userID, data).Err(); err != nil {
		return nil, models.Dependency(err)
	}
	if err := r.client.HSet(ctx, connsKey, connectionID, userID).Err(); err != nil {
		return nil, models.Dependency(err)
	}

	return r.Snapshot(ctx)
}

func (r *RedisRegistry) GoOffline(ctx context.Context, userID, connectionID string) ([]models.PresenceEntry, error) {
	if err := r.remove(ctx, userID, connectionID); err != nil {
		return nil, err
	}
	return r.Snapshot(ctx)
}

func (r *RedisRegistry) Disconnect(ctx context.Context, connectionID string) ([]models.PresenceEntry, error) {
	userID, err := r.client.HGet(ctx, connsKey, connectionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return r.Snapshot(ctx)
		}
		return nil, models.Dependency(err)
	}
	if err := r.remove(ctx, userID, connectionID); err != nil {
		return nil, err
	}
	return r.Snapshot(ctx)
}

func (r *RedisRegistry) Snapshot(ctx context.Context) ([]models.PresenceEntry, error) {
	table, err := r.client.HGetAll(ctx, usersKey).Result()
	if err != nil {
		return nil, models.Dependency(err)
	}

	entries := make([]models.PresenceEntry, 0, len(table))
	for _, raw := range table {
		var entry models.PresenceEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("corrupt presence entry: %w", err)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UserID < entries[j].UserID
	})
	return entries, nil
}

func (r *RedisRegistry) entry(ctx context.Context, userID string) (models.PresenceEntry, error) {
	var entry models.PresenceEntry
	raw, err := r.client.HGet(ctx, usersKey, userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entry, models.NotFound("presenceNotFound")
		}
		return entry, models.Dependency(err)
	}
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return entry, fmt.Errorf("corrupt presence entry: %w", err)
	}
	return entry, nil
}

func (r *RedisRegistry) remove(ctx context.Context, userID, connectionID string) error {
	if err := r.client.HDel(ctx, connsKey, connectionID).Err(); err != nil {
		return models.Dependency(err)
	}

	entry, err := r.entry(ctx, userID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil
		}
		return err
	}
	// Match by connection id: a stale offline for a superseded
	// connection must not evict the newer entry.
	if entry.ConnectionID != connectionID {
		return nil
	}
	if err := r.client.HDel(ctx, usersKey, userID).Err(); err != nil {
		return models.Dependency(err)
	}
	return nil
}
