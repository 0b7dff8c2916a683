package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alirezanaghdi47/messenger-backend/internal/metrics"
	"github.com/alirezanaghdi47/messenger-backend/internal/models"
	"github.com/alirezanaghdi47/messenger-backend/internal/presence"
)

// Event is the frame sent to clients.
type Event struct {
	Name    models.EventName `json:"event"`
	Payload any              `json:"payload,omitempty"`
}

// UserRoom is the private room every online user is placed in. Targeted
// fan-out goes through it.
func UserRoom(userID string) string { return "user:" + userID }

// ChatRoom is the room clients join while they have a chat open.
func ChatRoom(chatID string) string { return "chat:" + chatID }

const sendBuffer = 100

// Hub tracks open connections and their room membership, and fans
// events out to them. Presence is delegated to the registry so several
// instances can share it.
type Hub struct {
	registry presence.Registry
	log      *slog.Logger

	mu    sync.RWMutex
	conns map[string]chan Event
	rooms map[string]map[string]bool
}

func NewHub(registry presence.Registry, log *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		log:      log,
		conns:    make(map[string]chan Event),
		rooms:    make(map[string]map[string]bool),
	}
}

// Attach registers a connection and returns its send channel.
func (h *Hub) Attach(connID string) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, sendBuffer)
	h.conns[connID] = ch
	metrics.ActiveConnections.Inc()
	return ch
}

// Detach removes the connection from every room, clears its presence
// entry and closes its channel. Everyone else learns the new active
// user set.
func (h *Hub) Detach(ctx context.Context, connID string) error {
	snapshot, err := h.registry.Disconnect(ctx, connID)

	h.mu.Lock()
	for room, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if ch, ok := h.conns[connID]; ok {
		close(ch)
		delete(h.conns, connID)
		metrics.ActiveConnections.Dec()
	}
	h.mu.Unlock()

	if err != nil {
		return err
	}
	h.BroadcastAll(Event{Name: models.EventActiveUsersChanged, Payload: snapshot})
	return nil
}

// GoOnline marks the user present, joins their private room and
// broadcasts the updated active user set.
func (h *Hub) GoOnline(ctx context.Context, userID, connID string) error {
	snapshot, err := h.registry.GoOnline(ctx, userID, connID)
	if err != nil {
		return err
	}
	h.JoinRoom(connID, UserRoom(userID))
	h.BroadcastAll(Event{Name: models.EventActiveUsersChanged, Payload: snapshot})
	return nil
}

func (h *Hub) GoOffline(ctx context.Context, userID, connID string) error {
	snapshot, err := h.registry.GoOffline(ctx, userID, connID)
	if err != nil {
		return err
	}
	h.LeaveRoom(connID, UserRoom(userID))
	h.BroadcastAll(Event{Name: models.EventActiveUsersChanged, Payload: snapshot})
	return nil
}

// JoinRoom is idempotent: joining a room twice is a no-op.
func (h *Hub) JoinRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[connID]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]bool)
		h.rooms[room] = members
	}
	members[connID] = true
}

func (h *Hub) LeaveRoom(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomBroadcast sends the event to every connection in the room except
// the source connection, so clients never echo their own actions back.
func (h *Hub) RoomBroadcast(room, sourceConnID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID := range h.rooms[room] {
		if connID == sourceConnID {
			continue
		}
		h.send(connID, ev)
	}
}

// DeliverToParticipants targets the private room of every chat
// participant. Offline participants have no connection in their room,
// so they are skipped naturally.
func (h *Hub) DeliverToParticipants(chat models.Chat, sourceConnID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range chat.ParticipantIDs {
		for connID := range h.rooms[UserRoom(userID)] {
			if connID == sourceConnID {
				continue
			}
			h.send(connID, ev)
		}
	}
}

func (h *Hub) BroadcastAll(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID := range h.conns {
		h.send(connID, ev)
	}
}

// MessageUpdated lets background jobs push a changed message into the
// chat room.
func (h *Hub) MessageUpdated(chat models.Chat, msg models.Message) {
	h.RoomBroadcast(ChatRoom(chat.ID), "", Event{Name: models.EventMessageUpdated, Payload: msg})
}

// send requires at least a read lock. Slow consumers lose events rather
// than stalling the hub.
func (h *Hub) send(connID string, ev Event) {
	ch, ok := h.conns[connID]
	if !ok {
		return
	}
	select {
	case ch <- ev:
		metrics.EventsDelivered.WithLabelValues(string(ev.Name)).Inc()
	default:
		h.log.Warn("event dropped, send buffer full", "connId", connID, "event", ev.Name)
	}
}
