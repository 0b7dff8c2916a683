package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type eventHub interface {
	Attach(connID string) chan Event
	Detach(ctx context.Context, connID string) error
	GoOnline(ctx context.Context, userID, connID string) error
	GoOffline(ctx context.Context, userID, connID string) error
	JoinRoom(connID, room string)
	LeaveRoom(connID, room string)
	RoomBroadcast(room, sourceConnID string, ev Event)
}

// ClientEvent is the inbound frame. ChatID is required for room and
// typing events and ignored otherwise.
type ClientEvent struct {
	Event  models.EventName `json:"event"`
	ChatID string           `json:"chatId,omitempty"`
}

// TypingPayload tells room members who is typing where.
type TypingPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// errWentOffline ends the session cleanly after a deliberate offline
// event: going offline terminates the connection.
var errWentOffline = errors.New("client went offline")

type Connection struct {
	ws         wsConnection
	hub        eventHub
	userID     string
	connID     string
	fromClient chan ClientEvent
	fromServer chan Event
	errorCh    chan error
}

func NewConnection(hub eventHub, ws wsConnection, userID string) *Connection {
	connID := uuid.NewString()
	return &Connection{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		connID:     connID,
		fromClient: make(chan ClientEvent),
		fromServer: hub.Attach(connID),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		// Cleanup must run even when the parent context is gone.
		_ = c.hub.Detach(context.WithoutCancel(ctx), c.connID)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errWentOffline) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var ev ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.fromClient:
			if err := c.processClientEvent(ctx, ev); err != nil {
				return err
			}
		case ev, ok := <-c.fromServer:
			if !ok {
				return nil
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientEvent(ctx context.Context, ev ClientEvent) error {
	switch ev.Event {
	case models.EventOnline:
		return c.hub.GoOnline(ctx, c.userID, c.connID)
	case models.EventOffline:
		if err := c.hub.GoOffline(ctx, c.userID, c.connID); err != nil {
			return err
		}
		return errWentOffline
	case models.EventJoinRoom:
		if ev.ChatID != "" {
			c.hub.JoinRoom(c.connID, ChatRoom(ev.ChatID))
		}
	case models.EventLeaveRoom:
		if ev.ChatID != "" {
			c.hub.LeaveRoom(c.connID, ChatRoom(ev.ChatID))
		}
	case models.EventTypingStarted, models.EventTypingStopped:
		if ev.ChatID != "" {
			c.hub.RoomBroadcast(ChatRoom(ev.ChatID), c.connID, Event{
				Name:    ev.Event,
				Payload: TypingPayload{ChatID: ev.ChatID, UserID: c.userID},
			})
		}
	default:
		return c.ws.WriteJSON(Event{Name: models.EventError, Payload: "unknownEvent"})
	}

	return nil
}
