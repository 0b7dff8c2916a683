package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

func TestStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewBboltStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	t.Run("Users", func(t *testing.T) {
		user := models.User{ID: "u1", UserName: "alice", DisplayName: "Alice"}
		if err := store.UpsertUser(user); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}

		got, err := store.GetUser("u1")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if got.UserName != "alice" {
			t.Errorf("expected userName alice, got %s", got.UserName)
		}

		if _, err := store.GetUser("missing"); !models.IsNotFound(err) {
			t.Errorf("expected not-found error, got %v", err)
		}
	})

	t.Run("Chats", func(t *testing.T) {
		chat := models.Chat{
			ID:             "c1",
			Kind:           models.ChatKindDirect,
			ParticipantIDs: []string{"u1", "u2"},
			CreatedAt:      time.Now().UnixMilli(),
		}
		if err := store.UpsertChat(chat); err != nil {
			t.Fatalf("UpsertChat failed: %v", err)
		}

		got, err := store.GetChat("c1")
		if err != nil {
			t.Fatalf("GetChat failed: %v", err)
		}
		if got.Kind != models.ChatKindDirect {
			t.Errorf("expected kind direct, got %s", got.Kind)
		}
		if len(got.ParticipantIDs) != 2 {
			t.Errorf("expected 2 participants, got %d", len(got.ParticipantIDs))
		}

		found, ok, err := store.FindDirectChat("u2", "u1")
		if err != nil {
			t.Fatalf("FindDirectChat failed: %v", err)
		}
		if !ok || found.ID != "c1" {
			t.Errorf("expected to find c1 for reversed pair, got ok=%v id=%s", ok, found.ID)
		}

		_, ok, err = store.FindDirectChat("u1", "u3")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("expected no direct chat for u1/u3")
		}

		// A degenerate self-pair lookup must not resolve to the u1/u2
		// chat by containment.
		_, ok, err = store.FindDirectChat("u1", "u1")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("expected no direct chat for the u1/u1 self-pair")
		}

		chats, err := store.ListChatsByParticipant("u1")
		if err != nil {
			t.Fatalf("ListChatsByParticipant failed: %v", err)
		}
		if len(chats) != 1 {
			t.Errorf("expected 1 chat for u1, got %d", len(chats))
		}
		if chats, _ := store.ListChatsByParticipant("u3"); len(chats) != 0 {
			t.Errorf("expected no chats for u3, got %d", len(chats))
		}
	})

	t.Run("Groups", func(t *testing.T) {
		group := models.Group{ID: "g1", Name: "gophers", AdminID: "u1"}
		if err := store.CreateGroup(group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		// Same name must be rejected as a conflict.
		err := store.CreateGroup(models.Group{ID: "g2", Name: "gophers", AdminID: "u2"})
		if models.KindOf(err) != models.KindConflict {
			t.Errorf("expected conflict on duplicate name, got %v", err)
		}

		if err := store.DeleteGroup("g1"); err != nil {
			t.Fatalf("DeleteGroup failed: %v", err)
		}

		// Name is free again after deletion.
		if err := store.CreateGroup(models.Group{ID: "g3", Name: "gophers", AdminID: "u2"}); err != nil {
			t.Errorf("expected name to be reusable after delete, got %v", err)
		}
	})

	t.Run("Messages", func(t *testing.T) {
		now := time.Now().UnixMilli()
		msg1 := models.Message{
			ID:        "m1",
			ChatID:    "c1",
			AuthorID:  "u1",
			Type:      models.MessageTypeText,
			Content:   "hello",
			CreatedAt: now,
		}
		msg2 := models.Message{
			ID:        "m2",
			ChatID:    "c1",
			AuthorID:  "u2",
			Type:      models.MessageTypeVideo,
			Name:      "clip.mp4",
			Size:      1024,
			Duration:  12.5,
			CreatedAt: now + 1,
		}
		if err := store.PutMessage(msg1); err != nil {
			t.Fatalf("PutMessage 1 failed: %v", err)
		}
		if err := store.PutMessage(msg2); err != nil {
			t.Fatalf("PutMessage 2 failed: %v", err)
		}

		msgs, err := store.ListMessages("c1")
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		if len(msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(msgs))
		}
		if msgs[0].Content != "hello" {
			t.Errorf("expected chronological order, first content %q", msgs[0].Content)
		}
		if msgs[1].Duration != 12.5 {
			t.Errorf("expected duration 12.5, got %v", msgs[1].Duration)
		}

		got, err := store.GetMessage("m2")
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		if got.Type != models.MessageTypeVideo || got.Size != 1024 {
			t.Errorf("unexpected message: %+v", got)
		}

		// Update in place keeps the same key.
		got.Thumbnail = "clip.png"
		got.ThumbnailStatus = models.ThumbnailReady
		if err := store.PutMessage(got); err != nil {
			t.Fatalf("PutMessage update failed: %v", err)
		}
		updated, err := store.GetMessage("m2")
		if err != nil {
			t.Fatal(err)
		}
		if updated.ThumbnailStatus != models.ThumbnailReady {
			t.Errorf("expected thumbnail ready, got %s", updated.ThumbnailStatus)
		}

		if err := store.DeleteMessage("m1"); err != nil {
			t.Fatalf("DeleteMessage failed: %v", err)
		}
		if _, err := store.GetMessage("m1"); !models.IsNotFound(err) {
			t.Errorf("expected not-found after delete, got %v", err)
		}

		if err := store.DeleteChatMessages("c1"); err != nil {
			t.Fatalf("DeleteChatMessages failed: %v", err)
		}
		msgs, err = store.ListMessages("c1")
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 0 {
			t.Errorf("expected no messages after cascade, got %d", len(msgs))
		}
		if _, err := store.GetMessage("m2"); !models.IsNotFound(err) {
			t.Errorf("expected index cleaned up, got %v", err)
		}
	})

	t.Run("Location", func(t *testing.T) {
		msg := models.Message{
			ID:        "m3",
			ChatID:    "c1",
			AuthorID:  "u1",
			Type:      models.MessageTypeLocation,
			Location:  &models.Location{Lat: 35.7, Lng: 51.4},
			CreatedAt: time.Now().UnixMilli(),
		}
		if err := store.PutMessage(msg); err != nil {
			t.Fatalf("PutMessage failed: %v", err)
		}
		got, err := store.GetMessage("m3")
		if err != nil {
			t.Fatal(err)
		}
		if got.Location == nil || got.Location.Lat != 35.7 {
			t.Errorf("location not round-tripped: %+v", got.Location)
		}
	})
}
