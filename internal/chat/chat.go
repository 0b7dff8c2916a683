// Package chat owns the chat/group lifecycle: creation with direct-chat
// deduplication, membership mutation and cascading deletion.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alirezanaghdi47/messenger-backend/internal/media"
	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

type Store interface {
	GetUser(id string) (models.User, error)
	UpsertChat(chat models.Chat) error
	GetChat(id string) (models.Chat, error)
	DeleteChat(id string) error
	ListChatsByParticipant(userID string) ([]models.Chat, error)
	FindDirectChat(userID, peerID string) (models.Chat, bool, error)
	CreateGroup(group models.Group) error
	GetGroup(id string) (models.Group, error)
	DeleteGroup(id string) error
}

// MessagePurger releases every message binary of a chat and removes the
// message records. Implemented by the message service.
type MessagePurger interface {
	PurgeChat(ctx context.Context, chatID string) error
}

// AvatarReleaser frees a stored group avatar binary.
type AvatarReleaser interface {
	Release(area media.Area, name string) error
}

type Service struct {
	store    Store
	messages MessagePurger
	media    AvatarReleaser
	log      *slog.Logger
}

func New(store Store, messages MessagePurger, media AvatarReleaser, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		messages: messages,
		media:    media,
		log:      log,
	}
}

type GroupInput struct {
	Name           string
	Description    string
	AvatarName     string
	ParticipantIDs []string
}

// CreateDirect returns the existing direct chat for the unordered pair
// if there is one, otherwise creates it. Idempotent by design: at most
// one direct chat may exist per pair.
func (s *Service) CreateDirect(requesterID, peerID string) (models.Chat, error) {
	if err := validateID(peerID); err != nil {
		return models.Chat{}, err
	}
	if peerID == requesterID {
		return models.Chat{}, models.Validation("selfChatNotAllowed")
	}
	if _, err := s.store.GetUser(peerID); err != nil {
		return models.Chat{}, err
	}

	if existing, ok, err := s.store.FindDirectChat(requesterID, peerID); err != nil {
		return models.Chat{}, err
	} else if ok {
		return s.populate(existing)
	}

	chat := models.Chat{
		ID:             uuid.NewString(),
		Kind:           models.ChatKindDirect,
		ParticipantIDs: []string{requesterID, peerID},
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := s.store.UpsertChat(chat); err != nil {
		return models.Chat{}, err
	}

	s.log.Info("direct chat created", "chatId", chat.ID)

	return s.populate(chat)
}

// CreateGroup creates the group record and the chat referencing it. The
// requester is always a participant and becomes the group admin.
func (s *Service) CreateGroup(adminID string, in GroupInput) (models.Chat, error) {
	if in.Name == "" {
		return models.Chat{}, models.Validation("missingGroupName")
	}
	for _, id := range in.ParticipantIDs {
		if err := validateID(id); err != nil {
			return models.Chat{}, err
		}
	}

	group := models.Group{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		AvatarName:  in.AvatarName,
		AdminID:     adminID,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := s.store.CreateGroup(group); err != nil {
		return models.Chat{}, err
	}

	chat := models.Chat{
		ID:             uuid.NewString(),
		Kind:           models.ChatKindGroup,
		ParticipantIDs: union([]string{adminID}, in.ParticipantIDs),
		GroupID:        group.ID,
		CreatedAt:      group.CreatedAt,
	}
	if err := s.store.UpsertChat(chat); err != nil {
		return models.Chat{}, err
	}

	s.log.Info("group chat created", "chatId", chat.ID, "group", group.Name)

	return s.populate(chat)
}

// Join adds the given users to a group chat. Membership is a set union
// keyed by id, so re-adding an existing member changes nothing.
func (s *Service) Join(chatID string, participantIDs []string) (models.Chat, error) {
	for _, id := range participantIDs {
		if err := validateID(id); err != nil {
			return models.Chat{}, err
		}
	}

	chat, err := s.store.GetChat(chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.Kind != models.ChatKindGroup {
		return models.Chat{}, models.Validation("notAGroupChat")
	}

	chat.ParticipantIDs = union(chat.ParticipantIDs, participantIDs)
	if err := s.store.UpsertChat(chat); err != nil {
		return models.Chat{}, err
	}

	return s.populate(chat)
}

// Leave removes exactly the requester from the participant set. An
// empty chat is not auto-deleted; deletion is always explicit.
func (s *Service) Leave(chatID, userID string) (models.Chat, error) {
	chat, err := s.store.GetChat(chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.Kind != models.ChatKindGroup {
		return models.Chat{}, models.Validation("notAGroupChat")
	}

	remaining := make([]string, 0, len(chat.ParticipantIDs))
	for _, id := range chat.ParticipantIDs {
		if id != userID {
			remaining = append(remaining, id)
		}
	}
	chat.ParticipantIDs = remaining

	if err := s.store.UpsertChat(chat); err != nil {
		return models.Chat{}, err
	}

	return s.populate(chat)
}

// Delete removes a chat and everything owned by it: the group and its
// avatar binary for group chats, then every message with its backing
// binaries, then the chat record itself. The cascade is not atomic;
// each release step is idempotent so a failed cascade can be re-issued.
func (s *Service) Delete(ctx context.Context, chatID string) (models.Chat, error) {
	chat, err := s.store.GetChat(chatID)
	if err != nil {
		return models.Chat{}, err
	}
	populated, err := s.populate(chat)
	if err != nil {
		return models.Chat{}, err
	}

	if chat.Kind == models.ChatKindGroup && chat.GroupID != "" {
		group, err := s.store.GetGroup(chat.GroupID)
		switch {
		case models.IsNotFound(err):
			// Already gone from an earlier partial cascade.
		case err != nil:
			return models.Chat{}, err
		default:
			if group.AvatarName != "" {
				if err := s.media.Release(media.AreaImage, group.AvatarName); err != nil {
					return models.Chat{}, err
				}
			}
			if err := s.store.DeleteGroup(group.ID); err != nil {
				return models.Chat{}, err
			}
		}
	}

	if err := s.messages.PurgeChat(ctx, chatID); err != nil {
		return models.Chat{}, err
	}

	if err := s.store.DeleteChat(chatID); err != nil {
		return models.Chat{}, err
	}

	s.log.Info("chat deleted", "chatId", chatID, "kind", chat.Kind)

	return populated, nil
}

func (s *Service) List(userID string) ([]models.Chat, error) {
	chats, err := s.store.ListChatsByParticipant(userID)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		if chats[i], err = s.populate(chats[i]); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

func (s *Service) Get(chatID string) (models.Chat, error) {
	chat, err := s.store.GetChat(chatID)
	if err != nil {
		return models.Chat{}, err
	}
	return s.populate(chat)
}

// populate resolves the group and participant references the way the
// store's callers expect them joined.
func (s *Service) populate(chat models.Chat) (models.Chat, error) {
	if chat.GroupID != "" {
		group, err := s.store.GetGroup(chat.GroupID)
		if err == nil {
			chat.Group = &group
		} else if !models.IsNotFound(err) {
			return models.Chat{}, err
		}
	}

	participants := make([]models.User, 0, len(chat.ParticipantIDs))
	for _, id := range chat.ParticipantIDs {
		user, err := s.store.GetUser(id)
		if err != nil {
			if models.IsNotFound(err) {
				continue
			}
			return models.Chat{}, err
		}
		participants = append(participants, user)
	}
	chat.Participants = participants
	return chat, nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.Validation("invalidId")
	}
	return nil
}

func union(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, id := range base {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range extra {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
