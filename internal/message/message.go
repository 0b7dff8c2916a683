// Package message implements the ingestion pipeline for chat messages:
// validation, content processing, persistence and binary lifecycle.
package message

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alirezanaghdi47/messenger-backend/internal/media"
	"github.com/alirezanaghdi47/messenger-backend/internal/metrics"
	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

type Store interface {
	GetChat(id string) (models.Chat, error)
	GetUser(id string) (models.User, error)
	PutMessage(m models.Message) error
	GetMessage(id string) (models.Message, error)
	DeleteMessage(id string) error
	ListMessages(chatID string) ([]models.Message, error)
	DeleteChatMessages(chatID string) error
}

// Pipeline is the slice of the media pipeline the service consumes.
type Pipeline interface {
	IngestFile(senderID string, up media.Upload) (media.Asset, error)
	IngestImage(senderID string, up media.Upload) (media.Asset, error)
	IngestAudio(ctx context.Context, senderID string, up media.Upload) (media.Asset, error)
	IngestVideo(ctx context.Context, senderID string, up media.Upload) (media.Asset, error)
	ExtractThumbnail(ctx context.Context, video media.Asset) (media.Asset, error)
	Release(area media.Area, name string) error
}

// Notifier receives message changes that happen outside a request,
// currently only thumbnail completion.
type Notifier interface {
	MessageUpdated(chat models.Chat, msg models.Message)
}

type Service struct {
	store    Store
	pipeline Pipeline
	notifier Notifier
	log      *slog.Logger

	sanitize func(string) string
	render   func(string) (string, error)
}

func New(store Store, pipeline Pipeline, notifier Notifier, sanitize func(string) string, render func(string) (string, error), log *slog.Logger) *Service {
	return &Service{
		store:    store,
		pipeline: pipeline,
		notifier: notifier,
		log:      log,
		sanitize: sanitize,
		render:   render,
	}
}

// AddText stores a text message. The body is sanitized before
// persistence and a rendered HTML form is stored alongside it.
func (s *Service) AddText(chatID, authorID, text string) (models.Message, error) {
	if _, err := s.memberChat(chatID, authorID); err != nil {
		return models.Message{}, err
	}

	clean := s.sanitize(text)
	if clean == "" {
		return models.Message{}, models.Validation("missingContent")
	}
	html, err := s.render(clean)
	if err != nil {
		return models.Message{}, models.Dependency(err)
	}

	msg := s.newMessage(chatID, authorID, models.MessageTypeText)
	msg.Content = clean
	msg.ContentHTML = html

	return s.put(msg)
}

func (s *Service) AddLocation(chatID, authorID string, loc models.Location) (models.Message, error) {
	if _, err := s.memberChat(chatID, authorID); err != nil {
		return models.Message{}, err
	}

	msg := s.newMessage(chatID, authorID, models.MessageTypeLocation)
	msg.Location = &loc

	return s.put(msg)
}

func (s *Service) AddFile(chatID, authorID string, up media.Upload) (models.Message, error) {
	if _, err := s.memberChat(chatID, authorID); err != nil {
		return models.Message{}, err
	}

	asset, err := s.pipeline.IngestFile(authorID, up)
	if err != nil {
		return models.Message{}, err
	}
	return s.put(s.binaryMessage(chatID, authorID, models.MessageTypeFile, asset))
}

func (s *Service) AddImage(chatID, authorID string, up media.Upload) (models.Message, error) {
	if _, err := s.memberChat(chatID, authorID); err != nil {
		return models.Message{}, err
	}

	asset, err := s.pipeline.IngestImage(authorID, up)
	if err != nil {
		return models.Message{}, err
	}
	return s.put(s.binaryMessage(chatID, authorID, models.MessageTypeImage, asset))
}

func (s *Service) AddAudio(ctx context.Context, chatID, authorID string, up media.Upload) (models.Message, error) {
	if _, err := s.memberChat(chatID, authorID); err != nil {
		return models.Message{}, err
	}

	asset, err := s.pipeline.IngestAudio(ctx, authorID, up)
	if err != nil {
		return models.Message{}, err
	}
	return s.put(s.binaryMessage(chatID, authorID, models.MessageTypeAudio, asset))
}

// AddVideo stores the video message immediately with a pending
// thumbnail and finishes the thumbnail in the background. Clients get
// the completed record through a messageUpdated notification.
func (s *Service) AddVideo(ctx context.Context, chatID, authorID string, up media.Upload) (models.Message, error) {
	chat, err := s.memberChat(chatID, authorID)
	if err != nil {
		return models.Message{}, err
	}

	asset, err := s.pipeline.IngestVideo(ctx, authorID, up)
	if err != nil {
		return models.Message{}, err
	}

	msg := s.binaryMessage(chatID, authorID, models.MessageTypeVideo, asset)
	msg.ThumbnailStatus = models.ThumbnailPending

	msg, err = s.put(msg)
	if err != nil {
		return models.Message{}, err
	}

	// The request must not block on frame extraction, and a client
	// disconnect must not cancel it.
	go s.completeThumbnail(context.WithoutCancel(ctx), chat, msg, asset)

	return msg, nil
}

func (s *Service) completeThumbnail(ctx context.Context, chat models.Chat, msg models.Message, video media.Asset) {
	thumb, err := s.pipeline.ExtractThumbnail(ctx, video)
	if err != nil {
		s.log.Error("thumbnail extraction failed", "messageId", msg.ID, "error", err)
		metrics.MediaJobs.WithLabelValues("thumbnail", "failure").Inc()
		msg.ThumbnailStatus = models.ThumbnailFailed
	} else {
		metrics.MediaJobs.WithLabelValues("thumbnail", "success").Inc()
		msg.Thumbnail = thumb.Name
		msg.ThumbnailStatus = models.ThumbnailReady
	}

	// The message may have been deleted while the frame was being
	// extracted; writing would resurrect a record whose binaries are
	// already released. Drop the orphan thumbnail instead.
	if _, lookErr := s.store.GetMessage(msg.ID); lookErr != nil {
		if !models.IsNotFound(lookErr) {
			s.log.Error("thumbnail completion lookup failed", "messageId", msg.ID, "error", lookErr)
		}
		if msg.Thumbnail != "" {
			_ = s.pipeline.Release(media.AreaThumbnail, msg.Thumbnail)
		}
		return
	}

	// Same id and timestamp, so this overwrites the pending record.
	if err := s.store.PutMessage(msg); err != nil {
		s.log.Error("thumbnail status update failed", "messageId", msg.ID, "error", err)
		return
	}

	s.notifier.MessageUpdated(chat, s.withAuthor(msg))
}

// Delete releases the message binaries before removing the record, so
// an interrupted delete can be retried without leaking files.
func (s *Service) Delete(messageID string) (models.Message, error) {
	msg, err := s.store.GetMessage(messageID)
	if err != nil {
		return models.Message{}, err
	}

	if err := s.releaseBinaries(msg); err != nil {
		return models.Message{}, err
	}
	if err := s.store.DeleteMessage(messageID); err != nil {
		return models.Message{}, err
	}

	s.log.Info("message deleted", "messageId", messageID, "type", msg.Type)

	return msg, nil
}

// List returns the chat history in chronological order with authors
// resolved.
func (s *Service) List(chatID string) ([]models.Message, error) {
	if _, err := s.store.GetChat(chatID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(chatID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i] = s.withAuthor(msgs[i])
	}
	return msgs, nil
}

// PurgeChat releases every binary owned by the chat's messages and then
// drops the records. Used by the chat deletion cascade.
func (s *Service) PurgeChat(_ context.Context, chatID string) error {
	msgs, err := s.store.ListMessages(chatID)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := s.releaseBinaries(msg); err != nil {
			return err
		}
	}
	return s.store.DeleteChatMessages(chatID)
}

func (s *Service) releaseBinaries(msg models.Message) error {
	if msg.Type.HasBinary() && msg.Name != "" {
		if err := s.pipeline.Release(areaFor(msg.Type), msg.Name); err != nil {
			return err
		}
	}
	if msg.Thumbnail != "" {
		if err := s.pipeline.Release(media.AreaThumbnail, msg.Thumbnail); err != nil {
			return err
		}
	}
	return nil
}

// memberChat loads the chat and checks the author belongs to it.
func (s *Service) memberChat(chatID, authorID string) (models.Chat, error) {
	chat, err := s.store.GetChat(chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.HasParticipant(authorID) {
		return models.Chat{}, models.Validation("notAParticipant")
	}
	return chat, nil
}

func (s *Service) newMessage(chatID, authorID string, typ models.MessageType) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		AuthorID:  authorID,
		Type:      typ,
		CreatedAt: time.Now().UnixMilli(),
	}
}

func (s *Service) binaryMessage(chatID, authorID string, typ models.MessageType, asset media.Asset) models.Message {
	msg := s.newMessage(chatID, authorID, typ)
	msg.Name = asset.Name
	msg.Size = asset.Size
	msg.Duration = asset.Duration
	return msg
}

func (s *Service) put(msg models.Message) (models.Message, error) {
	if err := s.store.PutMessage(msg); err != nil {
		return models.Message{}, err
	}
	metrics.MessagesIngested.WithLabelValues(string(msg.Type)).Inc()
	return s.withAuthor(msg), nil
}

func (s *Service) withAuthor(msg models.Message) models.Message {
	if user, err := s.store.GetUser(msg.AuthorID); err == nil {
		msg.Author = &user
	}
	return msg
}

func areaFor(typ models.MessageType) media.Area {
	switch typ {
	case models.MessageTypeImage:
		return media.AreaImage
	case models.MessageTypeAudio:
		return media.AreaAudio
	case models.MessageTypeVideo:
		return media.AreaVideo
	default:
		return media.AreaFile
	}
}
