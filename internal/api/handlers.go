// Package api exposes the REST surface: chat lifecycle, message
// ingestion and media retrieval.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/alirezanaghdi47/messenger-backend/internal/chat"
	"github.com/alirezanaghdi47/messenger-backend/internal/media"
	"github.com/alirezanaghdi47/messenger-backend/internal/models"
	"github.com/alirezanaghdi47/messenger-backend/internal/ws"
)

type ChatService interface {
	CreateDirect(requesterID, peerID string) (models.Chat, error)
	CreateGroup(adminID string, in chat.GroupInput) (models.Chat, error)
	Join(chatID string, participantIDs []string) (models.Chat, error)
	Leave(chatID, userID string) (models.Chat, error)
	Delete(ctx context.Context, chatID string) (models.Chat, error)
	List(userID string) ([]models.Chat, error)
	Get(chatID string) (models.Chat, error)
}

type MessageService interface {
	AddText(chatID, authorID, text string) (models.Message, error)
	AddLocation(chatID, authorID string, loc models.Location) (models.Message, error)
	AddFile(chatID, authorID string, up media.Upload) (models.Message, error)
	AddImage(chatID, authorID string, up media.Upload) (models.Message, error)
	AddAudio(ctx context.Context, chatID, authorID string, up media.Upload) (models.Message, error)
	AddVideo(ctx context.Context, chatID, authorID string, up media.Upload) (models.Message, error)
	Delete(messageID string) (models.Message, error)
	List(chatID string) ([]models.Message, error)
}

type UserDirectory interface {
	ListUsers() ([]models.User, error)
}

type MediaStore interface {
	IngestImage(senderID string, up media.Upload) (media.Asset, error)
	Open(area media.Area, name string) (*os.File, os.FileInfo, error)
}

// EventSink is the slice of the hub the handlers push change events to.
type EventSink interface {
	DeliverToParticipants(chat models.Chat, sourceConnID string, ev ws.Event)
	RoomBroadcast(room, sourceConnID string, ev ws.Event)
}

type API struct {
	chats    ChatService
	messages MessageService
	users    UserDirectory
	media    MediaStore
	events   EventSink
	verifier ws.TokenVerifier
	log      *slog.Logger
}

func New(chats ChatService, messages MessageService, users UserDirectory, media MediaStore, events EventSink, verifier ws.TokenVerifier, log *slog.Logger) *API {
	return &API{
		chats:    chats,
		messages: messages,
		users:    users,
		media:    media,
		events:   events,
		verifier: verifier,
		log:      log,
	}
}

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (a *API) writeSuccess(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(envelope{Status: "success", Data: data}); err != nil {
		a.log.Error("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch models.KindOf(err) {
	case models.KindValidation:
		code = http.StatusBadRequest
	case models.KindNotFound:
		code = http.StatusNotFound
	case models.KindConflict:
		code = http.StatusConflict
	case models.KindDependency:
		a.log.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if encErr := json.NewEncoder(w).Encode(envelope{Status: "failure", Message: models.KeyOf(err)}); encErr != nil {
		a.log.Error("failed to encode error response", "error", encErr)
	}
}

func (a *API) getToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if t := r.Header.Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth resolves the caller before the handler runs.
func (a *API) RequireAuth(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.verifier.Verify(a.getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

func (a *API) ListUsersHandler(w http.ResponseWriter, r *http.Request, userID string) {
	users, err := a.users.ListUsers()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, users)
}

func (a *API) ListChatsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	chats, err := a.chats.List(userID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, chats)
}

func (a *API) GetChatHandler(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := a.chats.Get(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, c)
}

func (a *API) CreateDirectChatHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		PeerID string `json:"peerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, models.Validation("invalidBody"))
		return
	}

	c, err := a.chats.CreateDirect(userID, req.PeerID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.events.DeliverToParticipants(c, "", ws.Event{Name: models.EventChatAdded, Payload: c})
	a.writeSuccess(w, http.StatusCreated, c)
}

// CreateGroupChatHandler accepts JSON, or multipart form data when the
// group comes with an avatar image.
func (a *API) CreateGroupChatHandler(w http.ResponseWriter, r *http.Request, userID string) {
	in, err := a.groupInput(r, userID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	c, err := a.chats.CreateGroup(userID, in)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.events.DeliverToParticipants(c, "", ws.Event{Name: models.EventChatAdded, Payload: c})
	a.writeSuccess(w, http.StatusCreated, c)
}

func (a *API) groupInput(r *http.Request, userID string) (chat.GroupInput, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req struct {
			Name           string   `json:"name"`
			Description    string   `json:"description"`
			ParticipantIDs []string `json:"participantIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return chat.GroupInput{}, models.Validation("invalidBody")
		}
		return chat.GroupInput{
			Name:           req.Name,
			Description:    req.Description,
			ParticipantIDs: req.ParticipantIDs,
		}, nil
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return chat.GroupInput{}, models.Validation("invalidBody")
	}
	in := chat.GroupInput{
		Name:           r.FormValue("name"),
		Description:    r.FormValue("description"),
		ParticipantIDs: r.Form["participantIds"],
	}

	file, header, err := r.FormFile("avatar")
	if err == http.ErrMissingFile {
		return in, nil
	}
	if err != nil {
		return chat.GroupInput{}, models.Validation("invalidBody")
	}
	defer func() { _ = file.Close() }()

	asset, err := a.media.IngestImage(userID, media.Upload{Name: header.Filename, Data: file})
	if err != nil {
		return chat.GroupInput{}, err
	}
	in.AvatarName = asset.Name
	return in, nil
}

func (a *API) JoinChatHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		ParticipantIDs []string `json:"participantIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, models.Validation("invalidBody"))
		return
	}

	c, err := a.chats.Join(r.PathValue("id"), req.ParticipantIDs)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.events.DeliverToParticipants(c, "", ws.Event{Name: models.EventGroupJoined, Payload: c})
	a.writeSuccess(w, http.StatusOK, c)
}

func (a *API) LeaveChatHandler(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := a.chats.Leave(r.PathValue("id"), userID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	// The leaver is gone from the participant set, so tell them too.
	a.events.RoomBroadcast(ws.UserRoom(userID), "", ws.Event{Name: models.EventGroupLeft, Payload: c})
	a.events.DeliverToParticipants(c, "", ws.Event{Name: models.EventGroupLeft, Payload: c})
	a.writeSuccess(w, http.StatusOK, c)
}

func (a *API) DeleteChatHandler(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := a.chats.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.events.DeliverToParticipants(c, "", ws.Event{Name: models.EventChatDeleted, Payload: c})
	a.writeSuccess(w, http.StatusOK, c)
}

func (a *API) ListMessagesHandler(w http.ResponseWriter, r *http.Request, userID string) {
	msgs, err := a.messages.List(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, msgs)
}

func (a *API) AddTextMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, models.Validation("invalidBody"))
		return
	}

	msg, err := a.messages.AddText(r.PathValue("id"), userID, req.Content)
	a.finishMessage(w, msg, err)
}

func (a *API) AddLocationMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req models.Location
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, models.Validation("invalidBody"))
		return
	}

	msg, err := a.messages.AddLocation(r.PathValue("id"), userID, req)
	a.finishMessage(w, msg, err)
}

func (a *API) AddFileMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	a.addBinaryMessage(w, r, userID, func(up media.Upload) (models.Message, error) {
		return a.messages.AddFile(r.PathValue("id"), userID, up)
	})
}

func (a *API) AddImageMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	a.addBinaryMessage(w, r, userID, func(up media.Upload) (models.Message, error) {
		return a.messages.AddImage(r.PathValue("id"), userID, up)
	})
}

func (a *API) AddAudioMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	a.addBinaryMessage(w, r, userID, func(up media.Upload) (models.Message, error) {
		return a.messages.AddAudio(r.Context(), r.PathValue("id"), userID, up)
	})
}

func (a *API) AddVideoMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	a.addBinaryMessage(w, r, userID, func(up media.Upload) (models.Message, error) {
		return a.messages.AddVideo(r.Context(), r.PathValue("id"), userID, up)
	})
}

const maxUploadMemory = 32 << 20

func (a *API) addBinaryMessage(w http.ResponseWriter, r *http.Request, userID string, add func(media.Upload) (models.Message, error)) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		a.writeError(w, models.Validation("invalidBody"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, models.Validation("missingFile"))
		return
	}
	defer func() { _ = file.Close() }()

	msg, err := add(media.Upload{Name: header.Filename, Data: file})
	a.finishMessage(w, msg, err)
}

func (a *API) finishMessage(w http.ResponseWriter, msg models.Message, err error) {
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.events.RoomBroadcast(ws.ChatRoom(msg.ChatID), "", ws.Event{Name: models.EventMessageAdded, Payload: msg})
	a.writeSuccess(w, http.StatusCreated, msg)
}

func (a *API) DeleteMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	msg, err := a.messages.Delete(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	ref := struct {
		ID     string `json:"id"`
		ChatID string `json:"chatId"`
	}{ID: msg.ID, ChatID: msg.ChatID}
	a.events.RoomBroadcast(ws.ChatRoom(msg.ChatID), "", ws.Event{Name: models.EventMessageDeleted, Payload: ref})
	a.writeSuccess(w, http.StatusOK, ref)
}

// GetMediaHandler streams a stored binary. ServeContent handles range
// requests, so audio and video seek works out of the box.
func (a *API) GetMediaHandler(w http.ResponseWriter, r *http.Request) {
	area, err := media.ParseArea(r.PathValue("area"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	f, info, err := a.media.Open(area, r.PathValue("name"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	defer func() { _ = f.Close() }()

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
