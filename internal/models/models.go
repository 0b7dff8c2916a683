package models

type ChatKind string

const (
	ChatKindDirect ChatKind = "direct"
	ChatKindGroup  ChatKind = "group"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeFile     MessageType = "file"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeLocation MessageType = "location"
)

// HasBinary reports whether messages of this type carry a stored binary
// that must be released when the message is deleted.
func (t MessageType) HasBinary() bool {
	switch t {
	case MessageTypeFile, MessageTypeImage, MessageTypeVideo, MessageTypeAudio:
		return true
	}
	return false
}

type ThumbnailStatus string

const (
	ThumbnailNone    ThumbnailStatus = ""
	ThumbnailPending ThumbnailStatus = "pending"
	ThumbnailReady   ThumbnailStatus = "ready"
	ThumbnailFailed  ThumbnailStatus = "failed"
)

// User is the projection of the external profile service the core reads.
type User struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AvatarName  string `json:"avatarName,omitempty"`
	AdminID     string `json:"adminId"`
	CreatedAt   int64  `json:"createdAt"`
}

// Chat is a conversation between two users (direct) or a group.
// ParticipantIDs is a set: unique, non-empty. GroupID is set iff
// Kind == ChatKindGroup.
type Chat struct {
	ID             string   `json:"id"`
	Kind           ChatKind `json:"kind"`
	ParticipantIDs []string `json:"participantIds"`
	GroupID        string   `json:"groupId,omitempty"`
	CreatedAt      int64    `json:"createdAt"`

	// Populated on read, never stored.
	Group        *Group `json:"group,omitempty"`
	Participants []User `json:"participants,omitempty"`
}

// HasParticipant reports membership by id.
func (c Chat) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Location is the payload of a location message.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Message is a tagged variant: Type determines which fields are
// meaningful. Content is the text body for text messages and empty for
// every other type; binary types carry the stored asset name in Name.
type Message struct {
	ID              string          `json:"id"`
	ChatID          string          `json:"chatId"`
	AuthorID        string          `json:"authorId"`
	Type            MessageType     `json:"type"`
	Content         string          `json:"content,omitempty"`
	ContentHTML     string          `json:"contentHtml,omitempty"`
	Location        *Location       `json:"location,omitempty"`
	Name            string          `json:"name,omitempty"`
	Size            int64           `json:"size,omitempty"`
	Duration        float64         `json:"duration,omitempty"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	ThumbnailStatus ThumbnailStatus `json:"thumbnailStatus,omitempty"`
	CreatedAt       int64           `json:"createdAt"`

	// Populated on read, never stored.
	Author *User `json:"author,omitempty"`
}

// PresenceEntry is the ephemeral record of one connected user. One
// entry per UserID is authoritative; a later connection for the same
// user supersedes the previous entry.
type PresenceEntry struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
	JoinedAt     int64  `json:"joinedAt"`
}

type EventName string

const (
	EventOnline             EventName = "online"
	EventOffline            EventName = "offline"
	EventActiveUsersChanged EventName = "activeUsersChanged"
	EventJoinRoom           EventName = "joinRoom"
	EventLeaveRoom          EventName = "leaveRoom"
	EventChatAdded          EventName = "chatAdded"
	EventChatDeleted        EventName = "chatDeleted"
	EventGroupJoined        EventName = "groupJoined"
	EventGroupLeft          EventName = "groupLeft"
	EventMessageAdded       EventName = "messageAdded"
	EventMessageUpdated     EventName = "messageUpdated"
	EventMessageDeleted     EventName = "messageDeleted"
	EventTypingStarted      EventName = "typingStarted"
	EventTypingStopped      EventName = "typingStopped"
	EventError              EventName = "error"
)
