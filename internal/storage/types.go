package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID          string `msgpack:"id"`
	UserName    string `msgpack:"userName"`
	DisplayName string `msgpack:"displayName"`
	AvatarURL   string `msgpack:"avatarUrl"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBChat struct {
	ID             string   `msgpack:"id"`
	Kind           string   `msgpack:"kind"`
	ParticipantIDs []string `msgpack:"participantIds"`
	GroupID        string   `msgpack:"groupId"`
	CreatedAt      int64    `msgpack:"createdAt"`
}

func (c *DBChat) Key() []byte {
	return []byte(c.ID)
}

func (c *DBChat) MarshalBinary() (data []byte, err error) {
	type alias DBChat
	return msgpack.Marshal((*alias)(c))
}

func (c *DBChat) UnmarshalBinary(data []byte) error {
	type alias DBChat
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBGroup struct {
	ID          string `msgpack:"id"`
	Name        string `msgpack:"name"`
	Description string `msgpack:"description"`
	AvatarName  string `msgpack:"avatarName"`
	AdminID     string `msgpack:"adminId"`
	CreatedAt   int64  `msgpack:"createdAt"`
}

func (g *DBGroup) Key() []byte {
	return []byte(g.ID)
}

func (g *DBGroup) MarshalBinary() (data []byte, err error) {
	type alias DBGroup
	return msgpack.Marshal((*alias)(g))
}

func (g *DBGroup) UnmarshalBinary(data []byte) error {
	type alias DBGroup
	return msgpack.Unmarshal(data, (*alias)(g))
}

type DBLocation struct {
	Lat float64 `msgpack:"lat"`
	Lng float64 `msgpack:"lng"`
}

type DBMessage struct {
	ID              string      `msgpack:"id"`
	ChatID          string      `msgpack:"chatId"`
	AuthorID        string      `msgpack:"authorId"`
	Type            string      `msgpack:"type"`
	Content         string      `msgpack:"content"`
	ContentHTML     string      `msgpack:"contentHtml"`
	Location        *DBLocation `msgpack:"location"`
	Name            string      `msgpack:"name"`
	Size            int64       `msgpack:"size"`
	Duration        float64     `msgpack:"duration"`
	Thumbnail       string      `msgpack:"thumbnail"`
	ThumbnailStatus string      `msgpack:"thumbnailStatus"`
	CreatedAt       int64       `msgpack:"createdAt"`
}

// Key orders messages chronologically within a chat bucket; the id
// suffix disambiguates messages created in the same millisecond.
func (m *DBMessage) Key() []byte {
	key := make([]byte, 8, 8+len(m.ID))
	binary.BigEndian.PutUint64(key, uint64(m.CreatedAt))
	return append(key, m.ID...)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}
