package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

var (
	bucketUsers      = []byte("users")
	bucketChats      = []byte("chats")
	bucketGroups     = []byte("groups")
	bucketGroupNames = []byte("group_names")
	bucketMessages   = []byte("messages")
	bucketMessageIdx = []byte("message_index")
)

// messageRef locates a message record: the chat sub-bucket it lives in
// and its key there. Stored in the message index keyed by message id.
type messageRef struct {
	ChatID string `msgpack:"chatId"`
	Key    []byte `msgpack:"key"`
}

type BboltStore struct {
	db *bbolt.DB
}

func NewBboltStore(path string) (*BboltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketChats,
			bucketGroups,
			bucketGroupNames,
			bucketMessages,
			bucketMessageIdx,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStore{db: db}, nil
}

func (s *BboltStore) Close() error {
	return s.db.Close()
}

// UpsertUser stores a projection of an externally managed user profile.
func (s *BboltStore) UpsertUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbUser := &DBUser{
			ID:          user.ID,
			UserName:    user.UserName,
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarURL,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketUsers).Put(dbUser.Key(), data)
	})
}

func (s *BboltStore) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return models.NotFound("userNotFound")
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = userFromDB(dbUser)
		return nil
	})
	return user, err
}

func (s *BboltStore) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, userFromDB(dbUser))
			return nil
		})
	})
	return users, err
}

// UpsertChat saves a chat record. Membership mutations go through here
// as well; the caller owns the participant-set semantics.
func (s *BboltStore) UpsertChat(chat models.Chat) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbChat := chatToDB(chat)
		data, err := dbChat.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketChats).Put(dbChat.Key(), data)
	})
}

func (s *BboltStore) GetChat(id string) (models.Chat, error) {
	var chat models.Chat
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChats).Get([]byte(id))
		if data == nil {
			return models.NotFound("chatNotFound")
		}
		var dbChat DBChat
		if err := dbChat.UnmarshalBinary(data); err != nil {
			return err
		}
		chat = chatFromDB(dbChat)
		return nil
	})
	return chat, err
}

func (s *BboltStore) DeleteChat(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChats).Delete([]byte(id))
	})
}

// ListChatsByParticipant returns every chat the user belongs to,
// newest first.
func (s *BboltStore) ListChatsByParticipant(userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChats).ForEach(func(k, v []byte) error {
			var dbChat DBChat
			if err := dbChat.UnmarshalBinary(v); err != nil {
				return err
			}
			chat := chatFromDB(dbChat)
			if chat.HasParticipant(userID) {
				chats = append(chats, chat)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt > chats[j].CreatedAt
	})
	return chats, nil
}

// FindDirectChat looks up the direct chat for an unordered user pair.
// The match is exact set equality, not containment, so a degenerate
// lookup never resolves to somebody else's chat.
func (s *BboltStore) FindDirectChat(userID, peerID string) (models.Chat, bool, error) {
	var (
		chat  models.Chat
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChats).ForEach(func(k, v []byte) error {
			if found {
				return nil
			}
			var dbChat DBChat
			if err := dbChat.UnmarshalBinary(v); err != nil {
				return err
			}
			c := chatFromDB(dbChat)
			if c.Kind == models.ChatKindDirect && isExactPair(c.ParticipantIDs, userID, peerID) {
				chat = c
				found = true
			}
			return nil
		})
	})
	return chat, found, err
}

func isExactPair(ids []string, userID, peerID string) bool {
	if len(ids) != 2 {
		return false
	}
	return (ids[0] == userID && ids[1] == peerID) || (ids[0] == peerID && ids[1] == userID)
}

// CreateGroup inserts a group, enforcing name uniqueness through the
// name index inside the same transaction.
func (s *BboltStore) CreateGroup(group models.Group) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketGroupNames)
		if names.Get([]byte(group.Name)) != nil {
			return models.Conflict("duplicateGroupName")
		}

		dbGroup := &DBGroup{
			ID:          group.ID,
			Name:        group.Name,
			Description: group.Description,
			AvatarName:  group.AvatarName,
			AdminID:     group.AdminID,
			CreatedAt:   group.CreatedAt,
		}
		data, err := dbGroup.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketGroups).Put(dbGroup.Key(), data); err != nil {
			return err
		}
		return names.Put([]byte(group.Name), []byte(group.ID))
	})
}

func (s *BboltStore) GetGroup(id string) (models.Group, error) {
	var group models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketGroups).Get([]byte(id))
		if data == nil {
			return models.NotFound("groupNotFound")
		}
		var dbGroup DBGroup
		if err := dbGroup.UnmarshalBinary(data); err != nil {
			return err
		}
		group = models.Group{
			ID:          dbGroup.ID,
			Name:        dbGroup.Name,
			Description: dbGroup.Description,
			AvatarName:  dbGroup.AvatarName,
			AdminID:     dbGroup.AdminID,
			CreatedAt:   dbGroup.CreatedAt,
		}
		return nil
	})
	return group, err
}

func (s *BboltStore) DeleteGroup(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketGroups).Get([]byte(id))
		if data == nil {
			return nil
		}
		var dbGroup DBGroup
		if err := dbGroup.UnmarshalBinary(data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketGroupNames).Delete([]byte(dbGroup.Name)); err != nil {
			return err
		}
		return tx.Bucket(bucketGroups).Delete([]byte(id))
	})
}

// PutMessage saves a message into its chat sub-bucket and records the
// id -> location index entry used for by-id lookups.
func (s *BboltStore) PutMessage(message models.Message) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if message.ChatID == "" {
			return models.Validation("invalidChatId")
		}

		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(message.ChatID))
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}

		dbMsg := messageToDB(message)
		data, err := dbMsg.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := chatBucket.Put(dbMsg.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		ref, err := msgpack.Marshal(messageRef{ChatID: message.ChatID, Key: dbMsg.Key()})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMessageIdx).Put([]byte(message.ID), ref)
	})
}

func (s *BboltStore) GetMessage(id string) (models.Message, error) {
	var message models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbMsg, err := getMessageTx(tx, id)
		if err != nil {
			return err
		}
		message = messageFromDB(*dbMsg)
		return nil
	})
	return message, err
}

func (s *BboltStore) DeleteMessage(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		ref, err := getRefTx(tx, id)
		if err != nil {
			return err
		}
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(ref.ChatID))
		if chatBucket != nil {
			if err := chatBucket.Delete(ref.Key); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketMessageIdx).Delete([]byte(id))
	})
}

func (s *BboltStore) ListMessages(chatID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil
		}
		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, messageFromDB(dbMsg))
			return nil
		})
	})
	return messages, err
}

// DeleteChatMessages drops the whole chat sub-bucket and the index
// entries pointing into it.
func (s *BboltStore) DeleteChatMessages(chatID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		main := tx.Bucket(bucketMessages)
		chatBucket := main.Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil
		}

		idx := tx.Bucket(bucketMessageIdx)
		err := chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			return idx.Delete([]byte(dbMsg.ID))
		})
		if err != nil {
			return err
		}
		return main.DeleteBucket([]byte(chatID))
	})
}

func getRefTx(tx *bbolt.Tx, id string) (messageRef, error) {
	var ref messageRef
	data := tx.Bucket(bucketMessageIdx).Get([]byte(id))
	if data == nil {
		return ref, models.NotFound("messageNotFound")
	}
	if err := msgpack.Unmarshal(data, &ref); err != nil {
		return ref, err
	}
	return ref, nil
}

func getMessageTx(tx *bbolt.Tx, id string) (*DBMessage, error) {
	ref, err := getRefTx(tx, id)
	if err != nil {
		return nil, err
	}
	chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(ref.ChatID))
	if chatBucket == nil {
		return nil, models.NotFound("messageNotFound")
	}
	data := chatBucket.Get(ref.Key)
	if data == nil {
		return nil, models.NotFound("messageNotFound")
	}
	var dbMsg DBMessage
	if err := dbMsg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &dbMsg, nil
}

func userFromDB(u DBUser) models.User {
	return models.User{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

func chatToDB(c models.Chat) *DBChat {
	return &DBChat{
		ID:             c.ID,
		Kind:           string(c.Kind),
		ParticipantIDs: c.ParticipantIDs,
		GroupID:        c.GroupID,
		CreatedAt:      c.CreatedAt,
	}
}

func chatFromDB(c DBChat) models.Chat {
	return models.Chat{
		ID:             c.ID,
		Kind:           models.ChatKind(c.Kind),
		ParticipantIDs: c.ParticipantIDs,
		GroupID:        c.GroupID,
		CreatedAt:      c.CreatedAt,
	}
}

func messageToDB(m models.Message) *DBMessage {
	dbMsg := &DBMessage{
		ID:              m.ID,
		ChatID:          m.ChatID,
		AuthorID:        m.AuthorID,
		Type:            string(m.Type),
		Content:         m.Content,
		ContentHTML:     m.ContentHTML,
		Name:            m.Name,
		Size:            m.Size,
		Duration:        m.Duration,
		Thumbnail:       m.Thumbnail,
		ThumbnailStatus: string(m.ThumbnailStatus),
		CreatedAt:       m.CreatedAt,
	}
	if m.Location != nil {
		dbMsg.Location = &DBLocation{Lat: m.Location.Lat, Lng: m.Location.Lng}
	}
	return dbMsg
}

func messageFromDB(m DBMessage) models.Message {
	msg := models.Message{
		ID:              m.ID,
		ChatID:          m.ChatID,
		AuthorID:        m.AuthorID,
		Type:            models.MessageType(m.Type),
		Content:         m.Content,
		ContentHTML:     m.ContentHTML,
		Name:            m.Name,
		Size:            m.Size,
		Duration:        m.Duration,
		Thumbnail:       m.Thumbnail,
		ThumbnailStatus: models.ThumbnailStatus(m.ThumbnailStatus),
		CreatedAt:       m.CreatedAt,
	}
	if m.Location != nil {
		msg.Location = &models.Location{Lat: m.Location.Lat, Lng: m.Location.Lng}
	}
	return msg
}
