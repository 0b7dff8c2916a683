package message

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alirezanaghdi47/messenger-backend/internal/content"
	"github.com/alirezanaghdi47/messenger-backend/internal/media"
	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

type fakeStore struct {
	users    map[string]models.User
	chats    map[string]models.Chat
	messages map[string]models.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]models.User{},
		chats:    map[string]models.Chat{},
		messages: map[string]models.Message{},
	}
}

func (f *fakeStore) GetChat(id string) (models.Chat, error) {
	c, ok := f.chats[id]
	if !ok {
		return models.Chat{}, models.NotFound("chatNotFound")
	}
	return c, nil
}

func (f *fakeStore) GetUser(id string) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, models.NotFound("userNotFound")
	}
	return u, nil
}

func (f *fakeStore) PutMessage(m models.Message) error {
	f.messages[m.ID] = m
	return nil
}

func (f *fakeStore) GetMessage(id string) (models.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return models.Message{}, models.NotFound("messageNotFound")
	}
	return m, nil
}

func (f *fakeStore) DeleteMessage(id string) error {
	delete(f.messages, id)
	return nil
}

func (f *fakeStore) ListMessages(chatID string) ([]models.Message, error) {
	var out []models.Message
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (f *fakeStore) DeleteChatMessages(chatID string) error {
	for id, m := range f.messages {
		if m.ChatID == chatID {
			delete(f.messages, id)
		}
	}
	return nil
}

type fakePipeline struct {
	released  []string
	releaseCh chan string
	thumbGate chan struct{}
	thumbErr  error
	lastVideo media.Asset
}

func (f *fakePipeline) asset(area media.Area, up media.Upload, duration float64) (media.Asset, error) {
	if up.Name == "" {
		return media.Asset{}, models.Validation("missingFile")
	}
	return media.Asset{Area: area, Name: up.Name, Size: 100, Duration: duration}, nil
}

func (f *fakePipeline) IngestFile(_ string, up media.Upload) (media.Asset, error) {
	return f.asset(media.AreaFile, up, 0)
}

func (f *fakePipeline) IngestImage(_ string, up media.Upload) (media.Asset, error) {
	return f.asset(media.AreaImage, up, 0)
}

func (f *fakePipeline) IngestAudio(_ context.Context, _ string, up media.Upload) (media.Asset, error) {
	return f.asset(media.AreaAudio, up, 12.5)
}

func (f *fakePipeline) IngestVideo(_ context.Context, _ string, up media.Upload) (media.Asset, error) {
	a, err := f.asset(media.AreaVideo, up, 40)
	f.lastVideo = a
	return a, err
}

func (f *fakePipeline) ExtractThumbnail(_ context.Context, video media.Asset) (media.Asset, error) {
	if f.thumbGate != nil {
		<-f.thumbGate
	}
	if f.thumbErr != nil {
		return media.Asset{}, f.thumbErr
	}
	return media.Asset{Area: media.AreaThumbnail, Name: video.Name + ".png", Size: 10}, nil
}

func (f *fakePipeline) Release(area media.Area, name string) error {
	ref := string(area) + "/" + name
	f.released = append(f.released, ref)
	if f.releaseCh != nil {
		f.releaseCh <- ref
	}
	return nil
}

type chanNotifier struct {
	updates chan models.Message
}

func (n *chanNotifier) MessageUpdated(_ models.Chat, msg models.Message) {
	n.updates <- msg
}

func setup(t *testing.T) (*Service, *fakeStore, *fakePipeline, *chanNotifier, string, string) {
	t.Helper()

	store := newFakeStore()
	pipe := &fakePipeline{}
	notifier := &chanNotifier{updates: make(chan models.Message, 4)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(store, pipe, notifier, content.Sanitize, content.RenderMarkdown, log)

	author := uuid.NewString()
	store.users[author] = models.User{ID: author, UserName: "author"}
	chatID := uuid.NewString()
	store.chats[chatID] = models.Chat{
		ID:             chatID,
		Kind:           models.ChatKindDirect,
		ParticipantIDs: []string{author, uuid.NewString()},
	}

	return svc, store, pipe, notifier, chatID, author
}

func TestAddText(t *testing.T) {
	svc, store, _, _, chatID, author := setup(t)

	msg, err := svc.AddText(chatID, author, `hello <script>alert(1)</script>**world**`)
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeText, msg.Type)
	require.NotContains(t, msg.Content, "<script>")
	require.Contains(t, msg.ContentHTML, "<strong>world</strong>")
	require.NotNil(t, msg.Author)
	require.Contains(t, store.messages, msg.ID)
}

func TestAddTextRejections(t *testing.T) {
	svc, _, _, _, chatID, author := setup(t)

	_, err := svc.AddText(chatID, author, "<script>only</script>")
	require.Equal(t, "missingContent", models.KeyOf(err))

	_, err = svc.AddText(chatID, uuid.NewString(), "hi")
	require.Equal(t, "notAParticipant", models.KeyOf(err))

	_, err = svc.AddText(uuid.NewString(), author, "hi")
	require.True(t, models.IsNotFound(err))
}

func TestAddLocation(t *testing.T) {
	svc, _, _, _, chatID, author := setup(t)

	msg, err := svc.AddLocation(chatID, author, models.Location{Lat: 35.7, Lng: 51.4})
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeLocation, msg.Type)
	require.NotNil(t, msg.Location)
	require.Equal(t, 35.7, msg.Location.Lat)
}

func TestAddAudio(t *testing.T) {
	svc, _, _, _, chatID, author := setup(t)

	msg, err := svc.AddAudio(context.Background(), chatID, author, media.Upload{Name: "voice.mp3"})
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeAudio, msg.Type)
	require.Equal(t, 12.5, msg.Duration)
	require.Equal(t, "voice.mp3", msg.Name)
}

func TestAddVideoThumbnailLifecycle(t *testing.T) {
	svc, store, _, notifier, chatID, author := setup(t)

	msg, err := svc.AddVideo(context.Background(), chatID, author, media.Upload{Name: "clip.mp4"})
	require.NoError(t, err)
	require.Equal(t, models.ThumbnailPending, msg.ThumbnailStatus)
	require.Empty(t, msg.Thumbnail)

	select {
	case updated := <-notifier.updates:
		require.Equal(t, msg.ID, updated.ID)
		require.Equal(t, models.ThumbnailReady, updated.ThumbnailStatus)
		require.Equal(t, "clip.mp4.png", updated.Thumbnail)
	case <-time.After(time.Second):
		t.Fatal("no thumbnail completion notification")
	}

	stored := store.messages[msg.ID]
	require.Equal(t, models.ThumbnailReady, stored.ThumbnailStatus)
}

func TestAddVideoThumbnailFailure(t *testing.T) {
	svc, store, pipe, notifier, chatID, author := setup(t)
	pipe.thumbErr = errors.New("ffmpeg exploded")

	msg, err := svc.AddVideo(context.Background(), chatID, author, media.Upload{Name: "clip.mp4"})
	require.NoError(t, err)

	select {
	case updated := <-notifier.updates:
		require.Equal(t, models.ThumbnailFailed, updated.ThumbnailStatus)
		require.Empty(t, updated.Thumbnail)
	case <-time.After(time.Second):
		t.Fatal("no thumbnail failure notification")
	}

	require.Equal(t, models.ThumbnailFailed, store.messages[msg.ID].ThumbnailStatus)
}

func TestThumbnailCompletionAfterDelete(t *testing.T) {
	svc, store, pipe, notifier, chatID, author := setup(t)
	pipe.thumbGate = make(chan struct{})
	pipe.releaseCh = make(chan string, 4)

	msg, err := svc.AddVideo(context.Background(), chatID, author, media.Upload{Name: "clip.mp4"})
	require.NoError(t, err)

	// The message goes away while frame extraction is still running.
	_, err = svc.Delete(msg.ID)
	require.NoError(t, err)
	select {
	case ref := <-pipe.releaseCh:
		require.Equal(t, "video/clip.mp4", ref)
	case <-time.After(time.Second):
		t.Fatal("delete did not release the video binary")
	}

	close(pipe.thumbGate)

	// Completion must drop the orphan thumbnail, not write the record
	// back.
	select {
	case ref := <-pipe.releaseCh:
		require.Equal(t, "thumbnail/clip.mp4.png", ref)
	case <-time.After(time.Second):
		t.Fatal("orphan thumbnail was not released")
	}

	select {
	case updated := <-notifier.updates:
		t.Fatalf("unexpected update for deleted message: %+v", updated)
	default:
	}

	_, err = store.GetMessage(msg.ID)
	require.True(t, models.IsNotFound(err))

	msgs, err := svc.List(chatID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestDeleteReleasesBinaries(t *testing.T) {
	svc, store, pipe, notifier, chatID, author := setup(t)

	msg, err := svc.AddVideo(context.Background(), chatID, author, media.Upload{Name: "clip.mp4"})
	require.NoError(t, err)
	<-notifier.updates

	_, err = svc.Delete(msg.ID)
	require.NoError(t, err)
	require.NotContains(t, store.messages, msg.ID)
	require.Contains(t, pipe.released, "video/clip.mp4")
	require.Contains(t, pipe.released, "thumbnail/clip.mp4.png")

	_, err = svc.Delete(msg.ID)
	require.True(t, models.IsNotFound(err))
}

func TestPurgeChat(t *testing.T) {
	svc, store, pipe, _, chatID, author := setup(t)

	_, err := svc.AddText(chatID, author, "hi")
	require.NoError(t, err)
	_, err = svc.AddFile(chatID, author, media.Upload{Name: "doc.pdf"})
	require.NoError(t, err)
	_, err = svc.AddImage(chatID, author, media.Upload{Name: "pic.png"})
	require.NoError(t, err)

	require.NoError(t, svc.PurgeChat(context.Background(), chatID))
	require.Empty(t, store.messages)
	require.ElementsMatch(t, []string{"file/doc.pdf", "image/pic.png"}, pipe.released)
}

func TestList(t *testing.T) {
	svc, _, _, _, chatID, author := setup(t)

	_, err := svc.AddText(chatID, author, "one")
	require.NoError(t, err)
	_, err = svc.AddText(chatID, author, "two")
	require.NoError(t, err)

	msgs, err := svc.List(chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].Author)

	_, err = svc.List(uuid.NewString())
	require.True(t, models.IsNotFound(err))
}
