package media

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

var (
	pngHead = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	mp3Head = []byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 0}
	mp4Head = []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0, 0, 0, 0}
)

type fakeProber struct {
	duration float64
	err      error
}

func (f fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	return f.duration, f.err
}

type fakeThumbnailer struct {
	calls int
	at    int
	err   error
}

func (f *fakeThumbnailer) ExtractFrame(ctx context.Context, src, dst string, atSeconds int, size string) error {
	f.calls++
	f.at = atSeconds
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dst, pngHead, 0644)
}

func newTestPipeline(t *testing.T, prober Prober, thumb Thumbnailer) *Pipeline {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPipeline(store, prober, thumb, log)
}

func TestStore_SaveReleaseOpen(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	size, err := store.save(AreaFile, "doc.pdf", strings.NewReader("content"))
	require.NoError(t, err)
	require.Equal(t, int64(7), size)

	f, info, err := store.Open(AreaFile, "doc.pdf")
	require.NoError(t, err)
	require.Equal(t, int64(7), info.Size())
	require.NoError(t, f.Close())

	require.NoError(t, store.Release(AreaFile, "doc.pdf"))
	// Releasing an already-missing binary is a no-op.
	require.NoError(t, store.Release(AreaFile, "doc.pdf"))

	_, _, err = store.Open(AreaFile, "doc.pdf")
	require.True(t, models.IsNotFound(err))

	// Path traversal in names is rejected outright.
	_, _, err = store.Open(AreaFile, "../escape")
	require.Equal(t, models.KindValidation, models.KindOf(err))
}

func TestPipeline_IngestImage(t *testing.T) {
	p := newTestPipeline(t, fakeProber{}, &fakeThumbnailer{})

	asset, err := p.IngestImage("u1", Upload{Name: "pic.png", Data: bytes.NewReader(pngHead)})
	require.NoError(t, err)
	require.Equal(t, AreaImage, asset.Area)
	require.Contains(t, asset.Name, "pic-u1-")
	require.True(t, strings.HasSuffix(asset.Name, ".png"))

	f, _, err := p.Open(AreaImage, asset.Name)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestPipeline_IngestImage_RejectsNonImage(t *testing.T) {
	p := newTestPipeline(t, fakeProber{}, &fakeThumbnailer{})

	_, err := p.IngestImage("u1", Upload{Name: "pic.png", Data: strings.NewReader("plain text")})
	require.Equal(t, models.KindValidation, models.KindOf(err))
	require.Equal(t, "notAnImage", models.KeyOf(err))
}

func TestPipeline_IngestAudio_Probes(t *testing.T) {
	p := newTestPipeline(t, fakeProber{duration: 180.5}, &fakeThumbnailer{})

	asset, err := p.IngestAudio(context.Background(), "u1", Upload{Name: "song.mp3", Data: bytes.NewReader(mp3Head)})
	require.NoError(t, err)
	require.Equal(t, AreaAudio, asset.Area)
	require.Equal(t, 180.5, asset.Duration)
}

func TestPipeline_IngestVideo_Thumbnail(t *testing.T) {
	thumb := &fakeThumbnailer{}
	p := newTestPipeline(t, fakeProber{duration: 42}, thumb)

	asset, err := p.IngestVideo(context.Background(), "u1", Upload{Name: "clip.mp4", Data: bytes.NewReader(mp4Head)})
	require.NoError(t, err)
	require.Equal(t, float64(42), asset.Duration)

	out, err := p.ExtractThumbnail(context.Background(), asset)
	require.NoError(t, err)
	require.Equal(t, AreaThumbnail, out.Area)
	require.True(t, strings.HasSuffix(out.Name, ".png"))
	require.Equal(t, 1, thumb.calls)
	// Frame is taken at floor(duration/4) seconds.
	require.Equal(t, 10, thumb.at)

	f, info, err := p.Open(AreaThumbnail, out.Name)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
	require.NoError(t, f.Close())
}

func TestPipeline_MissingUpload(t *testing.T) {
	p := newTestPipeline(t, fakeProber{}, &fakeThumbnailer{})

	_, err := p.IngestFile("u1", Upload{})
	require.Equal(t, "missingFile", models.KeyOf(err))
}
