package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

// Prober reports the duration in seconds of an audio or video file.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Thumbnailer extracts a single frame from a video file.
type Thumbnailer interface {
	ExtractFrame(ctx context.Context, src, dst string, atSeconds int, size string) error
}

// Asset is a binary that finished its way through the pipeline.
type Asset struct {
	Area     Area
	Name     string
	Size     int64
	Duration float64
}

// Upload is an inbound binary payload before validation.
type Upload struct {
	Name string
	Data io.Reader
}

const thumbnailSize = "640x360"

// Pipeline validates uploaded binaries, relocates them into their
// type-specific durable area, and runs media post-processing. It knows
// nothing about persistence.
type Pipeline struct {
	store       *Store
	prober      Prober
	thumbnailer Thumbnailer
	log         *slog.Logger
}

func NewPipeline(store *Store, prober Prober, thumbnailer Thumbnailer, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store:       store,
		prober:      prober,
		thumbnailer: thumbnailer,
		log:         log,
	}
}

func (p *Pipeline) IngestFile(senderID string, up Upload) (Asset, error) {
	return p.ingest(AreaFile, senderID, up, nil, "")
}

func (p *Pipeline) IngestImage(senderID string, up Upload) (Asset, error) {
	return p.ingest(AreaImage, senderID, up, filetype.IsImage, "notAnImage")
}

func (p *Pipeline) IngestAudio(ctx context.Context, senderID string, up Upload) (Asset, error) {
	asset, err := p.ingest(AreaAudio, senderID, up, filetype.IsAudio, "notAnAudio")
	if err != nil {
		return Asset{}, err
	}
	return p.probe(ctx, asset)
}

func (p *Pipeline) IngestVideo(ctx context.Context, senderID string, up Upload) (Asset, error) {
	asset, err := p.ingest(AreaVideo, senderID, up, filetype.IsVideo, "notAVideo")
	if err != nil {
		return Asset{}, err
	}
	return p.probe(ctx, asset)
}

// ExtractThumbnail grabs one frame at floor(duration/4) seconds into
// the thumbnail area and returns the resulting asset.
func (p *Pipeline) ExtractThumbnail(ctx context.Context, video Asset) (Asset, error) {
	src, err := p.store.path(video.Area, video.Name)
	if err != nil {
		return Asset{}, err
	}

	name := strings.TrimSuffix(video.Name, filepath.Ext(video.Name)) + ".png"
	dst, err := p.store.path(AreaThumbnail, name)
	if err != nil {
		return Asset{}, err
	}

	at := int(video.Duration / 4)
	if err := p.thumbnailer.ExtractFrame(ctx, src, dst, at, thumbnailSize); err != nil {
		return Asset{}, models.Dependency(fmt.Errorf("thumbnail extraction: %w", err))
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Asset{}, models.Dependency(err)
	}

	return Asset{Area: AreaThumbnail, Name: name, Size: info.Size()}, nil
}

func (p *Pipeline) Release(area Area, name string) error {
	return p.store.Release(area, name)
}

func (p *Pipeline) Open(area Area, name string) (*os.File, os.FileInfo, error) {
	return p.store.Open(area, name)
}

func (p *Pipeline) ingest(area Area, senderID string, up Upload, check func([]byte) bool, rejectKey string) (Asset, error) {
	if up.Name == "" || up.Data == nil {
		return Asset{}, models.Validation("missingFile")
	}

	name := assetName(senderID, up.Name)
	size, err := p.store.save(area, name, up.Data)
	if err != nil {
		return Asset{}, models.Dependency(err)
	}

	if check != nil {
		head, err := p.readHead(area, name)
		if err != nil {
			_ = p.store.Release(area, name)
			return Asset{}, models.Dependency(err)
		}
		if !check(head) {
			_ = p.store.Release(area, name)
			return Asset{}, models.Validation(rejectKey)
		}
	}

	p.log.Debug("binary stored", "area", area, "name", name, "size", size)

	return Asset{Area: area, Name: name, Size: size}, nil
}

func (p *Pipeline) probe(ctx context.Context, asset Asset) (Asset, error) {
	path, err := p.store.path(asset.Area, asset.Name)
	if err != nil {
		return Asset{}, err
	}
	duration, err := p.prober.Duration(ctx, path)
	if err != nil {
		_ = p.store.Release(asset.Area, asset.Name)
		return Asset{}, models.Dependency(fmt.Errorf("media probe: %w", err))
	}
	asset.Duration = duration
	return asset, nil
}

// filetype needs at most 262 bytes to classify a payload.
func (p *Pipeline) readHead(area Area, name string) ([]byte, error) {
	f, _, err := p.store.Open(area, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 262)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return head[:n], nil
}

// assetName builds a collision-resistant durable name from the original
// base name, the sender and the upload time.
func assetName(senderID, original string) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s-%s-%d%s", stem, senderID, time.Now().UnixMilli(), ext)
}
