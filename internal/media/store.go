package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alirezanaghdi47/messenger-backend/internal/models"
)

// Area is a durable storage area for one class of binaries.
type Area string

const (
	AreaFile      Area = "file"
	AreaImage     Area = "image"
	AreaAudio     Area = "audio"
	AreaVideo     Area = "video"
	AreaThumbnail Area = "thumbnail"
)

var areas = []Area{AreaFile, AreaImage, AreaAudio, AreaVideo, AreaThumbnail}

// ParseArea validates an area name coming from a request path.
func ParseArea(s string) (Area, error) {
	for _, a := range areas {
		if string(a) == s {
			return a, nil
		}
	}
	return "", models.Validation("invalidMediaArea")
}

// Store owns the on-disk layout of media binaries: one directory per
// area under a common root.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	for _, area := range areas {
		if err := os.MkdirAll(filepath.Join(root, string(area)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s area: %w", area, err)
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) path(area Area, name string) (string, error) {
	// Names are generated server-side, but Open is reachable with
	// caller-supplied names, so reject anything path-like.
	if name == "" || filepath.Base(name) != name {
		return "", models.Validation("invalidMediaName")
	}
	return filepath.Join(s.root, string(area), name), nil
}

// save writes the content to a temp file first and renames it into
// place, so a crashed write never leaves a partial binary behind.
func (s *Store) save(area Area, name string, r io.Reader) (int64, error) {
	path, err := s.path(area, name)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return 0, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to rename file: %w", err)
	}

	return size, nil
}

// Release removes a stored binary. Releasing an already-missing binary
// is a no-op so interrupted cascade deletes can be re-issued safely.
func (s *Store) Release(area Area, name string) error {
	path, err := s.path(area, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s/%s: %w", area, name, err)
	}
	return nil
}

// Open returns the binary for serving. The caller closes the file.
func (s *Store) Open(area Area, name string) (*os.File, os.FileInfo, error) {
	path, err := s.path(area, name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, models.NotFound("mediaNotFound")
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, info, nil
}
