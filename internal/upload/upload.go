package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrTooLarge = errors.New("file too large")
var ErrBadType = errors.New("unsupported file type")

// Per-kind size caps, matching what clients are told in the 413 message.
var sizeLimits = map[string]int64{
	"image":    10 << 20,
	"video":    50 << 20,
	"audio":    20 << 20,
	"document": 25 << 20,
}

var allowedExts = map[string]struct{}{
	".jpeg": {}, ".jpg": {}, ".png": {}, ".gif": {},
	".mp4": {}, ".mov": {},
	".mp3": {}, ".wav": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".txt": {},
}

type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

type Saved struct {
	URL  string
	Type string
	Name string
}

// Save writes the uploaded file to disk under a unique name and returns the
// descriptor stored on the message.
func (s *Store) Save(fh *multipart.FileHeader) (*Saved, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if _, ok := allowedExts[ext]; !ok {
		return nil, ErrBadType
	}

	kind := KindFromMIME(fh.Header.Get("Content-Type"))
	if limit := sizeLimits[kind]; fh.Size > limit {
		return nil, fmt.Errorf("%w: %s files are capped at %dMB", ErrTooLarge, kind, limit>>20)
	}

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return nil, err
	}

	return &Saved{
		URL:  "/uploads/" + name,
		Type: kind,
		Name: fh.Filename,
	}, nil
}

func KindFromMIME(mimetype string) string {
	switch {
	case strings.HasPrefix(mimetype, "image/"):
		return "image"
	case strings.HasPrefix(mimetype, "video/"):
		return "video"
	case strings.HasPrefix(mimetype, "audio/"):
		return "audio"
	default:
		return "document"
	}
}
