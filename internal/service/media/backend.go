// Package media stores generated images and records them as attachments.
package media

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// Backend persists raw objects under a key and returns their public URL.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, key string) error
}

// LocalBackend writes objects below baseDir on an afero filesystem.
type LocalBackend struct {
	fs            afero.Fs
	baseDir       string
	publicBaseURL string
}

func NewLocalBackend(fs afero.Fs, baseDir, publicBaseURL string) *LocalBackend {
	return &LocalBackend{
		fs:            fs,
		baseDir:       baseDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (b *LocalBackend) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	dst := path.Join(b.baseDir, key)
	if err := b.fs.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := afero.WriteFile(b.fs, dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	return b.publicBaseURL + "/" + key, nil
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	return b.fs.Remove(path.Join(b.baseDir, key))
}

// DetectMimeType sniffs data.
func DetectMimeType(data []byte) string {
	return mimetype.Detect(data).String()
}

// ExtensionFor maps an image MIME type to the file extension used for
// stored files.
func ExtensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "jpeg"), strings.Contains(mimeType, "jpg"):
		return "jpg"
	case strings.Contains(mimeType, "webp"):
		return "webp"
	default:
		return "png"
	}
}
