package media

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Downloader resolves and fetches provider media binaries.
type Downloader interface {
	MediaURL(ctx context.Context, mediaID string) (string, error)
	DownloadMedia(ctx context.Context, url string) ([]byte, error)
}

// Storage copies provider media to durable local storage. The provider's
// media URLs expire within minutes, so the binary must be captured while the
// webhook is being handled.
type Storage struct {
	dir        string
	publicBase string
	downloader Downloader
	logger     *slog.Logger
}

func NewStorage(dir, publicBaseURL string, downloader Downloader, logger *slog.Logger) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Storage{
		dir:        dir,
		publicBase: strings.TrimRight(publicBaseURL, "/"),
		downloader: downloader,
		logger:     logger.With("component", "media"),
	}, nil
}

// FetchAndStore downloads the media object and persists it, returning the
// durable URL to record on the message.
func (s *Storage) FetchAndStore(ctx context.Context, mediaID, mimeType string) (string, error) {
	url, err := s.downloader.MediaURL(ctx, mediaID)
	if err != nil {
		return "", fmt.Errorf("resolve media %s: %w", mediaID, err)
	}

	data, err := s.downloader.DownloadMedia(ctx, url)
	if err != nil {
		return "", fmt.Errorf("download media %s: %w", mediaID, err)
	}

	filename := uuid.NewString() + extensionFor(mimeType)
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("persist media %s: %w", mediaID, err)
	}

	s.logger.Debug("media stored", "media_id", mediaID, "file", filename, "bytes", len(data))
	return s.publicBase + "/media/" + filename, nil
}

func extensionFor(mimeType string) string {
	if mimeType == "" {
		return ".bin"
	}
	// The provider appends codec parameters, e.g. "audio/ogg; codecs=opus".
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	exts, err := mime.ExtensionsByType(strings.TrimSpace(mimeType))
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
