// Package imagestore reads generated card images and their metadata from the
// external image storage service.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"scholaverse/apps/server/internal/config"
)

var (
	ErrNotFound    = errors.New("image not found")
	ErrInvalidPath = errors.New("invalid image path")
)

type Service interface {
	// GetImage returns the raw bytes of path and their content type.
	GetImage(ctx context.Context, path string) ([]byte, string, error)
	ListImages(ctx context.Context, studentID uint64) ([]ImageEntry, error)
	GetMetadata(ctx context.Context, cardID int64) (Metadata, error)
}

type ImageEntry struct {
	ImagePath     string `json:"image_path"`
	ThumbnailPath string `json:"thumbnail_path"`
	CardID        int64  `json:"card_id"`
	CreatedAt     string `json:"created_at"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Metadata struct {
	CardID        int64      `json:"card_id"`
	Prompt        string     `json:"prompt"`
	Model         string     `json:"model"`
	Dimensions    Dimensions `json:"dimensions"`
	FileSizeBytes int64      `json:"file_size_bytes"`
	GeneratedAt   string     `json:"generated_at"`
}

// NewServiceFromConfig returns the mock or the HTTP-backed service.
func NewServiceFromConfig(cfg config.ImagesConfig, logger zerolog.Logger) (Service, string, error) {
	switch cfg.Mode {
	case config.ImagesModeMock:
		return NewMock(), cfg.Mode, nil
	case config.ImagesModeHTTP:
		client, err := NewHTTPClient(cfg.BaseURL, cfg.ImageTimeout, cfg.MetadataTimeout, logger)
		if err != nil {
			return nil, cfg.Mode, err
		}
		return client, cfg.Mode, nil
	default:
		return nil, cfg.Mode, fmt.Errorf("invalid images mode %q (supported: %s, %s)",
			cfg.Mode, config.ImagesModeMock, config.ImagesModeHTTP)
	}
}

// cleanPath strips leading slashes and rejects parent-directory segments.
func cleanPath(raw string) (string, error) {
	p := strings.TrimLeft(strings.TrimSpace(raw), "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}
