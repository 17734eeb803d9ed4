package imagestore

import (
	"context"
	"fmt"
	"time"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="300" height="420"><rect width="300" height="420" fill="#1a1a2e"/></svg>`

// Mock serves placeholder data for development without image storage.
type Mock struct {
	now func() time.Time
}

func NewMock() *Mock {
	return &Mock{now: time.Now}
}

func (m *Mock) GetImage(_ context.Context, path string) ([]byte, string, error) {
	if _, err := cleanPath(path); err != nil {
		return nil, "", err
	}
	return []byte(placeholderSVG), "image/svg+xml", nil
}

func (m *Mock) ListImages(_ context.Context, studentID uint64) ([]ImageEntry, error) {
	return []ImageEntry{
		{
			ImagePath:     fmt.Sprintf("/students/%d/cards/card_001.png", studentID),
			ThumbnailPath: fmt.Sprintf("/students/%d/cards/card_001_thumb.png", studentID),
			CardID:        1,
			CreatedAt:     "2026-02-10T10:00:00Z",
		},
		{
			ImagePath:     fmt.Sprintf("/students/%d/cards/card_002.png", studentID),
			ThumbnailPath: fmt.Sprintf("/students/%d/cards/card_002_thumb.png", studentID),
			CardID:        2,
			CreatedAt:     "2026-02-14T14:30:00Z",
		},
	}, nil
}

func (m *Mock) GetMetadata(_ context.Context, cardID int64) (Metadata, error) {
	return Metadata{
		CardID:        cardID,
		Prompt:        "16-bit pixel art, fantasy RPG character card, elf mage in legendary robe",
		Model:         "flux.1-dev (mock)",
		Dimensions:    Dimensions{Width: 768, Height: 1024},
		FileSizeBytes: 524288,
		GeneratedAt:   m.now().UTC().Format(time.RFC3339),
	}, nil
}
