package compose

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/ilyshalit/mebel1/internal/media"
	"github.com/ilyshalit/mebel1/internal/vision"
)

// Image carries one input image for composition.
type Image struct {
	Data     []byte
	MimeType string
}

// Request describes a single composition job: place furniture into the room
// or replace an existing item with it.
type Request struct {
	Room          Image
	Furniture     []Image
	Analysis      vision.Analysis
	PlacementMode string // "place" or "replace"
	ReplaceWhat   string
}

// Result is the composited image.
type Result struct {
	Data     []byte
	MimeType string
}

// Composer produces a composite room image from a request.
type Composer interface {
	Compose(ctx context.Context, req Request) (Result, error)
	ModelName() string
}

// Config selects and configures a composition backend.
type Config struct {
	Backend      string // "gemini", "imagen" or "kie"
	GeminiAPIKey string
	GeminiModel  string

	ImagenProjectID          string
	ImagenLocation           string
	ImagenModel              string
	ImagenAPIKey             string
	ImagenServiceAccountJSON string

	KieAPIKey string

	Timeout time.Duration
}

// New wires the backend named in the config.
func New(cfg Config, publisher media.Publisher) (Composer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "gemini":
		return NewGeminiComposer(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Timeout), nil
	case "imagen":
		return NewImagenComposer(ImagenConfig{
			ProjectID:          cfg.ImagenProjectID,
			Location:           cfg.ImagenLocation,
			Model:              cfg.ImagenModel,
			APIKey:             cfg.ImagenAPIKey,
			ServiceAccountJSON: cfg.ImagenServiceAccountJSON,
		}), nil
	case "kie":
		return NewKieComposer(cfg.KieAPIKey, publisher, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("compose: unknown backend %q", cfg.Backend)
	}
}

// aspectRatio maps image dimensions onto the ratio buckets the generation
// APIs accept.
func aspectRatio(data []byte) string {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Height == 0 {
		return "auto"
	}
	ratio := float64(cfg.Width) / float64(cfg.Height)
	switch {
	case ratio > 0.95 && ratio < 1.05:
		return "1:1"
	case ratio > 1.3 && ratio < 1.4:
		return "4:3"
	case ratio >= 1.5 && ratio < 1.6:
		return "3:2"
	case ratio > 1.7 && ratio < 1.9:
		return "16:9"
	case ratio > 2.2 && ratio < 2.4:
		return "21:9"
	case ratio > 0.7 && ratio < 0.8:
		return "3:4"
	case ratio > 0.6 && ratio <= 0.7:
		return "2:3"
	case ratio > 0.5 && ratio <= 0.6:
		return "9:16"
	default:
		return "auto"
	}
}
