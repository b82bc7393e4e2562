package media

import (
	"context"
)

// ImageRef is a reference the generation API can fetch: either a public URL
// or an inline data URL.
type ImageRef struct {
	URL string
	Key string
}

// Publisher turns raw image bytes into a reference usable by external
// generation services.
type Publisher interface {
	Publish(ctx context.Context, data []byte, contentType, filename string) (ImageRef, error)
}
