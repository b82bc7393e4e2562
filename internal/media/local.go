package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// DataURLPublisher embeds the image as a base64 data URL. Used when no
// object storage is configured.
type DataURLPublisher struct{}

// NewDataURLPublisher constructs the inline publisher.
func NewDataURLPublisher() *DataURLPublisher {
	return &DataURLPublisher{}
}

// Publish encodes the bytes into a data URL.
func (DataURLPublisher) Publish(_ context.Context, data []byte, contentType, _ string) (ImageRef, error) {
	if len(data) == 0 {
		return ImageRef{}, fmt.Errorf("image data is required")
	}

	mime := strings.TrimSpace(contentType)
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}

	return ImageRef{
		URL: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)),
	}, nil
}
