package llm

import "context"

// ImagePart attaches image bytes to a chat turn.
type ImagePart struct {
	Data     []byte
	MimeType string
}

// ChatMessage represents a generic chat turn in the prompt history.
// Images are only meaningful on user turns.
type ChatMessage struct {
	Role    string
	Content string
	Images  []ImagePart
}

// Client defines the behaviour required by the analysis and upsell packages.
type Client interface {
	ChatCompletion(ctx context.Context, messages []ChatMessage, temperature float64) (string, error)
}
