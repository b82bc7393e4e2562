package compose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiImageModel = "gemini-2.5-flash-image"

// GeminiComposer renders composites with a Gemini image model. The room and
// every furniture photo are passed as inline parts of a single request.
type GeminiComposer struct {
	apiKey  string
	model   string
	timeout time.Duration
}

// NewGeminiComposer constructs a composer able to request inline images.
func NewGeminiComposer(apiKey, model string, timeout time.Duration) *GeminiComposer {
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiImageModel
	}
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GeminiComposer{
		apiKey:  apiKey,
		model:   model,
		timeout: timeout,
	}
}

// ModelName reports the backing model.
func (g *GeminiComposer) ModelName() string {
	return g.model
}

// Compose sends the prompt plus all input images and returns the first
// inline image from the reply.
func (g *GeminiComposer) Compose(ctx context.Context, req Request) (Result, error) {
	if g == nil || strings.TrimSpace(g.apiKey) == "" {
		return Result{}, fmt.Errorf("compose: gemini backend unavailable")
	}
	if len(req.Room.Data) == 0 || len(req.Furniture) == 0 {
		return Result{}, fmt.Errorf("compose: room and furniture images are required")
	}

	childCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(childCtx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return Result{}, fmt.Errorf("compose: create genai client: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(buildPrompt(req)),
		genai.NewPartFromBytes(req.Room.Data, mimeOrPNG(req.Room.MimeType)),
	}
	for _, f := range req.Furniture {
		parts = append(parts, genai.NewPartFromBytes(f.Data, mimeOrPNG(f.MimeType)))
	}

	content := &genai.Content{Parts: parts}

	result, err := client.Models.GenerateContent(
		childCtx,
		g.model,
		[]*genai.Content{content},
		&genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{
				AspectRatio: aspectRatio(req.Room.Data),
			},
			Temperature: genai.Ptr[float32](0.7),
		},
	)
	if err != nil {
		return Result{}, fmt.Errorf("compose: gemini generate: %w", err)
	}

	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if strings.TrimSpace(mime) == "" {
					mime = "image/png"
				}
				return Result{Data: part.InlineData.Data, MimeType: mime}, nil
			}
		}
	}

	return Result{}, fmt.Errorf("compose: no image in gemini response")
}

func mimeOrPNG(mime string) string {
	if strings.HasPrefix(mime, "image/") {
		return mime
	}
	return "image/png"
}
