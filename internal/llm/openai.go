package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAIClient wraps minimal functionality needed for chat completions,
// including multimodal turns with attached images.
type OpenAIClient struct {
	apiKey string
	model  string
	client *http.Client
}

// NewOpenAIClient constructs a client using the provided API key and model.
func NewOpenAIClient(apiKey, model string, timeout time.Duration) *OpenAIClient {
	if model == "" {
		model = "gpt-4o"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// ChatCompletion sends chat messages to OpenAI and returns the first response content.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, messages []ChatMessage, temperature float64) (string, error) {
	wireMessages := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		if len(msg.Images) == 0 {
			wireMessages = append(wireMessages, map[string]any{
				"role":    msg.Role,
				"content": msg.Content,
			})
			continue
		}

		content := []map[string]any{
			{"type": "text", "text": msg.Content},
		}
		for _, img := range msg.Images {
			mime := img.MimeType
			if mime == "" {
				mime = "image/png"
			}
			content = append(content, map[string]any{
				"type": "image_url",
				"image_url": map[string]any{
					"url":    fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data)),
					"detail": "high",
				},
			})
		}
		wireMessages = append(wireMessages, map[string]any{
			"role":    msg.Role,
			"content": content,
		})
	}

	payload := map[string]any{
		"model":       c.model,
		"temperature": temperature,
		"messages":    wireMessages,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal openai payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var failure struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return "", fmt.Errorf("openai status %d: %s", resp.StatusCode, failure.Error.Message)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}
