package removebg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrDisabled indicates that no background removal API key is configured.
var ErrDisabled = errors.New("background removal disabled")

const apiURL = "https://api.remove.bg/v1.0/removebg"

// Remover strips image backgrounds. Implementations proxy an external API;
// there is no local algorithm.
type Remover interface {
	Remove(ctx context.Context, data []byte, filename string) ([]byte, error)
	Enabled() bool
}

// Client calls the remove.bg HTTP API.
type Client struct {
	apiKey string
	client *http.Client
}

// NewClient constructs a remover. An empty key yields a disabled client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: strings.TrimSpace(apiKey),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Remove posts the image and returns the cut-out PNG bytes.
func (c *Client) Remove(ctx context.Context, data []byte, filename string) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("removebg: image data is required")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image_file", filename)
	if err != nil {
		return nil, fmt.Errorf("removebg: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("removebg: write form: %w", err)
	}
	if err := writer.WriteField("size", "auto"); err != nil {
		return nil, fmt.Errorf("removebg: write field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("removebg: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, &body)
	if err != nil {
		return nil, fmt.Errorf("removebg: request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("removebg: perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("removebg: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("removebg: read response: %w", err)
	}
	return out, nil
}
