package compose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ilyshalit/mebel1/internal/media"
)

const (
	kieCreateURL = "https://api.kie.ai/api/v1/jobs/createTask"
	kieQueryURL  = "https://api.kie.ai/api/v1/jobs/recordInfo"
	kieModelName = "nano-banana-pro"

	kiePollInterval = 2 * time.Second
)

// KieComposer drives the Nano Banana Pro model hosted on Kie.ai. The job API
// wants fetchable image references, so inputs go through the media publisher
// (public S3 URLs when configured, inline data URLs otherwise).
type KieComposer struct {
	apiKey    string
	publisher media.Publisher
	client    *http.Client
	timeout   time.Duration
}

// NewKieComposer wires a Kie.ai-backed composer.
func NewKieComposer(apiKey string, publisher media.Publisher, timeout time.Duration) *KieComposer {
	if publisher == nil {
		publisher = media.NewDataURLPublisher()
	}
	if timeout <= 0 {
		timeout = 8 * time.Minute
	}
	return &KieComposer{
		apiKey:    apiKey,
		publisher: publisher,
		client:    &http.Client{Timeout: 30 * time.Second},
		timeout:   timeout,
	}
}

// ModelName reports the backing model.
func (k *KieComposer) ModelName() string {
	return kieModelName
}

// Compose submits a generation task and polls until it finishes.
func (k *KieComposer) Compose(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(k.apiKey) == "" {
		return Result{}, fmt.Errorf("compose: kie backend unavailable")
	}
	if len(req.Room.Data) == 0 || len(req.Furniture) == 0 {
		return Result{}, fmt.Errorf("compose: room and furniture images are required")
	}

	refs := make([]string, 0, len(req.Furniture)+1)
	roomRef, err := k.publisher.Publish(ctx, req.Room.Data, req.Room.MimeType, "room.png")
	if err != nil {
		return Result{}, fmt.Errorf("compose: publish room image: %w", err)
	}
	refs = append(refs, roomRef.URL)
	for i, f := range req.Furniture {
		ref, err := k.publisher.Publish(ctx, f.Data, f.MimeType, fmt.Sprintf("furniture-%d.png", i))
		if err != nil {
			return Result{}, fmt.Errorf("compose: publish furniture image: %w", err)
		}
		refs = append(refs, ref.URL)
	}

	taskID, err := k.createTask(ctx, buildPrompt(req), refs, aspectRatio(req.Room.Data))
	if err != nil {
		return Result{}, err
	}

	return k.awaitResult(ctx, taskID)
}

func (k *KieComposer) createTask(ctx context.Context, prompt string, imageRefs []string, ratio string) (string, error) {
	payload := map[string]any{
		"model": kieModelName,
		"input": map[string]any{
			"prompt":        prompt,
			"image_input":   imageRefs,
			"aspect_ratio":  ratio,
			"resolution":    "1K",
			"output_format": "png",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("compose: marshal kie payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, kieCreateURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("compose: kie request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+k.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("compose: kie create task: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("compose: decode kie response: %w", err)
	}
	if parsed.Code != 200 {
		return "", fmt.Errorf("compose: kie api: %s", parsed.Message)
	}
	if parsed.Data.TaskID == "" {
		return "", fmt.Errorf("compose: kie response missing taskId")
	}
	return parsed.Data.TaskID, nil
}

func (k *KieComposer) awaitResult(ctx context.Context, taskID string) (Result, error) {
	deadline := time.Now().Add(k.timeout)
	ticker := time.NewTicker(kiePollInterval)
	defer ticker.Stop()

	for {
		state, resultURL, err := k.queryTask(ctx, taskID)
		if err != nil {
			return Result{}, err
		}
		if state == "success" {
			return k.download(ctx, resultURL)
		}

		if time.Now().After(deadline) {
			return Result{}, fmt.Errorf("compose: timed out waiting for kie task %s", taskID)
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (k *KieComposer) queryTask(ctx context.Context, taskID string) (state, resultURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, kieQueryURL+"?taskId="+taskID, nil)
	if err != nil {
		return "", "", fmt.Errorf("compose: kie query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+k.apiKey)

	resp, err := k.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("compose: kie query task: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			State      string `json:"state"`
			FailMsg    string `json:"failMsg"`
			ResultJSON string `json:"resultJson"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", fmt.Errorf("compose: decode kie status: %w", err)
	}
	if parsed.Code != 200 {
		return "", "", fmt.Errorf("compose: kie query: %s", parsed.Message)
	}

	switch parsed.Data.State {
	case "success":
		var result struct {
			ResultURLs []string `json:"resultUrls"`
		}
		if err := json.Unmarshal([]byte(parsed.Data.ResultJSON), &result); err != nil {
			return "", "", fmt.Errorf("compose: parse kie result: %w", err)
		}
		if len(result.ResultURLs) == 0 {
			return "", "", fmt.Errorf("compose: kie result missing urls")
		}
		return "success", result.ResultURLs[0], nil
	case "fail":
		return "", "", fmt.Errorf("compose: kie task failed: %s", parsed.Data.FailMsg)
	default:
		return parsed.Data.State, "", nil
	}
}

func (k *KieComposer) download(ctx context.Context, url string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("compose: download request: %w", err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("compose: download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("compose: result download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("compose: read result: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	return Result{Data: data, MimeType: mime}, nil
}
