package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/ilyshalit/mebel1/internal/llm"
)

// Analyzer extracts structured placement insights from room and furniture images.
type Analyzer interface {
	AnalyzePlacement(ctx context.Context, room ImageInput, furniture []ImageInput) (Analysis, error)
	DetectReplaceable(ctx context.Context, room ImageInput) ([]ReplaceableItem, error)
}

// ChatAnalyzer implements Analyzer on top of a multimodal chat client.
type ChatAnalyzer struct {
	client llm.Client
}

// NewChatAnalyzer constructs an analyzer backed by the given chat client.
func NewChatAnalyzer(client llm.Client) *ChatAnalyzer {
	return &ChatAnalyzer{client: client}
}

const placementSystemPrompt = `You are an expert in interior design and 3D composition.
Analyze the room photo and the furniture photo(s) and pick the BEST spot for the furniture.
The room and the furniture must stay COMPLETELY unchanged; you only choose the target area.
Describe the furniture as precisely as possible: exact color with shade, exact shape, exact details.
Account for perspective, lighting and proportions.
Respond STRICTLY as JSON.`

const placementUserPrompt = `The first image is the room. Every following image is a furniture item to place.

Return JSON:
{
  "room_analysis": {
    "size_estimate": "approximate size in meters",
    "lighting": "lighting description",
    "style": "interior style",
    "perspective": "camera perspective",
    "free_spaces": ["list of free spots"]
  },
  "furniture_analysis": {
    "type": "furniture type (sofa, armchair, table...)",
    "estimated_size": "approximate size in meters",
    "style": "detailed style description",
    "color": "EXACT color with shade (e.g. 'deep purple', 'burgundy')",
    "features": ["visual details: armrest shape, upholstery, cushions, leg shape"]
  },
  "furniture_items": [
    {"index": 0, "analysis": {same shape as furniture_analysis}, "placement": {same shape as placement}}
  ],
  "placement": {
    "x_percent": 50,
    "y_percent": 60,
    "width_percent": 35,
    "height_percent": 25,
    "scale": 0.85,
    "rotation": 0,
    "reasoning": "why this is the best spot"
  }
}

Coordinates are percentages of the room image size.
When there is a single furniture image, "furniture_items" may be omitted.
"furniture_analysis" and "placement" always describe the first item.`

// AnalyzePlacement asks the model where each furniture item belongs in the room.
func (a *ChatAnalyzer) AnalyzePlacement(ctx context.Context, room ImageInput, furniture []ImageInput) (Analysis, error) {
	if a == nil || a.client == nil {
		return Analysis{}, fmt.Errorf("vision: analyzer unavailable")
	}
	if len(room.Data) == 0 {
		return Analysis{}, fmt.Errorf("vision: room image is required")
	}
	if len(furniture) == 0 {
		return Analysis{}, fmt.Errorf("vision: at least one furniture image is required")
	}

	images := make([]llm.ImagePart, 0, len(furniture)+1)
	images = append(images, llm.ImagePart{Data: room.Data, MimeType: room.MimeType})
	for _, f := range furniture {
		images = append(images, llm.ImagePart{Data: f.Data, MimeType: f.MimeType})
	}

	content, err := a.client.ChatCompletion(ctx, []llm.ChatMessage{
		{Role: "system", Content: placementSystemPrompt},
		{Role: "user", Content: placementUserPrompt, Images: images},
	}, 0.3)
	if err != nil {
		return Analysis{}, fmt.Errorf("vision: analyze placement: %w", err)
	}

	analysis, err := parseAnalysis(content)
	if err != nil {
		// Keep the pipeline going with a centered default rather than
		// failing the whole generation on a malformed model reply.
		log.Printf("vision: unparseable analysis, using defaults: %v", err)
		return DefaultAnalysis(), nil
	}
	return analysis, nil
}

const replaceSystemPrompt = `You are an interior design assistant. Identify the distinct
furniture-like objects in the room photo that could be swapped out for new furniture.
Respond STRICTLY as JSON.`

const replaceUserPrompt = `List the replaceable furniture items visible in this room.
For each item give its type and coarse horizontal position.

Return JSON:
{"items": [{"type": "sofa", "position": "left"}]}

"position" must be one of: left, center, right. List at most 8 items.`

// DetectReplaceable lists furniture-like objects in the room with coarse positions.
func (a *ChatAnalyzer) DetectReplaceable(ctx context.Context, room ImageInput) ([]ReplaceableItem, error) {
	if a == nil || a.client == nil {
		return nil, fmt.Errorf("vision: analyzer unavailable")
	}
	if len(room.Data) == 0 {
		return nil, fmt.Errorf("vision: room image is required")
	}

	content, err := a.client.ChatCompletion(ctx, []llm.ChatMessage{
		{Role: "system", Content: replaceSystemPrompt},
		{Role: "user", Content: replaceUserPrompt, Images: []llm.ImagePart{
			{Data: room.Data, MimeType: room.MimeType},
		}},
	}, 0.2)
	if err != nil {
		return nil, fmt.Errorf("vision: detect replaceable: %w", err)
	}

	var parsed struct {
		Items []ReplaceableItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("vision: parse replaceable items: %w", err)
	}

	items := parsed.Items[:0:0]
	for _, item := range parsed.Items {
		item.Type = strings.TrimSpace(item.Type)
		if item.Type == "" {
			continue
		}
		switch item.Position {
		case "left", "center", "right":
		default:
			item.Position = "center"
		}
		items = append(items, item)
	}
	return items, nil
}

func parseAnalysis(content string) (Analysis, error) {
	var analysis Analysis
	if err := json.Unmarshal([]byte(extractJSON(content)), &analysis); err != nil {
		return Analysis{}, fmt.Errorf("parse analysis: %w", err)
	}

	// The first item mirrors the top-level fields when present.
	if len(analysis.Items) > 0 {
		first := analysis.Items[0]
		if analysis.Furniture.Type == "" {
			analysis.Furniture = first.Analysis
		}
		if analysis.Placement.WidthPercent == 0 && first.Placement != nil {
			analysis.Placement = *first.Placement
		}
	}
	return analysis, nil
}

// extractJSON pulls a JSON object out of a model reply that may wrap it in
// markdown fences or prose.
func extractJSON(content string) string {
	text := strings.TrimSpace(content)
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
		return strings.TrimSpace(text)
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+3:]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
		return strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
