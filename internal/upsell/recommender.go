package upsell

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/ilyshalit/mebel1/internal/catalog"
	"github.com/ilyshalit/mebel1/internal/llm"
	"github.com/ilyshalit/mebel1/internal/vision"
)

// Recommendation is a catalog item annotated with why it was suggested.
type Recommendation struct {
	catalog.Item
	Reason   string `json:"recommendation_reason"`
	Category string `json:"recommendation_category"`
}

// Recommender ranks catalog items against a generated interior.
type Recommender struct {
	client llm.Client
}

// NewRecommender constructs a recommender backed by the given chat client,
// which may be nil; the heuristic fallback then handles every request.
func NewRecommender(client llm.Client) *Recommender {
	return &Recommender{client: client}
}

const systemPrompt = `You are an expert in furniture sales and interior design.
Recommend complementary items that match the style of the furniture already chosen,
functionally complete the interior, and build a harmonious composition.
Be specific and convincing, but not pushy.`

const userPromptTemplate = `The customer just placed this in their room: %s
Chosen furniture:
- Style: %s
- Color: %s

Room:
- Interior style: %s
- Lighting: %s

Available catalog items:
%s

Recommend %d items from the catalog that match the chosen furniture, complement
the interior, and complete the composition. For each one explain WHY it fits
(1-2 sentences).

Respond as JSON:
{
  "recommendations": [
    {
      "item_name": "catalog item name",
      "reason": "why this item fits",
      "category": "functional complement / style match / accent"
    }
  ]
}`

// Recommend asks the LLM to rank catalog items; on any failure it degrades
// to the keyword heuristic instead of erroring.
func (r *Recommender) Recommend(ctx context.Context, furniture vision.FurnitureAnalysis, room vision.RoomAnalysis, items []catalog.Item, excludePaths []string, max int) []Recommendation {
	items = excludeByPath(items, excludePaths)
	if len(items) == 0 {
		return nil
	}
	if max <= 0 {
		max = 4
	}

	if r.client != nil {
		recs, err := r.rankWithLLM(ctx, furniture, room, items, max)
		if err == nil && len(recs) > 0 {
			return recs
		}
		if err != nil {
			log.Printf("upsell: llm ranking failed, using heuristic: %v", err)
		}
	}

	return SimpleRecommend(furniture.Type, items, min(max, 3))
}

func (r *Recommender) rankWithLLM(ctx context.Context, furniture vision.FurnitureAnalysis, room vision.RoomAnalysis, items []catalog.Item, max int) ([]Recommendation, error) {
	var catalogLines []string
	for _, item := range items {
		price := "N/A"
		if item.Price != nil {
			price = fmt.Sprintf("%.2f", *item.Price)
		}
		catalogLines = append(catalogLines, fmt.Sprintf("- %s: %s (style: %s, price: %s)",
			item.Name, item.Description, item.Style, price))
	}

	prompt := fmt.Sprintf(userPromptTemplate,
		orDefault(furniture.Type, "furniture"),
		orDefault(furniture.Style, "modern"),
		orDefault(furniture.Color, "neutral"),
		orDefault(room.Style, "modern"),
		orDefault(room.Lighting, "natural"),
		strings.Join(catalogLines, "\n"),
		max)

	content, err := r.client.ChatCompletion(ctx, []llm.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, 0.7)
	if err != nil {
		return nil, err
	}

	return matchRecommendations(content, items, max)
}

func matchRecommendations(content string, items []catalog.Item, max int) ([]Recommendation, error) {
	var parsed struct {
		Recommendations []struct {
			ItemName string `json:"item_name"`
			Reason   string `json:"reason"`
			Category string `json:"category"`
		} `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("parse recommendations: %w", err)
	}

	var recs []Recommendation
	for _, rec := range parsed.Recommendations {
		name := strings.ToLower(strings.TrimSpace(rec.ItemName))
		if name == "" {
			continue
		}
		for _, item := range items {
			itemName := strings.ToLower(item.Name)
			if strings.Contains(itemName, name) || strings.Contains(name, itemName) {
				recs = append(recs, Recommendation{
					Item:     item,
					Reason:   rec.Reason,
					Category: orDefault(rec.Category, "complement"),
				})
				break
			}
		}
		if len(recs) >= max {
			break
		}
	}
	return recs, nil
}

// complements maps a placed furniture type to item keywords that usually
// pair well with it.
var complements = map[string][]string{
	"sofa":     {"armchair", "coffee table", "floor lamp", "cushion"},
	"bed":      {"nightstand", "dresser", "lamp", "mirror"},
	"table":    {"chair", "chandelier", "vase"},
	"armchair": {"floor lamp", "coffee table", "footrest"},
	"wardrobe": {"mirror", "pouf", "coat rack"},
}

// SimpleRecommend is the no-LLM fallback: keyword matching on complementary
// item types, padded with arbitrary catalog items when matches run out.
func SimpleRecommend(furnitureType string, items []catalog.Item, count int) []Recommendation {
	if count <= 0 {
		count = 3
	}
	keywords := complements[strings.ToLower(strings.TrimSpace(furnitureType))]

	var recs []Recommendation
	seen := make(map[string]bool)
	for _, item := range items {
		nameLower := strings.ToLower(item.Name)
		descLower := strings.ToLower(item.Description)
		typeLower := strings.ToLower(item.Type)
		for _, kw := range keywords {
			if strings.Contains(nameLower, kw) || strings.Contains(descLower, kw) || strings.Contains(typeLower, kw) {
				recs = append(recs, Recommendation{Item: item, Reason: "pairs well with the placed furniture", Category: "complement"})
				seen[item.ID] = true
				break
			}
		}
		if len(recs) >= count {
			return recs[:count]
		}
	}

	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		recs = append(recs, Recommendation{Item: item, Reason: "popular catalog pick", Category: "complement"})
		if len(recs) >= count {
			break
		}
	}
	return recs
}

func excludeByPath(items []catalog.Item, excludePaths []string) []catalog.Item {
	if len(excludePaths) == 0 {
		return items
	}
	excluded := make(map[string]bool, len(excludePaths))
	for _, p := range excludePaths {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			excluded[trimmed] = true
		}
	}

	var kept []catalog.Item
	for _, item := range items {
		if excluded[item.ImagePath] || excluded[item.ImageURL] {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func extractJSON(content string) string {
	text := strings.TrimSpace(content)
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
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

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
