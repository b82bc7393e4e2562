package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/ilyshalit/mebel1/internal/llm"
)

type fakeChat struct {
	reply string
	err   error

	calls    int
	messages []llm.ChatMessage
}

func (f *fakeChat) ChatCompletion(_ context.Context, messages []llm.ChatMessage, _ float64) (string, error) {
	f.calls++
	f.messages = messages
	return f.reply, f.err
}

var room = ImageInput{Data: []byte("room-bytes"), MimeType: "image/jpeg"}
var sofa = ImageInput{Data: []byte("sofa-bytes"), MimeType: "image/png"}

func TestAnalyzePlacementParsesReply(t *testing.T) {
	chat := &fakeChat{reply: "```json\n" + `{
		"room_analysis": {"style": "loft", "lighting": "warm"},
		"furniture_analysis": {"type": "sofa", "color": "deep purple"},
		"placement": {"x_percent": 30, "y_percent": 62, "width_percent": 40, "height_percent": 28}
	}` + "\n```"}

	analysis, err := NewChatAnalyzer(chat).AnalyzePlacement(context.Background(), room, []ImageInput{sofa})
	if err != nil {
		t.Fatalf("AnalyzePlacement: %v", err)
	}
	if analysis.Room.Style != "loft" || analysis.Furniture.Color != "deep purple" {
		t.Errorf("analysis = %+v", analysis)
	}
	if analysis.Placement.XPercent != 30 {
		t.Errorf("placement = %+v", analysis.Placement)
	}
	if len(chat.messages) != 2 || len(chat.messages[1].Images) != 2 {
		t.Errorf("expected room + furniture image parts, got %+v", chat.messages)
	}
}

func TestAnalyzePlacementFallsBackOnGarbage(t *testing.T) {
	chat := &fakeChat{reply: "sorry, I cannot help with that"}

	analysis, err := NewChatAnalyzer(chat).AnalyzePlacement(context.Background(), room, []ImageInput{sofa})
	if err != nil {
		t.Fatalf("unparseable reply must not fail, got %v", err)
	}
	want := DefaultAnalysis()
	if analysis.Placement != want.Placement {
		t.Errorf("placement = %+v, want default %+v", analysis.Placement, want.Placement)
	}
}

func TestAnalyzePlacementPropagatesClientError(t *testing.T) {
	chat := &fakeChat{err: errors.New("boom")}

	if _, err := NewChatAnalyzer(chat).AnalyzePlacement(context.Background(), room, []ImageInput{sofa}); err == nil {
		t.Fatal("client error must propagate")
	}
}

func TestAnalyzePlacementValidatesInput(t *testing.T) {
	analyzer := NewChatAnalyzer(&fakeChat{})
	if _, err := analyzer.AnalyzePlacement(context.Background(), ImageInput{}, []ImageInput{sofa}); err == nil {
		t.Error("missing room image must fail")
	}
	if _, err := analyzer.AnalyzePlacement(context.Background(), room, nil); err == nil {
		t.Error("missing furniture images must fail")
	}
}

func TestDetectReplaceableNormalizesPositions(t *testing.T) {
	chat := &fakeChat{reply: `{"items": [
		{"type": "sofa", "position": "left"},
		{"type": "tv stand", "position": "somewhere"},
		{"type": "", "position": "right"}
	]}`}

	items, err := NewChatAnalyzer(chat).DetectReplaceable(context.Background(), room)
	if err != nil {
		t.Fatalf("DetectReplaceable: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v, want 2", items)
	}
	if items[0].Position != "left" || items[1].Position != "center" {
		t.Errorf("positions = %q, %q", items[0].Position, items[1].Position)
	}
}

func TestDetectReplaceableRejectsGarbage(t *testing.T) {
	chat := &fakeChat{reply: "no json here"}
	if _, err := NewChatAnalyzer(chat).DetectReplaceable(context.Background(), room); err == nil {
		t.Fatal("unparseable reply must error")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! {"a":1} Hope that helps.`, `{"a":1}`},
		{"no json", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAnalysisPromotesFirstItem(t *testing.T) {
	content := `{"furniture_items": [
		{"index": 0, "analysis": {"type": "armchair", "color": "green"},
		 "placement": {"x_percent": 20, "y_percent": 70, "width_percent": 25, "height_percent": 20}}
	]}`

	analysis, err := parseAnalysis(content)
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if analysis.Furniture.Type != "armchair" {
		t.Errorf("top-level furniture should mirror the first item, got %+v", analysis.Furniture)
	}
	if analysis.Placement.XPercent != 20 {
		t.Errorf("top-level placement should mirror the first item, got %+v", analysis.Placement)
	}
}
