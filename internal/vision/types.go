package vision

// RoomAnalysis captures what the model saw in the room photo.
type RoomAnalysis struct {
	SizeEstimate string   `json:"size_estimate"`
	Lighting     string   `json:"lighting"`
	Style        string   `json:"style"`
	Perspective  string   `json:"perspective"`
	FreeSpaces   []string `json:"free_spaces,omitempty"`
}

// FurnitureAnalysis describes a single furniture photo.
type FurnitureAnalysis struct {
	Type          string   `json:"type"`
	EstimatedSize string   `json:"estimated_size"`
	Style         string   `json:"style"`
	Color         string   `json:"color"`
	Features      []string `json:"features,omitempty"`
}

// Placement is the suggested target region in room-image percent coordinates.
type Placement struct {
	XPercent      float64 `json:"x_percent"`
	YPercent      float64 `json:"y_percent"`
	WidthPercent  float64 `json:"width_percent"`
	HeightPercent float64 `json:"height_percent"`
	Scale         float64 `json:"scale,omitempty"`
	Rotation      int     `json:"rotation"`
	WallAlignment string  `json:"wall_alignment,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

// FurnitureItem pairs per-item analysis with its placement when several
// furniture photos are submitted together. Index matches the submitted order.
type FurnitureItem struct {
	Index     int               `json:"index"`
	Analysis  FurnitureAnalysis `json:"analysis"`
	Placement *Placement        `json:"placement,omitempty"`
}

// Analysis is the full structured result of a placement analysis.
type Analysis struct {
	Room      RoomAnalysis      `json:"room_analysis"`
	Furniture FurnitureAnalysis `json:"furniture_analysis"`
	Items     []FurnitureItem   `json:"furniture_items,omitempty"`
	Placement Placement         `json:"placement"`
}

// ReplaceableItem is a furniture-like object detected in a room, with a
// coarse horizontal position.
type ReplaceableItem struct {
	Type     string `json:"type"`
	Position string `json:"position"` // left, center or right
}

// ImageInput carries raw image bytes into the analyzer.
type ImageInput struct {
	Data     []byte
	MimeType string
}

// DefaultAnalysis is returned when the model response cannot be parsed, so
// generation can still proceed with a centered placement.
func DefaultAnalysis() Analysis {
	return Analysis{
		Room: RoomAnalysis{
			SizeEstimate: "unknown",
			Lighting:     "natural",
			Style:        "modern",
			Perspective:  "eye-level",
		},
		Furniture: FurnitureAnalysis{
			Type:          "furniture",
			EstimatedSize: "medium",
			Style:         "modern",
			Color:         "neutral",
		},
		Placement: Placement{
			XPercent:      50,
			YPercent:      50,
			WidthPercent:  30,
			HeightPercent: 30,
			Scale:         1.0,
			Reasoning:     "default placement",
		},
	}
}
