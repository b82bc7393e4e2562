package api

import (
	"bytes"
	"encoding/json"
	"image"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/ilyshalit/mebel1/internal/compose"
	"github.com/ilyshalit/mebel1/internal/vision"
)

type manualBox struct {
	X, Y, W, H int
}

type generateRequest struct {
	RoomPath       string
	FurniturePaths []string
	Mode           string // "auto" or "manual"
	PlacementMode  string // "place" or "replace"
	ReplaceWhat    string
	Rotation       int
	WallAlignment  string
	Box            *manualBox
}

// Generate handles POST /api/generate. All invariants are checked before any
// file read or provider call.
func (h Handler) Generate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, detail := parseGenerateRequest(r)
	if detail != "" {
		writeDetail(w, http.StatusBadRequest, detail)
		return
	}

	roomData, roomMime, err := h.Files.Read(req.RoomPath)
	if err != nil {
		log.Printf("read room image: %v", err)
		writeDetail(w, http.StatusBadRequest, "room image not found")
		return
	}
	furniture := make([]vision.ImageInput, 0, len(req.FurniturePaths))
	for _, p := range req.FurniturePaths {
		data, mime, err := h.Files.Read(p)
		if err != nil {
			log.Printf("read furniture image: %v", err)
			writeDetail(w, http.StatusBadRequest, "furniture image not found")
			return
		}
		furniture = append(furniture, vision.ImageInput{Data: data, MimeType: mime})
	}

	var box *vision.Placement
	if req.Box != nil {
		p, ok := boxToPercent(*req.Box, roomData)
		if !ok {
			writeDetail(w, http.StatusBadRequest, "could not read room image dimensions")
			return
		}
		box = &p
	}

	analysis := h.analyze(r, vision.ImageInput{Data: roomData, MimeType: roomMime}, furniture)
	applyOverrides(&analysis, req, box)

	composeReq := compose.Request{
		Room:          compose.Image{Data: roomData, MimeType: roomMime},
		Analysis:      analysis,
		PlacementMode: req.PlacementMode,
		ReplaceWhat:   req.ReplaceWhat,
	}
	for _, f := range furniture {
		composeReq.Furniture = append(composeReq.Furniture, compose.Image{Data: f.Data, MimeType: f.MimeType})
	}

	result, err := h.Composer.Compose(r.Context(), composeReq)
	if err != nil {
		upstreamError(w, "image generation", err)
		return
	}

	resultPath, err := h.Files.SaveResult(result.Data, "result"+extFor(result.MimeType))
	if err != nil {
		log.Printf("save result: %v", err)
		writeDetail(w, http.StatusInternalServerError, "could not store result")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"result_image_path": resultPath,
		"result_image_url":  h.Files.ResultURL(resultPath),
		"generation_time":   time.Since(start).Seconds(),
		"analysis":          analysis,
		"model_used":        h.Composer.ModelName(),
		"furniture_count":   len(furniture),
	})
}

func (h Handler) analyze(r *http.Request, room vision.ImageInput, furniture []vision.ImageInput) vision.Analysis {
	if h.Analyzer == nil {
		return vision.DefaultAnalysis()
	}
	analysis, err := h.Analyzer.AnalyzePlacement(r.Context(), room, furniture)
	if err != nil {
		log.Printf("placement analysis, using defaults: %v", err)
		return vision.DefaultAnalysis()
	}
	return analysis
}

// parseGenerateRequest validates the form and returns a 400 detail on failure.
func parseGenerateRequest(r *http.Request) (generateRequest, string) {
	if err := parseForm(r); err != nil {
		return generateRequest{}, "could not parse form"
	}

	req := generateRequest{
		RoomPath:      strings.TrimSpace(r.FormValue("room_image_path")),
		Mode:          strings.ToLower(defaultValue(r.FormValue("mode"), "auto")),
		PlacementMode: strings.ToLower(defaultValue(r.FormValue("placement_mode"), "place")),
		ReplaceWhat:   strings.TrimSpace(r.FormValue("replace_what")),
		WallAlignment: strings.ToLower(defaultValue(r.FormValue("wall_alignment"), "auto")),
	}
	if req.RoomPath == "" {
		return req, "room_image_path is required"
	}

	req.FurniturePaths = furniturePaths(r)
	if len(req.FurniturePaths) == 0 {
		return req, "at least one furniture image is required"
	}
	if len(req.FurniturePaths) > MaxFurnitureFiles {
		return req, "too many furniture images (max 5)"
	}

	switch req.PlacementMode {
	case "place":
	case "replace":
		if len(req.FurniturePaths) != 1 {
			return req, "exactly one item required"
		}
	default:
		return req, "placement_mode must be place or replace"
	}

	switch req.WallAlignment {
	case "auto", "left", "right", "back":
	default:
		return req, "wall_alignment must be auto, left, right or back"
	}

	rotation := defaultValue(r.FormValue("furniture_rotation"), "0")
	parsed, err := strconv.Atoi(rotation)
	if err != nil || (parsed != 0 && parsed != 90) {
		return req, "furniture_rotation must be 0 or 90"
	}
	req.Rotation = parsed

	switch req.Mode {
	case "auto":
	case "manual":
		box, detail := parseManualBox(r)
		if detail != "" {
			return req, detail
		}
		req.Box = box
	default:
		return req, "mode must be auto or manual"
	}

	return req, ""
}

func furniturePaths(r *http.Request) []string {
	var paths []string
	if raw := strings.TrimSpace(r.FormValue("furniture_image_paths")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &paths); err != nil {
			paths = nil
		}
	}
	if len(paths) == 0 {
		if single := strings.TrimSpace(r.FormValue("furniture_image_path")); single != "" {
			paths = []string{single}
		}
	}

	clean := paths[:0]
	for _, p := range paths {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return clean
}

func parseManualBox(r *http.Request) (*manualBox, string) {
	values := [4]int{}
	for i, field := range []string{"manual_box_x", "manual_box_y", "manual_box_w", "manual_box_h"} {
		raw := strings.TrimSpace(r.FormValue(field))
		if raw == "" {
			return nil, "manual mode requires a bounding box"
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, field + " must be an integer"
		}
		values[i] = parsed
	}
	box := &manualBox{X: values[0], Y: values[1], W: values[2], H: values[3]}
	if box.X < 0 || box.Y < 0 {
		return nil, "manual box origin must be non-negative"
	}
	if box.W < 1 || box.H < 1 {
		return nil, "manual box width and height must be at least 1"
	}
	return box, ""
}

// applyOverrides folds the user's manual box, rotation and wall alignment
// into the analyzed placement.
func applyOverrides(analysis *vision.Analysis, req generateRequest, box *vision.Placement) {
	if box != nil {
		p := *box
		p.Rotation = analysis.Placement.Rotation
		p.Scale = analysis.Placement.Scale
		p.Reasoning = "user-selected region"
		analysis.Placement = p
	}
	analysis.Placement.Rotation = req.Rotation

	alignment := req.WallAlignment
	if alignment == "auto" {
		alignment = nearestWall(analysis.Placement)
	}
	analysis.Placement.WallAlignment = alignment
}

// boxToPercent converts room-pixel coordinates into percent coordinates of
// the room image.
func boxToPercent(box manualBox, roomData []byte) (vision.Placement, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(roomData))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return vision.Placement{}, false
	}
	w, hgt := float64(cfg.Width), float64(cfg.Height)
	return vision.Placement{
		XPercent:      clampPercent((float64(box.X) + float64(box.W)/2) / w * 100),
		YPercent:      clampPercent((float64(box.Y) + float64(box.H)/2) / hgt * 100),
		WidthPercent:  clampPercent(float64(box.W) / w * 100),
		HeightPercent: clampPercent(float64(box.H) / hgt * 100),
	}, true
}

// nearestWall picks the wall closest to the placement center.
func nearestWall(p vision.Placement) string {
	switch {
	case p.XPercent < 33:
		return "left"
	case p.XPercent > 67:
		return "right"
	default:
		return "back"
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func extFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func defaultValue(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
