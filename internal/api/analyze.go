package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/ilyshalit/mebel1/internal/vision"
)

// AnalyzeRoomReplace handles POST /api/analyze-room-replace. It lists the
// furniture-like objects in a room so the client can offer replace targets.
func (h Handler) AnalyzeRoomReplace(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeDetail(w, http.StatusBadRequest, "could not parse form")
		return
	}
	roomPath := strings.TrimSpace(r.FormValue("room_image_path"))
	if roomPath == "" {
		writeDetail(w, http.StatusBadRequest, "room_image_path is required")
		return
	}

	data, mime, err := h.Files.Read(roomPath)
	if err != nil {
		log.Printf("read room image: %v", err)
		writeDetail(w, http.StatusBadRequest, "room image not found")
		return
	}

	if h.Analyzer == nil {
		writeDetail(w, http.StatusBadGateway, "room analysis failed")
		return
	}
	items, err := h.Analyzer.DetectReplaceable(r.Context(), vision.ImageInput{Data: data, MimeType: mime})
	if err != nil {
		upstreamError(w, "room analysis", err)
		return
	}
	if items == nil {
		items = []vision.ReplaceableItem{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// RecommendUpsell handles POST /api/upsell.
func (h Handler) RecommendUpsell(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeDetail(w, http.StatusBadRequest, "could not parse form")
		return
	}

	if h.Catalog.Len() == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "catalog is empty",
		})
		return
	}

	var furniture vision.FurnitureAnalysis
	if raw := strings.TrimSpace(r.FormValue("furniture_analysis")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &furniture); err != nil {
			log.Printf("decode furniture_analysis: %v", err)
		}
	}
	var room vision.RoomAnalysis
	if raw := strings.TrimSpace(r.FormValue("room_analysis")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &room); err != nil {
			log.Printf("decode room_analysis: %v", err)
		}
	}
	var excludePaths []string
	if raw := strings.TrimSpace(r.FormValue("exclude_paths")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &excludePaths); err != nil {
			excludePaths = strings.Split(raw, ",")
		}
	}

	recs := h.Upsell.Recommend(r.Context(), furniture, room, h.Catalog.List(), excludePaths, 4)
	if len(recs) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "no matching recommendations",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"recommendations": recs,
	})
}

// Health handles GET /api/health with a best-effort readiness map.
func (h Handler) Health(w http.ResponseWriter, _ *http.Request) {
	status := func(ready bool) string {
		if ready {
			return "ready"
		}
		return "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"services": map[string]string{
			"vision":             status(h.Analyzer != nil),
			"generation":         status(h.Composer != nil),
			"background_removal": status(h.Remover != nil && h.Remover.Enabled()),
			"upsell":             status(h.Upsell != nil),
		},
	})
}

// Root handles GET / with a short service banner.
func (h Handler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "furniture placement api",
		"status":  "ok",
		"docs":    "/api/health",
	})
}
