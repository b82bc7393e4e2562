package compose

import (
	"fmt"
	"strings"

	"github.com/ilyshalit/mebel1/internal/vision"
)

// buildPrompt selects the prompt for the request's placement mode.
func buildPrompt(req Request) string {
	if req.PlacementMode == "replace" {
		return buildReplacePrompt(req.ReplaceWhat)
	}
	if len(req.Furniture) > 1 {
		return buildMultiPlacePrompt(req.Analysis, len(req.Furniture))
	}
	return buildPlacePrompt(req.Analysis)
}

func buildPlacePrompt(analysis vision.Analysis) string {
	furniture := analysis.Furniture
	room := analysis.Room
	placement := analysis.Placement

	furnitureType := orDefault(furniture.Type, "furniture item")
	furnitureColor := orDefault(furniture.Color, "neutral toned")
	roomStyle := orDefault(room.Style, "modern")
	roomLighting := orDefault(room.Lighting, "natural lighting")

	placementHint := placement.Reasoning
	if placement.WidthPercent > 0 && placement.HeightPercent > 0 {
		placementHint = fmt.Sprintf(
			"Place the furniture centered at approximately %.1f%% from the left and %.1f%% from the top. "+
				"Fit it inside a rectangle of about %.1f%% width and %.1f%% height of the room image.",
			placement.XPercent, placement.YPercent, placement.WidthPercent, placement.HeightPercent)
	}
	if placementHint == "" {
		placementHint = "Place it naturally in the room where it fits best"
	}

	var hints []string
	if placement.Rotation == 90 {
		hints = append(hints, "The furniture is rotated 90 degrees to match the user's requested orientation (vertical vs horizontal).")
	}
	if wall := wallName(placement.WallAlignment); wall != "" {
		hints = append(hints, fmt.Sprintf(
			"IMPORTANT: Place the furniture ALONG the %s, parallel to it, and flush against it. Do NOT place it perpendicular across the room.", wall))
	}

	return strings.TrimSpace(fmt.Sprintf(`Seamlessly integrate the exact %s %s from the second image into the %s room from the first image.

CRITICAL: Preserve the EXACT appearance of the furniture - same color, texture, and design.

Placement: %s
%s

Requirements:
- Match the room's %s
- Add realistic shadows and reflections
- Adjust perspective to fit naturally
- Maintain photorealistic quality
- Keep furniture IDENTICAL to the original image
- Blend seamlessly with the interior
- CRITICAL: Place furniture ON THE FLOOR, standing normally. Do NOT put it on the wall or vertically. Beds horizontal on the floor, chairs/sofas upright with legs on the ground.

Output in high resolution with sharp details.`,
		furnitureColor, furnitureType, roomStyle, placementHint, strings.Join(hints, "\n"), roomLighting))
}

func buildMultiPlacePrompt(analysis vision.Analysis, numItems int) string {
	roomStyle := orDefault(analysis.Room.Style, "modern")
	roomLighting := orDefault(analysis.Room.Lighting, "natural lighting")

	lines := make([]string, 0, numItems)
	for idx := 0; idx < numItems; idx++ {
		var item *vision.FurnitureItem
		for i := range analysis.Items {
			if analysis.Items[i].Index == idx {
				item = &analysis.Items[i]
				break
			}
		}

		xp, yp := 25+float64(idx)*50/float64(max(1, numItems-1)), 55+float64(idx%2)*10
		wp, hp := 30/float64(numItems), 25/float64(numItems)
		typ, color := "furniture item", "neutral"
		if item != nil {
			typ = orDefault(item.Analysis.Type, typ)
			color = orDefault(item.Analysis.Color, color)
			if pl := item.Placement; pl != nil && pl.WidthPercent > 0 {
				xp, yp, wp, hp = pl.XPercent, pl.YPercent, pl.WidthPercent, pl.HeightPercent
			}
		}
		lines = append(lines, fmt.Sprintf(
			"Item %d (image %d after the room photo): %s %s. Place in the room centered at %.0f%% from left, %.0f%% from top, area about %.0f%% width and %.0f%% height.",
			idx+1, idx+2, color, typ, xp, yp, wp, hp))
	}

	return fmt.Sprintf(`The first image is the room. The following %d images are furniture items, one per image, in order.

Place each item into the %s room at these positions:
%s

CRITICAL: Preserve the EXACT appearance of every furniture item - same colors, textures, and design. Integrate ALL items into the room in one coherent scene.
CRITICAL: Place ALL furniture ON THE FLOOR, standing normally. Do NOT put furniture on walls or vertically against the wall. Beds must be horizontal on the floor, chairs and sofas upright on the floor with legs on the ground.
Match the room's %s. Add realistic shadows and reflections. Maintain photorealistic quality. Output in high resolution with sharp details.`,
		numItems, roomStyle, strings.Join(lines, "\n"), roomLighting)
}

func buildReplacePrompt(replaceWhat string) string {
	whatLine := ""
	if trimmed := strings.TrimSpace(replaceWhat); trimmed != "" {
		whatLine = fmt.Sprintf(" The furniture to replace in the room is: %s.\n\n", trimmed)
	}
	return fmt.Sprintf(`The first image is a room with existing furniture. The second image shows the NEW furniture that should replace the corresponding old item.%s
TASK: REPLACE the existing furniture in the room with the new furniture from the second image.
- Remove the old furniture completely.
- Place the new furniture in the SAME location and position where the old one was.
- Keep the rest of the room unchanged: walls, floor, other objects, lighting.
- Preserve the EXACT appearance of the new furniture (same color, texture, design).
- Match the room's lighting and add realistic shadows. The result must look photorealistic.
- The new furniture must stand ON THE FLOOR in a natural orientation, not on the wall.`, whatLine)
}

func wallName(alignment string) string {
	switch alignment {
	case "left":
		return "left wall"
	case "right":
		return "right wall"
	case "back":
		return "back wall"
	default:
		return ""
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
