package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ilyshalit/mebel1/internal/catalog"
)

// ListCatalog handles GET /api/catalog.
func (h Handler) ListCatalog(w http.ResponseWriter, _ *http.Request) {
	items := h.Catalog.List()
	if items == nil {
		items = []catalog.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"items":   items,
	})
}

// AddCatalogItem handles POST /api/catalog.
func (h Handler) AddCatalogItem(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxUploadBytes + (1 << 20)); err != nil {
		writeDetail(w, http.StatusBadRequest, "could not parse form")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	itemType := strings.TrimSpace(r.FormValue("item_type"))
	style := strings.TrimSpace(r.FormValue("style"))
	switch {
	case name == "":
		writeDetail(w, http.StatusBadRequest, "name is required")
		return
	case itemType == "":
		writeDetail(w, http.StatusBadRequest, "item_type is required")
		return
	case style == "":
		writeDetail(w, http.StatusBadRequest, "style is required")
		return
	}

	var price *float64
	if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			writeDetail(w, http.StatusBadRequest, "price must be a non-negative number")
			return
		}
		price = &parsed
	}

	data, filename, ok := h.readImageFile(w, r, "file")
	if !ok {
		return
	}
	if h.Remover != nil && h.Remover.Enabled() {
		if cut, err := h.Remover.Remove(r.Context(), data, filename); err == nil {
			data = cut
		} else {
			log.Printf("background removal for catalog image: %v", err)
		}
	}

	path, err := h.Files.SaveCatalogImage(data, filename)
	if err != nil {
		log.Printf("save catalog image: %v", err)
		writeDetail(w, http.StatusInternalServerError, "could not store image")
		return
	}

	item, err := h.Catalog.Add(catalog.Item{
		ID:          uuid.NewString(),
		Name:        name,
		Type:        itemType,
		Style:       style,
		ImagePath:   path,
		ImageURL:    h.Files.CatalogURL(path),
		Description: strings.TrimSpace(r.FormValue("description")),
		Price:       price,
	})
	if err != nil {
		log.Printf("add catalog item: %v", err)
		_ = h.Files.Remove(path)
		writeDetail(w, http.StatusInternalServerError, "could not save item")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"item":    item,
	})
}

// GetCatalogItem handles GET /api/catalog/{item_id}.
func (h Handler) GetCatalogItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item_id")
	item, err := h.Catalog.Get(id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "item not found")
			return
		}
		log.Printf("get catalog item %s: %v", id, err)
		writeDetail(w, http.StatusInternalServerError, "could not load item")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"item":    item,
	})
}

// DeleteCatalogItem handles DELETE /api/catalog/{item_id}.
func (h Handler) DeleteCatalogItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "item_id")
	item, err := h.Catalog.Delete(id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "item not found")
			return
		}
		log.Printf("delete catalog item %s: %v", id, err)
		writeDetail(w, http.StatusInternalServerError, "could not delete item")
		return
	}

	if item.ImagePath != "" {
		if err := h.Files.Remove(item.ImagePath); err != nil {
			log.Printf("remove catalog image %s: %v", item.ImagePath, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "item deleted",
	})
}
