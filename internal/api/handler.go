package api

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ilyshalit/mebel1/internal/catalog"
	"github.com/ilyshalit/mebel1/internal/compose"
	"github.com/ilyshalit/mebel1/internal/files"
	"github.com/ilyshalit/mebel1/internal/removebg"
	"github.com/ilyshalit/mebel1/internal/upsell"
	"github.com/ilyshalit/mebel1/internal/vision"
)

// MaxUploadBytes bounds a single uploaded image.
const MaxUploadBytes = 15 << 20

// MaxFurnitureFiles bounds one furniture upload batch.
const MaxFurnitureFiles = 5

// Handler exposes the HTTP endpoints of the placement service.
type Handler struct {
	Files    *files.Store
	Catalog  *catalog.Store
	Analyzer vision.Analyzer
	Composer compose.Composer
	Remover  removebg.Remover
	Upsell   *upsell.Recommender
}

// UploadRoom handles POST /api/upload/room.
func (h Handler) UploadRoom(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := h.readImageFile(w, r, "file")
	if !ok {
		return
	}

	path, err := h.Files.SaveUpload(data, filename)
	if err != nil {
		log.Printf("save room upload: %v", err)
		writeDetail(w, http.StatusInternalServerError, "could not store file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"file_path": path,
		"filename":  filename,
	})
}

// UploadFurniture handles POST /api/upload/furniture. It accepts a single
// `file` field or up to five `files` entries, and strips backgrounds via the
// removal proxy when one is configured.
func (h Handler) UploadFurniture(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxUploadBytes * (MaxFurnitureFiles + 1)); err != nil {
		writeDetail(w, http.StatusBadRequest, "could not parse form")
		return
	}

	var (
		headers []*multipart.FileHeader
		single  bool
	)
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		if batch := r.MultipartForm.File["file"]; len(batch) > 0 {
			headers = batch[:1]
			single = true
		}
	}
	if len(headers) == 0 {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	if len(headers) > MaxFurnitureFiles {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("too many files (max %d)", MaxFurnitureFiles))
		return
	}

	removed := h.Remover != nil && h.Remover.Enabled()
	type uploaded struct {
		FilePath string `json:"file_path"`
		Filename string `json:"filename"`
	}
	items := make([]uploaded, 0, len(headers))
	for _, header := range headers {
		data, ok := readHeader(w, header)
		if !ok {
			return
		}
		if h.Remover != nil && h.Remover.Enabled() {
			cut, err := h.Remover.Remove(r.Context(), data, header.Filename)
			if err != nil {
				log.Printf("background removal for %s: %v", header.Filename, err)
				removed = false
			} else {
				data = cut
			}
		}
		path, err := h.Files.SaveUpload(data, header.Filename)
		if err != nil {
			log.Printf("save furniture upload: %v", err)
			writeDetail(w, http.StatusInternalServerError, "could not store file")
			return
		}
		items = append(items, uploaded{FilePath: path, Filename: header.Filename})
	}

	if single {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":            true,
			"file_path":          items[0].FilePath,
			"filename":           items[0].Filename,
			"background_removed": removed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"items":              items,
		"background_removed": removed,
	})
}

// readImageFile pulls one multipart image field, validating size and type.
// On failure it has already written the error response.
func (h Handler) readImageFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(MaxUploadBytes + (1 << 20)); err != nil {
		writeDetail(w, http.StatusBadRequest, "could not parse form")
		return nil, "", false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, field+" is required")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read file")
		return nil, "", false
	}
	if !validImage(w, data) {
		return nil, "", false
	}
	return data, header.Filename, true
}

func readHeader(w http.ResponseWriter, header *multipart.FileHeader) ([]byte, bool) {
	file, err := header.Open()
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read file")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read file")
		return nil, false
	}
	return data, validImage(w, data)
}

func validImage(w http.ResponseWriter, data []byte) bool {
	if len(data) == 0 {
		writeDetail(w, http.StatusBadRequest, "empty file")
		return false
	}
	if len(data) > MaxUploadBytes {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("file exceeds %d bytes", MaxUploadBytes))
		return false
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		writeDetail(w, http.StatusBadRequest, "unsupported file type")
		return false
	}
	return true
}

// parseForm handles both urlencoded and multipart form submissions.
func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(1 << 20)
	}
	return r.ParseForm()
}
