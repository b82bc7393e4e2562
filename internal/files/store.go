package files

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrOutsideStore indicates a path that does not live under the data directory.
var ErrOutsideStore = errors.New("path outside data directory")

// Store persists uploaded and generated images on the local filesystem.
// Layout: <base>/uploads, <base>/results, <base>/catalog.
type Store struct {
	BaseDir    string
	UploadsDir string
	ResultsDir string
	CatalogDir string
}

// NewStore creates the directory tree rooted at baseDir.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		baseDir = "data"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	s := &Store{
		BaseDir:    abs,
		UploadsDir: filepath.Join(abs, "uploads"),
		ResultsDir: filepath.Join(abs, "results"),
		CatalogDir: filepath.Join(abs, "catalog"),
	}
	for _, dir := range []string{s.UploadsDir, s.ResultsDir, s.CatalogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// SaveUpload writes uploaded image bytes under uploads/ and returns the path.
func (s *Store) SaveUpload(data []byte, filename string) (string, error) {
	return s.save(s.UploadsDir, data, filename)
}

// SaveResult writes a generated image under results/ and returns the path.
func (s *Store) SaveResult(data []byte, filename string) (string, error) {
	return s.save(s.ResultsDir, data, filename)
}

// SaveCatalogImage writes a catalog image under catalog/ and returns the path.
func (s *Store) SaveCatalogImage(data []byte, filename string) (string, error) {
	return s.save(s.CatalogDir, data, filename)
}

// Collision avoidance relies on random file names; there is no locking
// between concurrent writers.
func (s *Store) save(dir string, data []byte, filename string) (string, error) {
	name := uuid.NewString() + normalizeExt(filename, data)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

// Resolve cleans a client-supplied path and verifies it points at an existing
// file inside the data directory.
func (s *Store) Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, s.BaseDir+string(filepath.Separator)) {
		return "", ErrOutsideStore
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", filepath.Base(abs), err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", filepath.Base(abs))
	}
	return abs, nil
}

// Read returns the file contents and a sniffed MIME type.
func (s *Store) Read(p string) ([]byte, string, error) {
	abs, err := s.Resolve(p)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	return data, mime, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(p string) error {
	abs, err := s.Resolve(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(abs), err)
	}
	return nil
}

// ResultURL maps a results/ path to its public URL.
func (s *Store) ResultURL(p string) string {
	return "/results/" + filepath.Base(p)
}

// CatalogURL maps a catalog/ path to its public URL.
func (s *Store) CatalogURL(p string) string {
	return "/catalog/" + filepath.Base(p)
}

func normalizeExt(filename string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return ext
	}
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
