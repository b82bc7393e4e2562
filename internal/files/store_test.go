package files

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n" + "fakepixels")

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestSaveUploadCreatesReadableFile(t *testing.T) {
	store := newTestStore(t)

	path, err := store.SaveUpload(pngBytes, "room.png")
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if filepath.Dir(path) != store.UploadsDir {
		t.Errorf("path %q not under uploads dir %q", path, store.UploadsDir)
	}

	data, mime, err := store.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != string(pngBytes) {
		t.Error("read data differs from written data")
	}
	if mime != "image/png" {
		t.Errorf("mime = %q, want image/png", mime)
	}
}

func TestSaveKeepsKnownExtension(t *testing.T) {
	store := newTestStore(t)

	path, err := store.SaveUpload([]byte("\xff\xd8\xff\xe0payload"), "photo.JPG")
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if !strings.HasSuffix(path, ".jpg") {
		t.Errorf("path %q should keep the .jpg extension", path)
	}
}

func TestSaveSniffsUnknownExtension(t *testing.T) {
	store := newTestStore(t)

	path, err := store.SaveUpload(pngBytes, "upload.bin")
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if !strings.HasSuffix(path, ".png") {
		t.Errorf("path %q should get a sniffed .png extension", path)
	}
}

func TestResolveRejectsOutsidePaths(t *testing.T) {
	store := newTestStore(t)

	outside := filepath.Join(t.TempDir(), "escape.png")
	if err := os.WriteFile(outside, pngBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Resolve(outside); !errors.Is(err, ErrOutsideStore) {
		t.Errorf("Resolve(%q) error = %v, want ErrOutsideStore", outside, err)
	}

	traversal := filepath.Join(store.UploadsDir, "..", "..", "etc", "passwd")
	if _, err := store.Resolve(traversal); !errors.Is(err, ErrOutsideStore) {
		t.Errorf("Resolve traversal error = %v, want ErrOutsideStore", err)
	}
}

func TestResolveRejectsEmptyAndMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Resolve(""); err == nil {
		t.Error("Resolve(\"\") should fail")
	}
	if _, err := store.Resolve(filepath.Join(store.UploadsDir, "nope.png")); err == nil {
		t.Error("Resolve of a missing file should fail")
	}
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	if err := store.Remove(filepath.Join(store.UploadsDir, "gone.png")); err != nil {
		t.Errorf("Remove missing file: %v", err)
	}

	path, err := store.SaveResult(pngBytes, "out.png")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("file should be gone after Remove")
	}
}

func TestPublicURLs(t *testing.T) {
	store := newTestStore(t)

	resultPath, _ := store.SaveResult(pngBytes, "a.png")
	catalogPath, _ := store.SaveCatalogImage(pngBytes, "b.png")

	if got := store.ResultURL(resultPath); got != "/results/"+filepath.Base(resultPath) {
		t.Errorf("ResultURL = %q", got)
	}
	if got := store.CatalogURL(catalogPath); got != "/catalog/"+filepath.Base(catalogPath) {
		t.Errorf("CatalogURL = %q", got)
	}
}
