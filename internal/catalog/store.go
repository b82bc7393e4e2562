package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound indicates that an item could not be located in the catalog.
var ErrNotFound = errors.New("catalog item not found")

// Item represents a purchasable furniture item.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Style       string   `json:"style"`
	ImagePath   string   `json:"image_path"`
	ImageURL    string   `json:"image_url"`
	Description string   `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

// Store keeps catalog items in memory and mirrors them to a JSON file so
// the catalog survives restarts.
type Store struct {
	mu    sync.RWMutex
	path  string
	items []Item
}

// NewStore loads the catalog file if it exists and returns an empty store
// otherwise.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, items: []Item{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.items); err != nil {
			return nil, fmt.Errorf("parse catalog file: %w", err)
		}
	}
	return s, nil
}

// Add appends an item, assigning an ID when missing, and persists.
func (s *Store) Add(item Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	s.items = append(s.items, item)
	if err := s.flush(); err != nil {
		s.items = s.items[:len(s.items)-1]
		return Item{}, err
	}
	return item, nil
}

// List returns a snapshot of all items.
func (s *Store) List() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]Item, len(s.items))
	copy(snapshot, s.items)
	return snapshot
}

// Get returns an item by ID.
func (s *Store) Get(id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return Item{}, ErrNotFound
}

// Delete removes an item by ID and persists. The removed item is returned so
// the caller can clean up its image file.
func (s *Store) Delete(id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, item := range s.items {
		if item.ID == id {
			remaining := make([]Item, 0, len(s.items)-1)
			remaining = append(remaining, s.items[:idx]...)
			remaining = append(remaining, s.items[idx+1:]...)
			prev := s.items
			s.items = remaining
			if err := s.flush(); err != nil {
				s.items = prev
				return Item{}, err
			}
			return item, nil
		}
	}
	return Item{}, ErrNotFound
}

// Len reports the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) flush() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace catalog file: %w", err)
	}
	return nil
}

// DefaultPath returns the catalog file location under the data directory.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "catalog.json")
}
