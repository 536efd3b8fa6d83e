package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StoreVersion is the current schema version for resource storage.
const StoreVersion = 1

// storeData is the serializable store format.
type storeData struct {
	Version   int                       `json:"version"`
	Resources map[string]StoredResource `json:"resources"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// MemoryResourceStore is an in-memory ResourceStore implementation.
type MemoryResourceStore struct {
	mu    sync.RWMutex
	state storeData
}

// NewMemoryResourceStore creates a new in-memory resource store.
func NewMemoryResourceStore() *MemoryResourceStore {
	return &MemoryResourceStore{
		state: storeData{
			Version:   StoreVersion,
			Resources: make(map[string]StoredResource),
			UpdatedAt: time.Now(),
		},
	}
}

// Save implements ResourceStore.
func (s *MemoryResourceStore) Save(ctx context.Context, record StoredResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Resources[record.ID] = record
	s.state.UpdatedAt = time.Now()
	return nil
}

// Get implements ResourceStore.
func (s *MemoryResourceStore) Get(ctx context.Context, id string) (*StoredResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.state.Resources[id]
	if !exists {
		return nil, ErrNotFound("resource", id)
	}
	return &record, nil
}

// List implements ResourceStore.
func (s *MemoryResourceStore) List(ctx context.Context) ([]StoredResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]StoredResource, 0, len(s.state.Resources))
	for _, record := range s.state.Resources {
		records = append(records, record)
	}
	return records, nil
}

// Delete implements ResourceStore.
func (s *MemoryResourceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent: deleting non-existent is not an error
	delete(s.state.Resources, id)
	s.state.UpdatedAt = time.Now()
	return nil
}

// FileResourceStore is a file-based ResourceStore implementation.
type FileResourceStore struct {
	mu       sync.RWMutex
	filePath string
	state    storeData
}

// NewFileResourceStore creates a new file-based resource store.
// If the file exists, it loads the existing state.
func NewFileResourceStore(filePath string) (*FileResourceStore, error) {
	s := &FileResourceStore{
		filePath: filePath,
		state: storeData{
			Version:   StoreVersion,
			Resources: make(map[string]StoredResource),
			UpdatedAt: time.Now(),
		},
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load resource store: %w", err)
	}

	return s, nil
}

// load reads state from file.
func (s *FileResourceStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var state storeData
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("invalid resource store format: %w", err)
	}

	if state.Version != StoreVersion {
		return fmt.Errorf("unsupported resource store version: %d", state.Version)
	}

	if state.Resources == nil {
		state.Resources = make(map[string]StoredResource)
	}

	s.state = state
	return nil
}

// persist writes state to file atomically.
func (s *FileResourceStore) persist() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

// Save implements ResourceStore.
func (s *FileResourceStore) Save(ctx context.Context, record StoredResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Resources[record.ID] = record
	s.state.UpdatedAt = time.Now()
	return s.persist()
}

// Get implements ResourceStore.
func (s *FileResourceStore) Get(ctx context.Context, id string) (*StoredResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.state.Resources[id]
	if !exists {
		return nil, ErrNotFound("resource", id)
	}
	return &record, nil
}

// List implements ResourceStore.
func (s *FileResourceStore) List(ctx context.Context) ([]StoredResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]StoredResource, 0, len(s.state.Resources))
	for _, record := range s.state.Resources {
		records = append(records, record)
	}
	return records, nil
}

// Delete implements ResourceStore.
func (s *FileResourceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.Resources[id]; !exists {
		return nil
	}

	delete(s.state.Resources, id)
	s.state.UpdatedAt = time.Now()
	return s.persist()
}
