package blobstore

import (
	"context"
	"fmt"
	"hash/crc32"
	"slices"
	"sync"
)

// MemoryStore keeps objects in process memory. Used for tests and the
// memory:// backend.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) List(_ context.Context, prefix, suffix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.objects))
	for k := range m.objects {
		names = append(names, k)
	}
	return filterNames(names, prefix, suffix), nil
}

// Versions tags each object with its size and checksum.
func (m *MemoryStore) Versions(_ context.Context, prefix, suffix string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tags := make(map[string]string, len(m.objects))
	for k, b := range m.objects {
		tags[k] = fmt.Sprintf("%d-%08x", len(b), crc32.ChecksumIEEE(b))
	}
	return filterTags(tags, prefix, suffix), nil
}

func (m *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	return slices.Clone(b), nil
}

func (m *MemoryStore) Put(_ context.Context, path string, data []byte, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; ok && !overwrite {
		return fmt.Errorf("put %s: %w", path, ErrExists)
	}
	m.objects[path] = slices.Clone(data)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; !ok {
		return fmt.Errorf("delete %s: %w", path, ErrNotFound)
	}
	delete(m.objects, path)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
