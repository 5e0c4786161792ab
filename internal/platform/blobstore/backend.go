package blobstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Backend is raw byte storage addressed by name. Store layers keys,
// versions, encryption and access logging on top of it.
type Backend interface {
	Put(ctx context.Context, name string, data []byte) error
	// Get returns ErrObjectNotFound when name does not exist.
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	// List returns every name starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// MemoryBackend keeps objects in a map. Used in tests and the sandbox.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

func (m *MemoryBackend) Put(_ context.Context, name string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.objects[name] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MemoryBackend) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.objects, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// raw exposes stored bytes to tests in this package.
func (m *MemoryBackend) raw(name string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[name]
}
