package store

import (
	"context"
	"sync"
)

// memoryBackend guarda el blob en memoria. Para tests.
type memoryBackend struct {
	mu   sync.Mutex
	data []byte
}

// NewMemory crea un backend en memoria vacío.
func NewMemory() Backend {
	return &memoryBackend{}
}

func (m *memoryBackend) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(m.data))
	copy(cp, m.data)
	return cp, nil
}

func (m *memoryBackend) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data = cp
	return nil
}

func (m *memoryBackend) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
