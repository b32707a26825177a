package repository

import (
	"context"
	"sync"

	"stockroom/internal/domain"
)

// MemoryRepository keeps the encoded collection in process memory.
// Data does not survive a restart.
type MemoryRepository struct {
	mu    sync.RWMutex
	data  []byte
	saved bool
}

// NewMemoryRepository creates an empty, never-saved repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load(_ context.Context) ([]domain.Product, bool, error) {
	r.mu.RLock()
	data, saved := r.data, r.saved
	r.mu.RUnlock()

	if !saved {
		return nil, false, nil
	}

	products, err := decodeCollection(data)
	if err != nil {
		return nil, false, err
	}
	return products, true, nil
}

func (r *MemoryRepository) Save(_ context.Context, products []domain.Product) error {
	data, err := encodeCollection(products)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.data = data
	r.saved = true
	r.mu.Unlock()
	return nil
}

// Bytes returns a copy of the stored payload, or nil when nothing was saved
func (r *MemoryRepository) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.saved {
		return nil
	}
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}
