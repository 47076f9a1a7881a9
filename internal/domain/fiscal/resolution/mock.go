package resolution

import (
	"context"
	"sync"

	"hostal/internal/domain/fiscal"
)

// MemoryRepository is an in-memory Repository for unit tests.
type MemoryRepository struct {
	mu   sync.Mutex
	rows []*Resolution
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Ensure compile-time interface compliance.
var _ Repository = (*MemoryRepository)(nil)

// Insert implements Repository.
func (m *MemoryRepository) Insert(ctx context.Context, res *Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *res
	m.rows = append(m.rows, &clone)
	return nil
}

// List implements Repository.
func (m *MemoryRepository) List(ctx context.Context, series fiscal.Series) ([]*Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Resolution
	for _, res := range m.rows {
		if res.Series == series {
			clone := *res
			out = append(out, &clone)
		}
	}
	return out, nil
}
