package database

import (
	"context"
	"slices"
	"sync"

	"keepsake-server/internal/interfaces"
	"keepsake-server/internal/models"
)

var _ interfaces.ProgressionRepository = (*MemoryProgressionRepository)(nil)

// MemoryProgressionRepository хранит blob в памяти процесса.
type MemoryProgressionRepository struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryProgressionRepository() *MemoryProgressionRepository {
	return &MemoryProgressionRepository{blobs: make(map[string][]byte)}
}

func (r *MemoryProgressionRepository) Get(_ context.Context, playerID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.blobs[playerID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return slices.Clone(data), nil
}

func (r *MemoryProgressionRepository) Upsert(_ context.Context, playerID string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[playerID] = slices.Clone(data)
	return nil
}

func (r *MemoryProgressionRepository) Delete(_ context.Context, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blobs, playerID)
	return nil
}

// Len возвращает число игроков с сохраненным blob.
func (r *MemoryProgressionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}
