package persistence

import (
	"context"
	"errors"

	"keepsake-server/internal/engine"
	"keepsake-server/internal/interfaces"
	"keepsake-server/internal/models"
)

var _ engine.Store = (*Snapshot)(nil)

// ErrReadOnly возвращается при попытке очистить состояние через Snapshot.
var ErrReadOnly = errors.New("progression snapshot is read-only")

// Snapshot - хранилище только для чтения: загружает сохраненное состояние
// и отбрасывает сохранения. Не запускает фоновых горутин.
type Snapshot struct {
	repo     interfaces.ProgressionRepository
	playerID string
}

func NewSnapshot(repo interfaces.ProgressionRepository, playerID string) *Snapshot {
	return &Snapshot{repo: repo, playerID: playerID}
}

func (s *Snapshot) Load(ctx context.Context) (*models.ProgressionState, error) {
	return loadState(ctx, s.repo, s.playerID)
}

func (s *Snapshot) Save(*models.ProgressionState) {}

func (s *Snapshot) Clear(context.Context) error { return ErrReadOnly }
