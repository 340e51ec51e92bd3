package interfaces

import "context"

// ProgressionRepository хранит один непрозрачный blob прогресса на игрока.
//
//go:generate mockery --name ProgressionRepository --output ./mocks --outpkg mocks --case=underscore
type ProgressionRepository interface {
	// Get возвращает сохраненный blob для playerID.
	// Возвращает models.ErrNotFound, если ничего еще не сохранено.
	Get(ctx context.Context, playerID string) ([]byte, error)

	// Upsert заменяет сохраненный blob для playerID.
	Upsert(ctx context.Context, playerID string, data []byte) error

	// Delete удаляет blob для playerID. Удаление отсутствующей записи не ошибка.
	Delete(ctx context.Context, playerID string) error
}
