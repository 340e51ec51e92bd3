package database

import (
	"context"
	"errors"

	"keepsake-server/internal/interfaces"
	"keepsake-server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Проверка на этапе компиляции, что реализация удовлетворяет интерфейсу.
var _ interfaces.ProgressionRepository = (*pgProgressionRepository)(nil)

type pgProgressionRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgProgressionRepository хранит blob прогресса в строках JSONB.
func NewPgProgressionRepository(pool *pgxpool.Pool, logger *zap.Logger) interfaces.ProgressionRepository {
	return &pgProgressionRepository{
		pool:   pool,
		logger: logger.Named("PgProgressionRepo"),
	}
}

const getProgressionQuery = `
SELECT state
FROM player_progression
WHERE player_id = $1`

const upsertProgressionQuery = `
INSERT INTO player_progression (player_id, state, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (player_id) DO UPDATE SET
    state = EXCLUDED.state,
    updated_at = EXCLUDED.updated_at`

const deleteProgressionQuery = `
DELETE FROM player_progression
WHERE player_id = $1`

func (r *pgProgressionRepository) Get(ctx context.Context, playerID string) ([]byte, error) {
	logFields := []zap.Field{zap.String("playerID", playerID)}

	var data []byte
	err := r.pool.QueryRow(ctx, getProgressionQuery, playerID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get progression", append(logFields, zap.Error(err))...)
		return nil, err
	}

	r.logger.Debug("Retrieved progression", append(logFields, zap.Int("bytes", len(data)))...)
	return data, nil
}

func (r *pgProgressionRepository) Upsert(ctx context.Context, playerID string, data []byte) error {
	logFields := []zap.Field{zap.String("playerID", playerID), zap.Int("bytes", len(data))}

	if _, err := r.pool.Exec(ctx, upsertProgressionQuery, playerID, data); err != nil {
		r.logger.Error("Failed to upsert progression", append(logFields, zap.Error(err))...)
		return err
	}

	r.logger.Debug("Progression upserted", logFields...)
	return nil
}

func (r *pgProgressionRepository) Delete(ctx context.Context, playerID string) error {
	logFields := []zap.Field{zap.String("playerID", playerID)}

	tag, err := r.pool.Exec(ctx, deleteProgressionQuery, playerID)
	if err != nil {
		r.logger.Error("Failed to delete progression", append(logFields, zap.Error(err))...)
		return err
	}

	r.logger.Info("Progression deleted", append(logFields, zap.Int64("rowsAffected", tag.RowsAffected()))...)
	return nil
}
