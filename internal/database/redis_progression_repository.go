package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keepsake-server/internal/interfaces"
	"keepsake-server/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ interfaces.ProgressionRepository = (*redisProgressionRepository)(nil)

const progressionKeyPrefix = "progression:"

type redisProgressionRepository struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisProgressionRepository хранит blob игрока по ключу
// progression:{playerID}. При нулевом ttl ключи не истекают, иначе
// каждое сохранение продлевает срок.
func NewRedisProgressionRepository(client *redis.Client, logger *zap.Logger, ttl time.Duration) interfaces.ProgressionRepository {
	return &redisProgressionRepository{
		client: client,
		logger: logger.Named("RedisProgressionRepo"),
		ttl:    ttl,
	}
}

func progressionKey(playerID string) string {
	return progressionKeyPrefix + playerID
}

func (r *redisProgressionRepository) Get(ctx context.Context, playerID string) ([]byte, error) {
	data, err := r.client.Get(ctx, progressionKey(playerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get progression from redis", zap.String("playerID", playerID), zap.Error(err))
		return nil, fmt.Errorf("failed to get progression: %w", err)
	}
	return data, nil
}

func (r *redisProgressionRepository) Upsert(ctx context.Context, playerID string, data []byte) error {
	if err := r.client.Set(ctx, progressionKey(playerID), data, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to store progression in redis", zap.String("playerID", playerID), zap.Error(err))
		return fmt.Errorf("failed to store progression: %w", err)
	}
	r.logger.Debug("Progression stored in redis",
		zap.String("playerID", playerID),
		zap.Duration("ttl", r.ttl),
	)
	return nil
}

func (r *redisProgressionRepository) Delete(ctx context.Context, playerID string) error {
	deleted, err := r.client.Del(ctx, progressionKey(playerID)).Result()
	if err != nil {
		r.logger.Error("Failed to delete progression from redis", zap.String("playerID", playerID), zap.Error(err))
		return fmt.Errorf("failed to delete progression: %w", err)
	}
	r.logger.Info("Progression deleted from redis", zap.String("playerID", playerID), zap.Int64("deletedCount", deleted))
	return nil
}
