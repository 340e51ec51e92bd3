package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"keepsake-server/internal/interfaces"
	"keepsake-server/internal/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var _ interfaces.ProgressionRepository = (*sqliteProgressionRepository)(nil)

const createSQLiteProgressionTable = `
CREATE TABLE IF NOT EXISTS player_progression (
    player_id  TEXT PRIMARY KEY,
    state      BLOB NOT NULL,
    updated_at INTEGER NOT NULL
)`

// InitSQLite открывает локальное хранилище по path и создает схему.
func InitSQLite(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite допускает одного писателя.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(createSQLiteProgressionTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return db, nil
}

type sqliteProgressionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteProgressionRepository ожидает соединение, подготовленное InitSQLite.
func NewSQLiteProgressionRepository(db *sql.DB, logger *zap.Logger) interfaces.ProgressionRepository {
	return &sqliteProgressionRepository{
		db:     db,
		logger: logger.Named("SQLiteProgressionRepo"),
	}
}

func (r *sqliteProgressionRepository) Get(ctx context.Context, playerID string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT state FROM player_progression WHERE player_id = ?`, playerID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get progression", zap.String("playerID", playerID), zap.Error(err))
		return nil, fmt.Errorf("get progression: %w", err)
	}
	return data, nil
}

func (r *sqliteProgressionRepository) Upsert(ctx context.Context, playerID string, data []byte) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO player_progression (player_id, state, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (player_id) DO UPDATE SET
    state = excluded.state,
    updated_at = excluded.updated_at`,
		playerID, data, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		r.logger.Error("Failed to upsert progression", zap.String("playerID", playerID), zap.Error(err))
		return fmt.Errorf("upsert progression: %w", err)
	}
	return nil
}

func (r *sqliteProgressionRepository) Delete(ctx context.Context, playerID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM player_progression WHERE player_id = ?`, playerID,
	); err != nil {
		r.logger.Error("Failed to delete progression", zap.String("playerID", playerID), zap.Error(err))
		return fmt.Errorf("delete progression: %w", err)
	}
	return nil
}
