package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"keepsake-server/internal/engine"
	"keepsake-server/internal/interfaces"
	"keepsake-server/internal/models"

	"go.uber.org/zap"
)

const defaultSaveTimeout = 5 * time.Second

var _ engine.Store = (*Gateway)(nil)

// Option настраивает Gateway.
type Option func(*Gateway)

// WithSaveTimeout ограничивает каждую фоновую запись.
func WithSaveTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.saveTimeout = d
		}
	}
}

// WithSaveErrorHandler вызывается после неудачной фоновой записи.
func WithSaveErrorHandler(fn func(playerID string, err error)) Option {
	return func(g *Gateway) { g.onSaveError = fn }
}

// Gateway адаптирует ProgressionRepository к Store движка. Сохранения ставятся
// в очередь и пишутся одним воркером, хранится только последний незаписанный снимок.
type Gateway struct {
	repo        interfaces.ProgressionRepository
	playerID    string
	logger      *zap.Logger
	saveTimeout time.Duration
	onSaveError func(playerID string, err error)

	// writeMu упорядочивает записи в репозиторий и Clear.
	writeMu sync.Mutex

	mu      sync.Mutex
	pending *models.ProgressionState
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewGateway запускает фоновую запись для playerID.
func NewGateway(repo interfaces.ProgressionRepository, playerID string, logger *zap.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		repo:        repo,
		playerID:    playerID,
		logger:      logger.Named("PersistenceGateway").With(zap.String("playerID", playerID)),
		saveTimeout: defaultSaveTimeout,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	go g.run()
	return g
}

// Load возвращает сохраненное состояние или nil, если у игрока его нет.
func (g *Gateway) Load(ctx context.Context) (*models.ProgressionState, error) {
	return loadState(ctx, g.repo, g.playerID)
}

func loadState(ctx context.Context, repo interfaces.ProgressionRepository, playerID string) (*models.ProgressionState, error) {
	data, err := repo.Get(ctx, playerID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load progression: %w", err)
	}
	state, err := models.DecodeState(data)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Save ставит состояние в очередь на запись и сразу возвращается.
func (g *Gateway) Save(state *models.ProgressionState) {
	if state == nil {
		return
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.logger.Warn("Dropping save after close")
		return
	}
	g.pending = state
	g.mu.Unlock()

	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Clear отбрасывает снимок в очереди и удаляет сохраненную запись.
func (g *Gateway) Clear(ctx context.Context) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()

	if err := g.repo.Delete(ctx, g.playerID); err != nil {
		return fmt.Errorf("failed to clear progression: %w", err)
	}
	g.logger.Info("Progression cleared")
	return nil
}

// Flush записывает снимок из очереди, если он есть.
func (g *Gateway) Flush(ctx context.Context) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.writePending(ctx)
}

// Close останавливает запись и сбрасывает то, что осталось в очереди.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	close(g.stop)
	select {
	case <-g.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.Flush(ctx)
}

func (g *Gateway) run() {
	defer close(g.done)
	for {
		select {
		case <-g.stop:
			return
		case <-g.wake:
			g.writeMu.Lock()
			ctx, cancel := context.WithTimeout(context.Background(), g.saveTimeout)
			err := g.writePending(ctx)
			cancel()
			g.writeMu.Unlock()
			if err != nil {
				g.logger.Error("Failed to save progression", zap.Error(err))
				if g.onSaveError != nil {
					g.onSaveError(g.playerID, err)
				}
			}
		}
	}
}

// writePending вызывается под writeMu.
func (g *Gateway) writePending(ctx context.Context) error {
	g.mu.Lock()
	state := g.pending
	g.pending = nil
	g.mu.Unlock()
	if state == nil {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode progression: %w", err)
	}
	if err := g.repo.Upsert(ctx, g.playerID, data); err != nil {
		return fmt.Errorf("failed to store progression: %w", err)
	}
	g.logger.Debug("Progression saved", zap.Int("bytes", len(data)))
	return nil
}
