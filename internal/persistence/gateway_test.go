package persistence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"keepsake-server/internal/database"
	"keepsake-server/internal/interfaces/mocks"
	"keepsake-server/internal/models"
	"keepsake-server/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stateWithStars(n int) *models.ProgressionState {
	s := models.DefaultState()
	s.Totals.GoldStars = n
	s.Totals.LifetimeGoldStars = n
	return s
}

func TestGatewayLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing record loads as nil", func(t *testing.T) {
		repo := mocks.NewProgressionRepository(t)
		repo.On("Get", mock.Anything, "p1").Return(nil, models.ErrNotFound)

		g := persistence.NewGateway(repo, "p1", zap.NewNop())
		defer g.Close(ctx)

		state, err := g.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("Partial blob is filled with defaults", func(t *testing.T) {
		repo := mocks.NewProgressionRepository(t)
		repo.On("Get", mock.Anything, "p1").
			Return([]byte(`{"totals":{"goldStars":4},"inventory":["owl","owl","dragon_egg"]}`), nil)

		g := persistence.NewGateway(repo, "p1", zap.NewNop())
		defer g.Close(ctx)

		state, err := g.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, 4, state.Totals.GoldStars)
		assert.Equal(t, []string{"owl", "dragon_egg"}, state.Inventory)
		assert.Equal(t, models.ProphecyHidden, state.Discovery.ProphecyState)
		assert.Equal(t, models.DefaultRealmID, state.Discovery.ActiveRealmID)
		assert.NotNil(t, state.Discovery.ArmedHotspots)
	})

	t.Run("Corrupt blob is reported", func(t *testing.T) {
		repo := mocks.NewProgressionRepository(t)
		repo.On("Get", mock.Anything, "p1").Return([]byte(`{"totals":`), nil)

		g := persistence.NewGateway(repo, "p1", zap.NewNop())
		defer g.Close(ctx)

		_, err := g.Load(ctx)
		assert.ErrorIs(t, err, models.ErrCorruptState)
	})

	t.Run("Repository failure is wrapped", func(t *testing.T) {
		boom := errors.New("connection refused")
		repo := mocks.NewProgressionRepository(t)
		repo.On("Get", mock.Anything, "p1").Return(nil, boom)

		g := persistence.NewGateway(repo, "p1", zap.NewNop())
		defer g.Close(ctx)

		_, err := g.Load(ctx)
		assert.ErrorIs(t, err, boom)
	})
}

func TestGatewaySaveAndClose(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryProgressionRepository()
	g := persistence.NewGateway(repo, "p1", zap.NewNop())

	for i := 1; i <= 5; i++ {
		g.Save(stateWithStars(i))
	}
	require.NoError(t, g.Close(ctx))

	g2 := persistence.NewGateway(repo, "p1", zap.NewNop())
	defer g2.Close(ctx)
	state, err := g2.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 5, state.Totals.GoldStars, "the newest snapshot is the one that survives")

	t.Run("Saves after close are dropped", func(t *testing.T) {
		g.Save(stateWithStars(99))
		assert.NoError(t, g.Close(ctx))

		state, err := g2.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, state.Totals.GoldStars)
	})
}

// blockingRepo держит первый Upsert до освобождения.
type blockingRepo struct {
	*database.MemoryProgressionRepository
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	writes [][]byte
	once   sync.Once
}

func (r *blockingRepo) Upsert(ctx context.Context, playerID string, data []byte) error {
	r.mu.Lock()
	r.writes = append(r.writes, data)
	r.mu.Unlock()
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return r.MemoryProgressionRepository.Upsert(ctx, playerID, data)
}

func (r *blockingRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

func TestGatewayLatestWins(t *testing.T) {
	ctx := context.Background()
	repo := &blockingRepo{
		MemoryProgressionRepository: database.NewMemoryProgressionRepository(),
		entered:                     make(chan struct{}),
		release:                     make(chan struct{}),
	}
	g := persistence.NewGateway(repo, "p1", zap.NewNop())

	g.Save(stateWithStars(1))
	<-repo.entered

	g.Save(stateWithStars(2))
	g.Save(stateWithStars(3))
	close(repo.release)

	require.NoError(t, g.Close(ctx))
	assert.Equal(t, 2, repo.writeCount(), "the superseded snapshot is never written")

	state, err := g.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, state.Totals.GoldStars)
}

func TestGatewaySaveFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	repo := mocks.NewProgressionRepository(t)
	repo.On("Upsert", mock.Anything, "p1", mock.Anything).Return(boom)

	failures := make(chan error, 1)
	g := persistence.NewGateway(repo, "p1", zap.NewNop(),
		persistence.WithSaveTimeout(time.Second),
		persistence.WithSaveErrorHandler(func(playerID string, err error) {
			assert.Equal(t, "p1", playerID)
			failures <- err
		}),
	)
	defer g.Close(ctx)

	g.Save(stateWithStars(1))

	select {
	case err := <-failures:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("save failure was not reported")
	}
}

func TestGatewayClear(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryProgressionRepository()
	g := persistence.NewGateway(repo, "p1", zap.NewNop())
	defer g.Close(ctx)

	g.Save(stateWithStars(1))
	require.NoError(t, g.Flush(ctx))
	assert.Equal(t, 1, repo.Len())

	g.Save(stateWithStars(2))
	require.NoError(t, g.Clear(ctx))
	require.NoError(t, g.Flush(ctx))

	state, err := g.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, state, "a queued snapshot does not outlive a clear")

	t.Run("Delete failure is returned", func(t *testing.T) {
		failing := mocks.NewProgressionRepository(t)
		failing.On("Delete", mock.Anything, "p2").Return(errors.New("timeout"))

		g := persistence.NewGateway(failing, "p2", zap.NewNop())
		defer g.Close(ctx)
		assert.Error(t, g.Clear(ctx))
	})
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewProgressionRepository(t)
	repo.On("Get", mock.Anything, "p1").Return([]byte(`{"totals":{"goldStars":7}}`), nil).Once()
	repo.On("Get", mock.Anything, "ghost").Return(nil, models.ErrNotFound).Once()

	state, err := persistence.NewSnapshot(repo, "p1").Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 7, state.Totals.GoldStars)

	ghost := persistence.NewSnapshot(repo, "ghost")
	state, err = ghost.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	ghost.Save(stateWithStars(3))
	assert.ErrorIs(t, ghost.Clear(ctx), persistence.ErrReadOnly)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}
