package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"keepsake-server/internal/catalog"
	"keepsake-server/internal/engine"
	"keepsake-server/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var cet = time.FixedZone("CET", 3600)

// start - утро вторника, вне обоих дневных окон.
var start = time.Date(2026, time.March, 10, 10, 0, 0, 0, cet)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// scriptedRoller отдает значения по порядку, затем всегда fallback.
type scriptedRoller struct {
	values   []float64
	fallback float64
}

func (r *scriptedRoller) Float64() float64 {
	if len(r.values) == 0 {
		return r.fallback
	}
	v := r.values[0]
	r.values = r.values[1:]
	return v
}

// neverDrops держит каждый бросок выше любого шанса выпадения.
func neverDrops() *scriptedRoller { return &scriptedRoller{fallback: 0.99} }

type fakeStore struct {
	mu       sync.Mutex
	loaded   *models.ProgressionState
	loadErr  error
	clearErr error
	saves    []*models.ProgressionState
	cleared  int
	// onClear вызывается в начале Clear, вне блокировки хранилища.
	onClear func()
}

func (s *fakeStore) Load(context.Context) (*models.ProgressionState, error) {
	return s.loaded, s.loadErr
}

func (s *fakeStore) Save(state *models.ProgressionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, state)
}

func (s *fakeStore) Clear(context.Context) error {
	if s.onClear != nil {
		s.onClear()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cleared++
	return nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func (s *fakeStore) lastSave() *models.ProgressionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

type harness struct {
	engine *engine.Engine
	store  *fakeStore
	clock  *testClock
	cat    *catalog.Catalog
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	cat    *catalog.Catalog
	loaded *models.ProgressionState
	roller engine.Roller
	now    time.Time
}

func withState(mutate func(s *models.ProgressionState)) harnessOption {
	return func(c *harnessConfig) {
		s := models.DefaultState()
		s.Inventory = append(s.Inventory, "owl", "dragon_egg")
		mutate(s)
		c.loaded = s
	}
}

func withCatalog(cat *catalog.Catalog) harnessOption {
	return func(c *harnessConfig) { c.cat = cat }
}

func withRoller(r engine.Roller) harnessOption {
	return func(c *harnessConfig) { c.roller = r }
}

func at(t time.Time) harnessOption {
	return func(c *harnessConfig) { c.now = t }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{roller: neverDrops(), now: start}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cat == nil {
		cat, err := catalog.Default()
		require.NoError(t, err)
		cfg.cat = cat
	}

	clock := newClock(cfg.now)
	store := &fakeStore{loaded: cfg.loaded}
	e := engine.New(cfg.cat, store, zap.NewNop(),
		engine.WithClock(clock.Now),
		engine.WithRoller(cfg.roller),
		engine.WithLocation(cet),
	)
	e.Init(context.Background())
	return &harness{engine: e, store: store, clock: clock, cat: cfg.cat}
}

func (h *harness) process(t *testing.T, typ engine.EventType, p engine.Payload) engine.Result {
	t.Helper()
	res, err := h.engine.ProcessEvent(engine.Event{Type: typ, Payload: p})
	require.NoError(t, err)
	return res
}

func (h *harness) send(t *testing.T, typ engine.EventType) engine.Result {
	t.Helper()
	return h.process(t, typ, engine.Payload{})
}

func boolPtr(b bool) *bool { return &b }

// earnableIDs - незарезервированные предметы каталога по порядку.
func earnableIDs(cat *catalog.Catalog) []string {
	var ids []string
	for _, it := range cat.Items() {
		if !it.Reserved {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
