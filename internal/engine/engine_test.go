package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"keepsake-server/internal/catalog"
	"keepsake-server/internal/engine"
	"keepsake-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ruleCatalog(extra ...catalog.Item) *catalog.Catalog {
	items := []catalog.Item{
		{ID: "owl", SlotID: "ts_owl", Reserved: true},
		{ID: "stars", Unlock: catalog.StarsTotalAtLeast{Total: 10}},
		{ID: "blue", Unlock: catalog.TokensAtLeast{Token: catalog.TokenBlue, Total: 3}},
		{ID: "red", Unlock: catalog.TokensAtLeast{Token: catalog.TokenRed, Total: 3}},
		{ID: "riddles", Unlock: catalog.RiddlesSolvedAtLeast{Total: 10}},
		{ID: "crafts", Unlock: catalog.CraftsCompletedAtLeast{Total: 1}},
		{ID: "days", Unlock: catalog.DaysOpenedAtLeast{Total: 3}},
		{ID: "found", Unlock: catalog.DiscoveryUnlock{DiscoveryID: "disc_x"}},
		{ID: "plain"},
	}
	return catalog.New(catalog.Content{Config: catalog.DefaultConfig(), Items: append(items, extra...)})
}

func TestUnlockRules(t *testing.T) {
	tests := []struct {
		name  string
		item  string
		at    func(s *models.ProgressionState)
		below func(s *models.ProgressionState)
	}{
		{
			name:  "Lifetime stars",
			item:  "stars",
			at:    func(s *models.ProgressionState) { s.Totals.LifetimeGoldStars = 10 },
			below: func(s *models.ProgressionState) { s.Totals.LifetimeGoldStars = 9; s.Totals.GoldStars = 9 },
		},
		{
			name:  "Blue tokens",
			item:  "blue",
			at:    func(s *models.ProgressionState) { s.Totals.BlueTokens = 3 },
			below: func(s *models.ProgressionState) { s.Totals.BlueTokens = 2; s.Totals.RedTokens = 3 },
		},
		{
			name:  "Red tokens",
			item:  "red",
			at:    func(s *models.ProgressionState) { s.Totals.RedTokens = 3 },
			below: func(s *models.ProgressionState) { s.Totals.RedTokens = 2; s.Totals.BlueTokens = 3 },
		},
		{
			name:  "Riddles solved",
			item:  "riddles",
			at:    func(s *models.ProgressionState) { s.Riddles.SolvedCount = 10 },
			below: func(s *models.ProgressionState) { s.Riddles.SolvedCount = 9 },
		},
		{
			name:  "Days opened",
			item:  "days",
			at:    func(s *models.ProgressionState) { s.Discovery.AppOpenCount = 3 },
			below: func(s *models.ProgressionState) { s.Discovery.AppOpenCount = 2 },
		},
		{
			name: "Discovery",
			item: "found",
			at: func(s *models.ProgressionState) {
				s.Discovery.TriggeredDiscoveries = []string{"disc_x"}
			},
			below: func(s *models.ProgressionState) {
				s.Discovery.TriggeredDiscoveries = []string{"disc_y"}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, withCatalog(ruleCatalog()), withState(tt.at))
			res := h.send(t, engine.EventOwlRiddleOpened)
			assert.Contains(t, res.ItemsUnlocked, tt.item)
			assert.Contains(t, res.SoundCues, engine.CueItemReveal)

			h = newHarness(t, withCatalog(ruleCatalog()), withState(tt.below))
			res = h.send(t, engine.EventOwlRiddleOpened)
			assert.NotContains(t, res.ItemsUnlocked, tt.item)
		})
	}

	t.Run("Crafts rule never holds", func(t *testing.T) {
		h := newHarness(t, withCatalog(ruleCatalog()), withState(func(s *models.ProgressionState) {
			s.Totals.LifetimeGoldStars = 10000
			s.Totals.BlueTokens = 100
			s.Totals.RedTokens = 100
			s.Riddles.SolvedCount = 100
			s.Discovery.AppOpenCount = 100
			s.Discovery.TriggeredDiscoveries = []string{"disc_x"}
		}))
		res := h.send(t, engine.EventOwlRiddleOpened)
		assert.Equal(t, []string{"stars", "blue", "red", "riddles", "days", "found"}, res.ItemsUnlocked, "catalog order")
		assert.Equal(t, 1, countCue(res.SoundCues, engine.CueItemReveal))
		assert.False(t, res.NewState.HasItem("crafts"))
		assert.False(t, res.NewState.HasItem("plain"))
	})

	t.Run("Unknown token is fatal and leaves the state alone", func(t *testing.T) {
		cat := ruleCatalog(catalog.Item{ID: "green", Unlock: catalog.TokensAtLeast{Token: "greenTokens", Total: 1}})
		h := newHarness(t, withCatalog(cat))
		var notified int
		h.engine.Subscribe(func(engine.Result) { notified++ })

		_, err := h.engine.ProcessEvent(engine.Event{Type: engine.EventGamePlayed})
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrInvalidRule))
		assert.Zero(t, h.engine.GetState().Totals.GoldStars)
		assert.Zero(t, h.store.saveCount())
		assert.Zero(t, notified)
	})
}

func countCue(cues []engine.SoundCue, c engine.SoundCue) int {
	n := 0
	for _, have := range cues {
		if have == c {
			n++
		}
	}
	return n
}

func TestEggHatch(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	ids := earnableIDs(cat)
	require.Len(t, ids, 20)

	h := newHarness(t, withState(func(s *models.ProgressionState) {
		// item_20_meta не учитываем: его правило загадок не сработает
		s.Inventory = append(s.Inventory, ids[:19]...)
	}))
	require.NotContains(t, h.engine.GetState().Inventory, "item_20_meta")

	res := h.send(t, engine.EventGamePlayed)
	assert.False(t, res.EggHatchTriggered, "reserved items do not count")

	require.NoError(t, h.engine.DebugUnlockItem("item_20_meta"))
	res = h.send(t, engine.EventGamePlayed)
	assert.True(t, res.EggHatchTriggered)
	res = h.send(t, engine.EventMediaDone)
	assert.True(t, res.EggHatchTriggered, "repeats until acknowledged")
	assert.False(t, res.NewState.Discovery.HatchSeen)

	res = h.send(t, engine.EventHatchCinematicSeen)
	assert.False(t, res.EggHatchTriggered)
	assert.True(t, res.NewState.Discovery.HatchSeen)

	res = h.send(t, engine.EventGamePlayed)
	assert.False(t, res.EggHatchTriggered)
}

func TestCopyOnWrite(t *testing.T) {
	h := newHarness(t, withState(func(s *models.ProgressionState) {
		s.Inventory = append(s.Inventory, "item_03_clueRelic")
	}))

	first := h.send(t, engine.EventAppOpened)
	frozen := first.NewState.Clone()
	require.Same(t, first.NewState, h.store.lastSave())

	for i := 0; i < 12; i++ {
		h.send(t, engine.EventGamePlayed)
	}
	h.send(t, engine.EventProphecyTapped)
	h.process(t, engine.EventClueAcknowledged, engine.Payload{ClueID: "prophecy_moon_song"})
	h.process(t, engine.EventOwlRiddleCorrect, engine.Payload{RiddleID: "riddle_004"})
	h.process(t, engine.EventHotspotTriggered, engine.Payload{HotspotID: "home_moon"})
	h.send(t, engine.EventDiarySaved)

	assert.Equal(t, frozen, first.NewState, "published snapshots are never written again")
	assert.Equal(t, 18, h.store.saveCount())

	latest := h.engine.GetState()
	latest.Inventory[0] = "mutated"
	latest.Discovery.TriggeredDiscoveries = append(latest.Discovery.TriggeredDiscoveries, "fake")
	assert.NotContains(t, h.engine.GetState().Inventory, "mutated", "GetState returns a copy")
	assert.NotContains(t, h.engine.GetState().Discovery.TriggeredDiscoveries, "fake")
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t)

	var order []string
	unsubA := h.engine.Subscribe(func(res engine.Result) {
		order = append(order, "a:"+string(res.EventType))
		// запросы из подписчика не должны приводить к взаимоблокировке
		_ = h.engine.GetState()
	})
	h.engine.Subscribe(func(res engine.Result) {
		order = append(order, "b:"+string(res.EventType))
	})

	h.send(t, engine.EventGamePlayed)
	unsubA()
	h.send(t, engine.EventMediaDone)

	assert.Equal(t, []string{"a:game_played", "b:game_played", "b:media_done"}, order)
}

func TestUnknownEventStillScans(t *testing.T) {
	h := newHarness(t, withState(func(s *models.ProgressionState) {
		s.Totals.LifetimeGoldStars = 10
	}))

	res, err := h.engine.ProcessEvent(engine.Event{Type: "confetti_popped"})
	require.NoError(t, err)
	assert.Equal(t, []string{"item_01"}, res.ItemsUnlocked)
	assert.False(t, engine.EventType("confetti_popped").Known())
	assert.True(t, engine.EventAppOpened.Known())
	assert.False(t, engine.EventType("confetti_popped").ResultOnly())
	assert.True(t, engine.EventDebugReset.ResultOnly())
	assert.Equal(t, 1, h.store.saveCount())
}

func TestInit(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	t.Run("Load failure falls back to the default state", func(t *testing.T) {
		store := &fakeStore{loadErr: errors.New("disk on fire")}
		e := engine.New(cat, store, zap.NewNop())
		e.Init(context.Background())

		s := e.GetState()
		assert.Equal(t, []string{"owl", "dragon_egg"}, s.Inventory)
		assert.Equal(t, models.OwlArmed, s.Owl.State)
		assert.Equal(t, models.DefaultRealmID, s.Discovery.ActiveRealmID)
	})

	t.Run("Reserved items are seeded into loaded state", func(t *testing.T) {
		loaded := models.DefaultState()
		loaded.Inventory = []string{"item_01"}
		loaded.Totals.LifetimeGoldStars = 12
		e := engine.New(cat, &fakeStore{loaded: loaded}, zap.NewNop())
		e.Init(context.Background())

		s := e.GetState()
		assert.Equal(t, []string{"item_01", "owl", "dragon_egg"}, s.Inventory)
		assert.Equal(t, 12, s.Totals.LifetimeGoldStars)
		assert.Equal(t, []string{"item_01"}, loaded.Inventory, "loaded snapshot untouched")
	})

	t.Run("Second Init is ignored", func(t *testing.T) {
		store := &fakeStore{}
		e := engine.New(cat, store, zap.NewNop())
		e.Init(context.Background())
		store.loaded = models.DefaultState()
		store.loaded.Totals.GoldStars = 99
		e.Init(context.Background())
		assert.Zero(t, e.GetState().Totals.GoldStars)
	})

	t.Run("Nil store keeps everything in memory", func(t *testing.T) {
		e := engine.New(cat, nil, zap.NewNop())
		e.Init(context.Background())
		res, err := e.ProcessEvent(engine.Event{Type: engine.EventGamePlayed})
		require.NoError(t, err)
		assert.Equal(t, 1, res.StarsAwarded)
		_, err = e.DebugReset(context.Background())
		require.NoError(t, err)
	})
}

func TestDebugSurface(t *testing.T) {
	t.Run("Unlock item", func(t *testing.T) {
		h := newHarness(t)
		err := h.engine.DebugUnlockItem("not_an_item")
		assert.True(t, errors.Is(err, models.ErrUnknownItem))

		require.NoError(t, h.engine.DebugUnlockItem("item_05"))
		assert.Contains(t, h.engine.GetState().Inventory, "item_05")
		assert.Equal(t, 1, h.store.saveCount())

		require.NoError(t, h.engine.DebugUnlockItem("item_05"))
		assert.Equal(t, 1, h.store.saveCount(), "already owned")
	})

	t.Run("Add stars", func(t *testing.T) {
		h := newHarness(t)
		var got []engine.Result
		h.engine.Subscribe(func(r engine.Result) { got = append(got, r) })

		res, err := h.engine.DebugAddStars(20)
		require.NoError(t, err)
		assert.Equal(t, 20, res.StarsAwarded)
		assert.Equal(t, []string{"item_01", "item_02"}, res.ItemsUnlocked)
		assert.Zero(t, res.NewState.DailyCounts.DailyCappedStars, "debug stars bypass the cap")
		require.Len(t, got, 1)
		assert.Equal(t, engine.EventDebugAddStars, got[0].EventType)

		_, err = h.engine.DebugAddStars(-1)
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
	})

	t.Run("Reset", func(t *testing.T) {
		h := newHarness(t, withState(func(s *models.ProgressionState) {
			s.Totals.GoldStars = 40
			s.Totals.LifetimeGoldStars = 40
			s.Inventory = append(s.Inventory, "item_01", "item_02", "item_06")
		}))
		var got []engine.Result
		h.engine.Subscribe(func(r engine.Result) { got = append(got, r) })

		res, err := h.engine.DebugReset(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, h.store.cleared)
		assert.Equal(t, []string{"owl", "dragon_egg"}, res.NewState.Inventory)
		assert.Zero(t, h.engine.GetState().Totals.GoldStars)
		require.Len(t, got, 1)
		assert.Equal(t, engine.EventDebugReset, got[0].EventType)
	})

	t.Run("Reset fails when the store cannot clear", func(t *testing.T) {
		h := newHarness(t, withState(func(s *models.ProgressionState) {
			s.Totals.GoldStars = 5
		}))
		h.store.clearErr = errors.New("locked")

		_, err := h.engine.DebugReset(context.Background())
		require.Error(t, err)
		assert.Equal(t, 5, h.engine.GetState().Totals.GoldStars)
	})

	t.Run("Event racing a reset saves only post-reset state", func(t *testing.T) {
		h := newHarness(t)
		for i := 0; i < 5; i++ {
			h.send(t, engine.EventGamePlayed)
		}

		raced := make(chan struct{})
		h.store.onClear = func() {
			go func() {
				defer close(raced)
				_, _ = h.engine.ProcessEvent(engine.Event{Type: engine.EventGamePlayed})
			}()
			// даем событию шанс выполниться до завершения очистки
			time.Sleep(50 * time.Millisecond)
		}

		_, err := h.engine.DebugReset(context.Background())
		require.NoError(t, err)
		<-raced

		last := h.store.lastSave()
		require.NotNil(t, last)
		assert.Equal(t, 1, last.Totals.LifetimeGoldStars)
		assert.Equal(t, 1, h.engine.GetState().Totals.GoldStars)
	})
}
