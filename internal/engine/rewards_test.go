package engine_test

import (
	"testing"
	"time"

	"keepsake-server/internal/engine"
	"keepsake-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyCap(t *testing.T) {
	t.Run("Capped sources stop at the daily cap, owl stars do not", func(t *testing.T) {
		h := newHarness(t)

		for i := 0; i < 10; i++ {
			res := h.send(t, engine.EventGamePlayed)
			assert.Equal(t, 1, res.StarsAwarded, "game %d", i+1)
		}

		res := h.send(t, engine.EventGamePlayed)
		assert.Equal(t, 0, res.StarsAwarded)
		assert.NotContains(t, res.SoundCues, engine.CueStarWin)

		res = h.send(t, engine.EventCraftCompleted)
		assert.Equal(t, 0, res.StarsAwarded)

		res = h.process(t, engine.EventOwlRiddleCorrect, engine.Payload{RiddleID: "riddle_001"})
		assert.Equal(t, 8, res.StarsAwarded)
		assert.Equal(t, 10, res.NewState.DailyCounts.DailyCappedStars, "owl stars never count toward the cap")
		assert.Equal(t, 18, res.NewState.Totals.LifetimeGoldStars)
		assert.Equal(t, 18, res.NewState.Totals.GoldStars)
	})

	t.Run("Partial award when the cap is nearly reached", func(t *testing.T) {
		h := newHarness(t)
		for i := 0; i < 8; i++ {
			h.send(t, engine.EventMediaDone)
		}
		res := h.send(t, engine.EventCraftCompleted)
		assert.Equal(t, 2, res.StarsAwarded)
		assert.Equal(t, 10, res.NewState.DailyCounts.DailyCappedStars)
	})

	t.Run("Cap resets at local midnight", func(t *testing.T) {
		h := newHarness(t, at(time.Date(2026, time.March, 10, 23, 0, 0, 0, cet)))
		for i := 0; i < 10; i++ {
			h.send(t, engine.EventGamePlayed)
		}

		h.clock.Set(time.Date(2026, time.March, 10, 23, 59, 59, 0, cet))
		assert.Equal(t, 0, h.send(t, engine.EventGamePlayed).StarsAwarded)

		h.clock.Set(time.Date(2026, time.March, 11, 0, 0, 0, 0, cet))
		res := h.send(t, engine.EventGamePlayed)
		assert.Equal(t, 1, res.StarsAwarded)
		assert.Equal(t, "2026-03-11", res.NewState.DailyCounts.Date)
		assert.Equal(t, 1, res.NewState.DailyCounts.DailyCappedStars)
	})
}

func TestTokenDrops(t *testing.T) {
	t.Run("Blue pity guarantees a token", func(t *testing.T) {
		h := newHarness(t, withState(func(s *models.ProgressionState) {
			s.Totals.GoldStarsSinceLastBlue = 79
			s.Totals.GoldStarsSinceLastRed = 10
		}))

		res := h.send(t, engine.EventGamePlayed)
		assert.True(t, res.BlueTokenAwarded)
		assert.False(t, res.RedTokenAwarded)
		assert.Equal(t, 1, res.NewState.Totals.BlueTokens)
		assert.Equal(t, 0, res.NewState.Totals.GoldStarsSinceLastBlue)
		assert.Equal(t, 11, res.NewState.Totals.GoldStarsSinceLastRed)
		assert.Equal(t, []engine.SoundCue{engine.CueStarWin, engine.CueBlueToken}, res.SoundCues)
	})

	t.Run("Red pity guarantees a token", func(t *testing.T) {
		h := newHarness(t, withState(func(s *models.ProgressionState) {
			s.Totals.GoldStarsSinceLastRed = 179
		}))

		res := h.send(t, engine.EventMediaDone)
		assert.True(t, res.RedTokenAwarded)
		assert.Equal(t, 1, res.NewState.Totals.RedTokens)
		assert.Equal(t, 0, res.NewState.Totals.GoldStarsSinceLastRed)
	})

	t.Run("Below the pity threshold nothing drops on a high roll", func(t *testing.T) {
		h := newHarness(t, withState(func(s *models.ProgressionState) {
			s.Totals.GoldStarsSinceLastBlue = 50
		}))

		res := h.send(t, engine.EventGamePlayed)
		assert.False(t, res.BlueTokenAwarded)
		assert.Equal(t, 51, res.NewState.Totals.GoldStarsSinceLastBlue)
	})

	t.Run("Each star rolls both colors, cues once per batch", func(t *testing.T) {
		h := newHarness(t, withRoller(&scriptedRoller{fallback: 0}))

		res, err := h.engine.DebugAddStars(5)
		require.NoError(t, err)
		assert.Equal(t, 5, res.NewState.Totals.BlueTokens)
		assert.Equal(t, 5, res.NewState.Totals.RedTokens)

		counts := map[engine.SoundCue]int{}
		for _, c := range res.SoundCues {
			counts[c]++
		}
		assert.Equal(t, 1, counts[engine.CueStarWin])
		assert.Equal(t, 1, counts[engine.CueBlueToken])
		assert.Equal(t, 1, counts[engine.CueRedToken])
	})

	t.Run("Rolls are independent per color", func(t *testing.T) {
		// шанс синего 0.04, красного 0.015: 0.02 дает только синий, 0.01 - красный
		h := newHarness(t, withRoller(&scriptedRoller{values: []float64{0.02, 0.5, 0.5, 0.01}, fallback: 0.99}))

		res := h.send(t, engine.EventCraftCompleted)
		assert.Equal(t, 3, res.StarsAwarded)
		assert.Equal(t, 1, res.NewState.Totals.BlueTokens)
		assert.Equal(t, 1, res.NewState.Totals.RedTokens)
		assert.Equal(t, 2, res.NewState.Totals.GoldStarsSinceLastBlue)
		assert.Equal(t, 1, res.NewState.Totals.GoldStarsSinceLastRed)
	})
}

func TestDiaryStreak(t *testing.T) {
	h := newHarness(t)

	for day := 1; day <= 6; day++ {
		res := h.send(t, engine.EventDiarySaved)
		assert.Equal(t, 1, res.StarsAwarded, "day %d", day)
		assert.Equal(t, day, res.NewState.DiaryStreak.CurrentStreak)
		h.clock.Advance(24 * time.Hour)
	}

	res := h.send(t, engine.EventDiarySaved)
	assert.Equal(t, 9, res.StarsAwarded, "entry star plus streak bonus")
	assert.Equal(t, 7, res.NewState.DiaryStreak.CurrentStreak)

	res = h.send(t, engine.EventDiarySaved)
	assert.Equal(t, 1, res.StarsAwarded, "second entry the same day pays no bonus")
	assert.Equal(t, 7, res.NewState.DiaryStreak.CurrentStreak)

	h.clock.Advance(24 * time.Hour)
	res = h.send(t, engine.EventDiarySaved)
	assert.Equal(t, 1, res.StarsAwarded)
	assert.Equal(t, 8, res.NewState.DiaryStreak.CurrentStreak)

	h.clock.Advance(48 * time.Hour)
	res = h.send(t, engine.EventDiarySaved)
	assert.Equal(t, 1, res.NewState.DiaryStreak.CurrentStreak, "a skipped day restarts the streak")
	assert.Equal(t, 8, res.NewState.DiaryStreak.LongestStreak)
	assert.Equal(t, "2026-03-19", res.NewState.DiaryStreak.LastEntryDate)
}

func TestOwlRiddles(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.engine.IsOwlArmed())

	next, ok := h.engine.NextRiddle()
	require.True(t, ok)
	assert.Equal(t, "riddle_001", next.ID)

	res := h.process(t, engine.EventOwlRiddleCorrect, engine.Payload{RiddleID: "riddle_001"})
	assert.Equal(t, []engine.SoundCue{engine.CueOwlCorrect, engine.CueStarWin}, res.SoundCues)
	assert.Equal(t, 8, res.StarsAwarded)
	assert.Equal(t, []string{"riddle_001"}, res.NewState.Riddles.AskedIDs)
	assert.Equal(t, 1, res.NewState.Riddles.SolvedCount)
	assert.Equal(t, start.UnixMilli(), res.NewState.Riddles.Timestamps["riddle_001"])
	assert.Equal(t, models.OwlSleeping, res.NewState.Owl.State)
	assert.Equal(t, start.UnixMilli(), res.NewState.Owl.LastAttemptTimestamp)
	assert.False(t, h.engine.IsOwlArmed())

	next, ok = h.engine.NextRiddle()
	require.True(t, ok)
	assert.Equal(t, "riddle_002", next.ID)

	res = h.process(t, engine.EventOwlRiddleWrong, engine.Payload{RiddleID: "riddle_002"})
	assert.Equal(t, []engine.SoundCue{engine.CueOwlWrong}, res.SoundCues)
	assert.Equal(t, 0, res.StarsAwarded)
	assert.Equal(t, 1, res.NewState.Riddles.SolvedCount)
	assert.Len(t, res.NewState.Riddles.AskedIDs, 2)

	res = h.process(t, engine.EventOwlRiddleTimeout, engine.Payload{RiddleID: "riddle_003"})
	assert.Equal(t, []engine.SoundCue{engine.CueOwlTimeout}, res.SoundCues)

	t.Run("Solved count never exceeds asked count", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			h.process(t, engine.EventOwlRiddleCorrect, engine.Payload{RiddleID: "riddle_001"})
		}
		s := h.engine.GetState()
		assert.Equal(t, 3, s.Riddles.SolvedCount)
		assert.Len(t, s.Riddles.AskedIDs, 3)
	})

	t.Run("Opening the owl only cues", func(t *testing.T) {
		before := h.engine.GetState()
		res := h.send(t, engine.EventOwlRiddleOpened)
		assert.Equal(t, []engine.SoundCue{engine.CueOwlOpen}, res.SoundCues)
		assert.Equal(t, before, res.NewState)
	})

	t.Run("Cadence re-arms the owl", func(t *testing.T) {
		h.clock.Advance(23 * time.Hour)
		assert.False(t, h.engine.IsOwlArmed())

		h.clock.Advance(time.Hour)
		assert.True(t, h.engine.IsOwlArmed())
		assert.Equal(t, models.OwlSleeping, h.engine.GetState().Owl.State)

		res := h.send(t, engine.EventAppOpened)
		assert.Equal(t, models.OwlArmed, res.NewState.Owl.State)
	})
}
