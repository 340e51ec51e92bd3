package models

import (
	"encoding/json"
	"fmt"
)

// DecodeState разбирает сохраненный blob поверх DefaultState: отсутствующие
// ключи сохраняют значения по умолчанию. Результат нормализуется.
func DecodeState(data []byte) (*ProgressionState, error) {
	state := DefaultState()
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	state.Normalize()
	return state, nil
}

// UnmarshalJSON дописывает в получателя и учитывает старый ключ
// oneStarSourceCount, если dailyCappedStars нет.
func (d *DailyCountsData) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date               *string `json:"date"`
		DailyCappedStars   *int    `json:"dailyCappedStars"`
		OneStarSourceCount *int    `json:"oneStarSourceCount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Date != nil && *raw.Date != "" {
		d.Date = *raw.Date
	}
	switch {
	case raw.DailyCappedStars != nil:
		d.DailyCappedStars = *raw.DailyCappedStars
	case raw.OneStarSourceCount != nil:
		d.DailyCappedStars = *raw.OneStarSourceCount
	}
	return nil
}

// Normalize чинит состояние на месте: nil-коллекции становятся пустыми,
// дубликаты удаляются, счетчики ограничиваются, связи между полями
// восстанавливаются.
func (s *ProgressionState) Normalize() {
	t := &s.Totals
	t.GoldStars = nonNegative(t.GoldStars)
	t.BlueTokens = nonNegative(t.BlueTokens)
	t.RedTokens = nonNegative(t.RedTokens)
	t.LifetimeGoldStars = nonNegative(t.LifetimeGoldStars)
	t.GoldStarsSinceLastBlue = nonNegative(t.GoldStarsSinceLastBlue)
	t.GoldStarsSinceLastRed = nonNegative(t.GoldStarsSinceLastRed)
	if t.LifetimeGoldStars < t.GoldStars {
		t.LifetimeGoldStars = t.GoldStars
	}

	s.Inventory = dedupe(s.Inventory)

	s.Riddles.AskedIDs = dedupe(s.Riddles.AskedIDs)
	if s.Riddles.Timestamps == nil {
		s.Riddles.Timestamps = map[string]int64{}
	}
	s.Riddles.SolvedCount = nonNegative(s.Riddles.SolvedCount)
	if s.Riddles.SolvedCount > len(s.Riddles.AskedIDs) {
		s.Riddles.SolvedCount = len(s.Riddles.AskedIDs)
	}

	s.Clues.UsedIDs = dedupe(s.Clues.UsedIDs)
	if s.Clues.Timestamps == nil {
		s.Clues.Timestamps = map[string]int64{}
	}

	switch s.Owl.State {
	case OwlArmed, OwlSleeping:
	default:
		s.Owl.State = OwlArmed
	}

	d := &s.Discovery
	d.ArmedHotspots = dedupe(d.ArmedHotspots)
	d.TriggeredDiscoveries = dedupe(d.TriggeredDiscoveries)
	d.AppOpenCount = nonNegative(d.AppOpenCount)
	if d.ActiveRealmID == "" {
		d.ActiveRealmID = DefaultRealmID
	}
	switch d.ProphecyState {
	case ProphecyHidden, ProphecyAvailable, ProphecyShowing, ProphecyActive:
	default:
		d.ProphecyState = ProphecyHidden
	}
	if d.ProphecyState == ProphecyHidden {
		d.ProphecyClueID = ""
		d.ProphecyStartTime = 0
	}
	if seq := d.ActiveSequence; seq != nil {
		if seq.ClueID == "" {
			d.ActiveSequence = nil
		} else {
			seq.StepIndex = nonNegative(seq.StepIndex)
		}
	}

	st := &s.DiaryStreak
	st.CurrentStreak = nonNegative(st.CurrentStreak)
	st.LongestStreak = nonNegative(st.LongestStreak)
	if st.LongestStreak < st.CurrentStreak {
		st.LongestStreak = st.CurrentStreak
	}

	s.DailyCounts.DailyCappedStars = nonNegative(s.DailyCounts.DailyCappedStars)
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// dedupe оставляет первое вхождение каждого id и никогда не возвращает nil.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, id := range in {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
