package catalog

import (
	"errors"
	"fmt"
)

// Validate проверяет ссылочную целостность и диапазоны значений. Все
// проблемы возвращаются одной объединенной ошибкой.
func (c *Catalog) Validate() error {
	var errs []error
	addf := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.items) == 0 {
		addf("catalog has no items")
	}

	seen := map[string]bool{}
	for _, it := range c.items {
		if it.ID == "" {
			addf("item with empty id")
			continue
		}
		if seen[it.ID] {
			addf("duplicate item %s", it.ID)
		}
		seen[it.ID] = true
		if it.Reserved && it.Unlock != nil {
			addf("reserved item %s must not have an unlock rule", it.ID)
		}
		if it.Unlock != nil {
			if err := c.validateRule(it.Unlock); err != nil {
				addf("item %s: %w", it.ID, err)
			}
		}
	}

	seenHotspots := map[string]bool{}
	for _, h := range c.hotspots {
		if seenHotspots[h.ID] {
			addf("duplicate hotspot %s", h.ID)
		}
		seenHotspots[h.ID] = true
		if h.Realm == "" {
			addf("hotspot %s has no realm", h.ID)
		}
		if err := validateInteraction(h.Interaction); err != nil {
			addf("hotspot %s: %w", h.ID, err)
		}
	}

	seenRules := map[string]bool{}
	for _, r := range c.rules {
		if seenRules[r.DiscoveryID] {
			addf("duplicate discovery rule %s", r.DiscoveryID)
		}
		seenRules[r.DiscoveryID] = true
		if _, ok := c.Hotspot(r.ArmsHotspot); !ok {
			addf("rule %s arms unknown hotspot %s", r.DiscoveryID, r.ArmsHotspot)
		}
		if r.UnlocksItemID != "" {
			if _, ok := c.Item(r.UnlocksItemID); !ok {
				addf("rule %s unlocks unknown item %s", r.DiscoveryID, r.UnlocksItemID)
			}
		}
		switch t := r.Trigger.(type) {
		case AppOpenAfterItemsOwned:
			for _, id := range t.ItemsOwned {
				if _, ok := c.Item(id); !ok {
					addf("rule %s waits for unknown item %s", r.DiscoveryID, id)
				}
			}
		case TimeWindowTrigger:
		case nil:
			addf("rule %s has no trigger", r.DiscoveryID)
		}
	}

	seenClues := map[string]bool{}
	for _, clue := range c.clues {
		if seenClues[clue.ID] {
			addf("duplicate clue %s", clue.ID)
		}
		seenClues[clue.ID] = true
		if clue.TimeWindow != nil && clue.TimeWindow.FallbackHours < 0 {
			addf("clue %s has negative fallback", clue.ID)
		}
		for i, step := range clue.Steps {
			hs, ok := step.(HotspotStep)
			if !ok {
				continue
			}
			h, found := c.Hotspot(hs.HotspotID)
			if !found {
				addf("clue %s step %d references unknown hotspot %s", clue.ID, i, hs.HotspotID)
				continue
			}
			if h.Realm != hs.Realm {
				addf("clue %s step %d: hotspot %s lives in %s, not %s", clue.ID, i, h.ID, h.Realm, hs.Realm)
			}
			if err := validateInteraction(hs.Interaction); err != nil {
				addf("clue %s step %d: %w", clue.ID, i, err)
			}
		}
	}

	seenRiddles := map[string]bool{}
	for _, r := range c.riddles {
		if seenRiddles[r.ID] {
			addf("duplicate riddle %s", r.ID)
		}
		seenRiddles[r.ID] = true
		if r.CorrectIndex < 0 || r.CorrectIndex >= len(r.Answers) {
			addf("riddle %s correct index out of range", r.ID)
		}
	}

	cfg := c.config
	if cfg.DailyCaps.DailyGoldCap < 0 {
		addf("daily gold cap must not be negative")
	}
	if p := cfg.TokenDrops.BlueChancePerStar; p < 0 || p > 1 {
		addf("blue token chance %v out of [0,1]", p)
	}
	if p := cfg.TokenDrops.RedChancePerStar; p < 0 || p > 1 {
		addf("red token chance %v out of [0,1]", p)
	}
	if cfg.TokenDrops.Pity.Enabled && (cfg.TokenDrops.Pity.BlueGuaranteeAfter <= 0 || cfg.TokenDrops.Pity.RedGuaranteeAfter <= 0) {
		addf("pity thresholds must be positive")
	}
	if cfg.Hatch.WhenCollectedCountAtLeast <= 0 {
		addf("hatch threshold must be positive")
	}
	if cfg.Rewards.DiaryStreakLength <= 0 {
		addf("diary streak length must be positive")
	}
	if cfg.Prophecy.ClueRelicItem != "" {
		if _, ok := c.Item(cfg.Prophecy.ClueRelicItem); !ok {
			addf("clue relic %s is not an item", cfg.Prophecy.ClueRelicItem)
		}
	}

	return errors.Join(errs...)
}

func (c *Catalog) validateRule(rule UnlockRule) error {
	switch r := rule.(type) {
	case StarsTotalAtLeast:
		return positive(r.Total)
	case TokensAtLeast:
		if r.Token != TokenBlue && r.Token != TokenRed {
			return fmt.Errorf("unknown token %q", r.Token)
		}
		return positive(r.Total)
	case RiddlesSolvedAtLeast:
		return positive(r.Total)
	case CraftsCompletedAtLeast:
		return positive(r.Total)
	case DaysOpenedAtLeast:
		return positive(r.Total)
	case DiscoveryUnlock:
		_, isRule := c.Rule(r.DiscoveryID)
		_, isClue := c.Clue(r.DiscoveryID)
		if !isRule && !isClue {
			return fmt.Errorf("unknown discovery %s", r.DiscoveryID)
		}
		return nil
	default:
		return fmt.Errorf("unsupported unlock rule %T", rule)
	}
}

func validateInteraction(in Interaction) error {
	switch i := in.(type) {
	case Tap:
		return nil
	case MultiTap:
		if i.Taps < 1 || i.MaxInterval <= 0 {
			return fmt.Errorf("multiTap needs taps >= 1 and a positive interval")
		}
	case LongPress:
		if i.Hold <= 0 {
			return fmt.Errorf("longPress needs a positive hold")
		}
	case HoldThenStir:
		if i.Hold <= 0 || i.StirTurns <= 0 || i.StirRadiusPx <= 0 {
			return fmt.Errorf("holdThenStir needs positive hold, turns and radius")
		}
	default:
		return fmt.Errorf("unsupported interaction %T", in)
	}
	return nil
}

func positive(v int) error {
	if v <= 0 {
		return fmt.Errorf("threshold must be positive, got %d", v)
	}
	return nil
}
