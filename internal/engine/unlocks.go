package engine

import (
	"fmt"
	"slices"

	"keepsake-server/internal/catalog"
	"keepsake-server/internal/models"

	"go.uber.org/zap"
)

// checkUnlocks выдает в порядке каталога каждый предмет, чье правило теперь
// выполнено. Зарезервированные, имеющиеся и предметы без правила пропускаются.
func (e *Engine) checkUnlocks(m *mutation, res *Result) error {
	for _, it := range e.cat.Items() {
		if it.Reserved || it.Unlock == nil || m.s.HasItem(it.ID) {
			continue
		}
		ok, err := ruleSatisfied(m.s, it.Unlock)
		if err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		if !ok {
			continue
		}
		m.addItem(it.ID)
		res.ItemsUnlocked = append(res.ItemsUnlocked, it.ID)
		res.cue(CueItemReveal)
		e.logger.Info("Item unlocked", zap.String("itemId", it.ID))
	}
	return nil
}

func ruleSatisfied(s *models.ProgressionState, rule catalog.UnlockRule) (bool, error) {
	switch r := rule.(type) {
	case catalog.StarsTotalAtLeast:
		return s.Totals.LifetimeGoldStars >= r.Total, nil
	case catalog.TokensAtLeast:
		switch r.Token {
		case catalog.TokenBlue:
			return s.Totals.BlueTokens >= r.Total, nil
		case catalog.TokenRed:
			return s.Totals.RedTokens >= r.Total, nil
		default:
			return false, fmt.Errorf("%w: unknown token %q", models.ErrInvalidRule, r.Token)
		}
	case catalog.RiddlesSolvedAtLeast:
		return s.Riddles.SolvedCount >= r.Total, nil
	case catalog.CraftsCompletedAtLeast:
		// Поделки пока нигде не считаются.
		return false, nil
	case catalog.DaysOpenedAtLeast:
		return s.Discovery.AppOpenCount >= r.Total, nil
	case catalog.DiscoveryUnlock:
		return slices.Contains(s.Discovery.TriggeredDiscoveries, r.DiscoveryID), nil
	default:
		return false, fmt.Errorf("%w: %T", models.ErrInvalidRule, rule)
	}
}

// checkEggHatch ставит флаг вылупления, когда собрано достаточно предметов.
// Флаг повторяется на каждом событии, пока ролик не подтвержден.
func (e *Engine) checkEggHatch(m *mutation, res *Result) {
	if m.s.Discovery.HatchSeen {
		return
	}
	collected := 0
	for _, id := range m.s.Inventory {
		if !e.cat.IsReserved(id) {
			collected++
		}
	}
	if collected >= e.cfg.Hatch.WhenCollectedCountAtLeast {
		res.EggHatchTriggered = true
	}
}
