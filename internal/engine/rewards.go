package engine

import (
	"time"

	"keepsake-server/internal/models"
)

func (e *Engine) handleOwlCorrect(m *mutation, p Payload, now time.Time, res *Result) {
	res.cue(CueOwlCorrect)
	e.awardStars(m, e.cfg.Rewards.OwlRiddleCorrect, res)
	if p.RiddleID != "" {
		m.recordRiddle(p.RiddleID, now.UnixMilli(), true)
	}
	m.s.Owl = models.OwlData{LastAttemptTimestamp: now.UnixMilli(), State: models.OwlSleeping}
}

func (e *Engine) handleOwlFailed(m *mutation, ev Event, now time.Time, res *Result) {
	if ev.Payload.RiddleID != "" {
		m.recordRiddle(ev.Payload.RiddleID, now.UnixMilli(), false)
	}
	m.s.Owl = models.OwlData{LastAttemptTimestamp: now.UnixMilli(), State: models.OwlSleeping}
	if ev.Type == EventOwlRiddleTimeout {
		res.cue(CueOwlTimeout)
	} else {
		res.cue(CueOwlWrong)
	}
}

// awardCapped пропускает amount через общий дневной лимит звезд за игры,
// поделки, медиа и дневник.
func (e *Engine) awardCapped(m *mutation, amount int, now time.Time, res *Result) {
	dc := &m.s.DailyCounts
	today := now.Format(dateLayout)
	if dc.Date != today {
		dc.Date = today
		dc.DailyCappedStars = 0
	}
	remaining := max(0, e.cfg.DailyCaps.DailyGoldCap-dc.DailyCappedStars)
	award := min(amount, remaining)
	if award <= 0 {
		return
	}
	dc.DailyCappedStars += award
	e.awardStars(m, award, res)
}

func (e *Engine) handleDiarySaved(m *mutation, now time.Time, res *Result) {
	e.awardCapped(m, e.cfg.Rewards.DiaryEntry, now, res)

	streak := &m.s.DiaryStreak
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)
	prev := streak.CurrentStreak
	switch streak.LastEntryDate {
	case today:
	case yesterday:
		streak.CurrentStreak++
	default:
		streak.CurrentStreak = 1
	}
	streak.LastEntryDate = today
	if streak.CurrentStreak > streak.LongestStreak {
		streak.LongestStreak = streak.CurrentStreak
	}

	if streak.CurrentStreak != prev && streak.CurrentStreak == e.cfg.Rewards.DiaryStreakLength {
		e.awardStars(m, e.cfg.Rewards.DiaryStreakBonus, res)
	}
}

// awardStars добавляет amount звезд и на каждую звезду бросает синий и красный
// жетоны. Гарантия (pity) делает бросок успешным после долгой серии без выпадения.
func (e *Engine) awardStars(m *mutation, amount int, res *Result) {
	if amount <= 0 {
		return
	}
	t := &m.s.Totals
	t.GoldStars += amount
	t.LifetimeGoldStars += amount
	res.StarsAwarded += amount
	res.cue(CueStarWin)

	drops := e.cfg.TokenDrops
	for range amount {
		t.GoldStarsSinceLastBlue++
		t.GoldStarsSinceLastRed++

		if e.rollToken(drops.BlueChancePerStar, t.GoldStarsSinceLastBlue, drops.Pity.BlueGuaranteeAfter) {
			t.BlueTokens++
			t.GoldStarsSinceLastBlue = 0
			res.BlueTokenAwarded = true
			res.cue(CueBlueToken)
		}
		if e.rollToken(drops.RedChancePerStar, t.GoldStarsSinceLastRed, drops.Pity.RedGuaranteeAfter) {
			t.RedTokens++
			t.GoldStarsSinceLastRed = 0
			res.RedTokenAwarded = true
			res.cue(CueRedToken)
		}
	}
}

func (e *Engine) rollToken(chance float64, sinceLast, guaranteeAfter int) bool {
	if e.cfg.TokenDrops.Pity.Enabled && guaranteeAfter > 0 && sinceLast >= guaranteeAfter {
		chance = 1
	}
	return e.roller.Float64() < chance
}
