package engine

import (
	"slices"
	"time"

	"keepsake-server/internal/catalog"
	"keepsake-server/internal/models"
	"keepsake-server/internal/timewindow"

	"go.uber.org/zap"
)

// currentStep находит шаг, которого ждет последовательность. ok == false,
// если подсказки нет в каталоге или индекс вышел за последний шаг.
func (e *Engine) currentStep(seq *models.ActiveDiscoverySequence) (catalog.Clue, catalog.Step, bool) {
	clue, ok := e.cat.Clue(seq.ClueID)
	if !ok || seq.StepIndex < 0 || seq.StepIndex >= len(clue.Steps) {
		return catalog.Clue{}, nil, false
	}
	return clue, clue.Steps[seq.StepIndex], true
}

// dropDanglingSequence сбрасывает последовательность, не совпадающую с каталогом.
func (e *Engine) dropDanglingSequence(m *mutation, seq *models.ActiveDiscoverySequence) {
	e.logger.Warn("Clearing dangling discovery sequence",
		zap.String("clueId", seq.ClueID), zap.Int("stepIndex", seq.StepIndex))
	m.setSequence(nil)
}

func (e *Engine) handleHotspotTriggered(m *mutation, p Payload, res *Result) {
	if p.HotspotID == "" {
		return
	}
	if e.advanceBySequence(m, p, res) {
		return
	}
	e.triggerByRule(m, p.HotspotID, res)
}

// advanceBySequence - стратегия последовательности. Пока активна разрешимая
// последовательность, она поглощает событие хотспота, даже несовпадающее.
func (e *Engine) advanceBySequence(m *mutation, p Payload, res *Result) bool {
	seq := m.s.Discovery.ActiveSequence
	if seq == nil {
		return false
	}
	clue, step, ok := e.currentStep(seq)
	if !ok {
		e.dropDanglingSequence(m, seq)
		return false
	}
	hs, isHotspot := step.(catalog.HotspotStep)
	if !isHotspot || hs.HotspotID != p.HotspotID || hs.Realm != m.s.Discovery.ActiveRealmID {
		return true
	}
	if p.InteractionValid != nil && !*p.InteractionValid {
		return true
	}
	e.advanceStep(m, clue, res)
	return true
}

// triggerByRule - стратегия одного хотспота: взведенный хотспот завершает
// свое правило открытия.
func (e *Engine) triggerByRule(m *mutation, hotspotID string, res *Result) {
	d := &m.s.Discovery
	if !slices.Contains(d.ArmedHotspots, hotspotID) {
		return
	}
	rule, ok := e.cat.RuleForHotspot(hotspotID)
	if !ok || slices.Contains(d.TriggeredDiscoveries, rule.DiscoveryID) {
		return
	}
	m.markTriggered(rule.DiscoveryID)
	m.unarmHotspot(hotspotID)
	res.DiscoveryTriggered = rule.DiscoveryID
	if rule.UnlocksItemID != "" && m.addItem(rule.UnlocksItemID) {
		res.ItemsUnlocked = append(res.ItemsUnlocked, rule.UnlocksItemID)
	}
	e.logger.Info("Discovery rule triggered",
		zap.String("discoveryId", rule.DiscoveryID), zap.String("hotspotId", hotspotID))
}

func (e *Engine) handleRealmChanged(m *mutation, p Payload, res *Result) {
	if p.RealmID == "" {
		return
	}
	m.s.Discovery.ActiveRealmID = p.RealmID
	res.cue(CueUITap)

	seq := m.s.Discovery.ActiveSequence
	if seq == nil {
		return
	}
	clue, step, ok := e.currentStep(seq)
	if !ok {
		e.dropDanglingSequence(m, seq)
		return
	}
	if ro, isRealm := step.(catalog.RealmOpenedStep); isRealm && ro.Realm == p.RealmID {
		e.advanceStep(m, clue, res)
	}
}

func (e *Engine) advanceStep(m *mutation, clue catalog.Clue, res *Result) {
	seq := m.sequence()
	if seq == nil {
		return
	}
	res.DiscoveryStepAdvanced = true
	res.cue(CueUITap)
	seq.StepIndex++
	seq.InteractionScratch = models.InteractionScratch{}

	if seq.StepIndex >= len(clue.Steps) {
		e.completeDiscovery(m, clue, res)
		return
	}
	if hs, ok := clue.Steps[seq.StepIndex].(catalog.HotspotStep); ok {
		m.armHotspot(hs.HotspotID)
	}
	e.logger.Debug("Discovery step advanced",
		zap.String("clueId", clue.ID), zap.Int("stepIndex", seq.StepIndex))
}

func (e *Engine) completeDiscovery(m *mutation, clue catalog.Clue, res *Result) {
	m.markTriggered(clue.ID)
	e.unarmClue(m, clue)
	m.setSequence(nil)
	res.DiscoveryCompleted = clue.ID
	res.DiscoveryTriggered = clue.ID

	if rule, ok := e.cat.Rule(clue.ID); ok && rule.UnlocksItemID != "" && m.addItem(rule.UnlocksItemID) {
		res.ItemsUnlocked = append(res.ItemsUnlocked, rule.UnlocksItemID)
	}
	e.logger.Info("Discovery completed", zap.String("clueId", clue.ID))
}

// unarmClue снимает взвод со всех хотспотов подсказки.
func (e *Engine) unarmClue(m *mutation, clue catalog.Clue) {
	for _, step := range clue.Steps {
		if hs, ok := step.(catalog.HotspotStep); ok {
			m.unarmHotspot(hs.HotspotID)
		}
	}
}

// handleClueAcknowledged запускает последовательность подсказки или взводит
// хотспот правила для открытий из одного хотспота. Пошаговая подсказка вне
// своего окна времени отмечается использованной, но ничего не запускает.
func (e *Engine) handleClueAcknowledged(m *mutation, p Payload, now time.Time) {
	id := p.ClueID
	if id == "" {
		return
	}
	clue, isClue := e.cat.Clue(id)
	rule, isRule := e.cat.Rule(id)
	if !isClue && !isRule {
		e.logger.Debug("Ignoring acknowledgement of unknown clue", zap.String("clueId", id))
		return
	}

	m.markClueUsed(id, now.UnixMilli())
	d := &m.s.Discovery
	d.PendingClueID = ""

	if isClue && len(clue.Steps) > 0 {
		if !timewindow.CanAttempt(clue.TimeWindow, now) {
			e.logger.Debug("Clue acknowledged outside its time window", zap.String("clueId", id))
			return
		}
		seq := &models.ActiveDiscoverySequence{ClueID: clue.ID, StartedAtMs: now.UnixMilli()}
		if exp, ok := timewindow.ComputeExpiration(clue.TimeWindow, now); ok {
			ms := exp.UnixMilli()
			seq.ExpiresAtMs = &ms
		}
		if hs, ok := clue.Steps[0].(catalog.HotspotStep); ok {
			m.armHotspot(hs.HotspotID)
		}
		m.setSequence(seq)
	} else if isRule && rule.ArmsHotspot != "" {
		m.armHotspot(rule.ArmsHotspot)
	}

	if d.ProphecyState == models.ProphecyShowing && d.ProphecyClueID == id {
		d.ProphecyState = models.ProphecyActive
		d.ProphecyStartTime = now.UnixMilli()
	}
}

func (e *Engine) handleAppOpened(m *mutation, now time.Time, res *Result) {
	d := &m.s.Discovery
	nowMs := now.UnixMilli()

	if today := now.Format(dateLayout); d.LastOpenDate != today {
		d.AppOpenCount++
		d.LastOpenDate = today
	}

	if m.s.Owl.State == models.OwlSleeping && e.owlReady(m.s, now) {
		m.s.Owl.State = models.OwlArmed
	}

	justExpired := false
	if d.ProphecyState == models.ProphecyActive || d.ProphecyState == models.ProphecyShowing {
		if nowMs-d.ProphecyStartTime > e.cfg.ProphecyDuration().Milliseconds() {
			e.expireProphecy(m)
			justExpired = true
		}
	}

	relic := e.cfg.Prophecy.ClueRelicItem
	if !justExpired && d.ProphecyState == models.ProphecyHidden && relic != "" && m.s.HasItem(relic) {
		if clue, ok := e.nextProphecy(m.s); ok {
			d.ProphecyClueID = clue.ID
			d.ProphecyState = models.ProphecyAvailable
			e.logger.Debug("Prophecy scheduled", zap.String("clueId", clue.ID))
		}
	}

	if seq := d.ActiveSequence; seq != nil && seq.ExpiresAtMs != nil && nowMs > *seq.ExpiresAtMs {
		m.setSequence(nil)
		if clue, ok := e.cat.Clue(seq.ClueID); ok {
			e.unarmClue(m, clue)
		}
		e.logger.Debug("Discovery sequence expired", zap.String("clueId", seq.ClueID))
	}

	if d.PendingClueID == "" && d.ActiveSequence == nil {
		e.offerClue(m, res)
	}
}

// offerClue делает ожидающей подсказкой первое подходящее правило app-open.
func (e *Engine) offerClue(m *mutation, res *Result) {
	d := &m.s.Discovery
	for _, rule := range e.cat.Rules() {
		if slices.Contains(d.TriggeredDiscoveries, rule.DiscoveryID) ||
			slices.Contains(m.s.Clues.UsedIDs, rule.DiscoveryID) {
			continue
		}
		trig, ok := rule.Trigger.(catalog.AppOpenAfterItemsOwned)
		if !ok {
			continue
		}
		ownsAll := true
		for _, id := range trig.ItemsOwned {
			if !m.s.HasItem(id) {
				ownsAll = false
				break
			}
		}
		if ownsAll && d.AppOpenCount >= trig.OpensAfter {
			d.PendingClueID = rule.DiscoveryID
			res.DiscoveryTriggered = rule.DiscoveryID
			return
		}
	}
}

// nextProphecy выбирает первую подсказку, не подтвержденную и не пройденную.
func (e *Engine) nextProphecy(s *models.ProgressionState) (catalog.Clue, bool) {
	for _, c := range e.cat.Clues() {
		if slices.Contains(s.Clues.UsedIDs, c.ID) || slices.Contains(s.Discovery.TriggeredDiscoveries, c.ID) {
			continue
		}
		return c, true
	}
	return catalog.Clue{}, false
}

func (e *Engine) handleProphecyTapped(m *mutation) {
	d := &m.s.Discovery
	if d.ProphecyState == models.ProphecyAvailable && d.ProphecyClueID != "" {
		d.ProphecyState = models.ProphecyShowing
		d.PendingClueID = d.ProphecyClueID
	}
}

// expireProphecy возвращает пророчество в hidden. Показанное или активное
// пророчество уносит с собой свои хотспоты и активную последовательность.
func (e *Engine) expireProphecy(m *mutation) {
	d := &m.s.Discovery
	if d.ProphecyState == models.ProphecyActive || d.ProphecyState == models.ProphecyShowing {
		if clue, ok := e.cat.Clue(d.ProphecyClueID); ok {
			e.unarmClue(m, clue)
		}
		m.setSequence(nil)
	}
	if d.ProphecyClueID != "" {
		if d.PendingClueID == d.ProphecyClueID {
			d.PendingClueID = ""
		}
		e.logger.Debug("Prophecy expired", zap.String("clueId", d.ProphecyClueID))
	}
	d.ProphecyState = models.ProphecyHidden
	d.ProphecyClueID = ""
	d.ProphecyStartTime = 0
}
