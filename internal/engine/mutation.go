package engine

import (
	"maps"
	"slices"

	"keepsake-server/internal/models"
)

// Биты владения: какие части снимка мутация уже скопировала.
const (
	ownInventory uint16 = 1 << iota
	ownAskedRiddles
	ownRiddleTimes
	ownUsedClues
	ownClueTimes
	ownArmedHotspots
	ownTriggered
	ownSequence
)

// mutation - copy-on-write представление снимка. Начинается с поверхностной
// копии; срез, карта или активная последовательность копируются при первой
// записи, поэтому исходный снимок никогда не меняется.
type mutation struct {
	s     *models.ProgressionState
	owned uint16
}

func begin(cur *models.ProgressionState) *mutation {
	c := *cur
	return &mutation{s: &c}
}

func (m *mutation) own(bit uint16) bool {
	if m.owned&bit != 0 {
		return false
	}
	m.owned |= bit
	return true
}

// addItem добавляет id в инвентарь и сообщает, был ли он новым.
func (m *mutation) addItem(id string) bool {
	if slices.Contains(m.s.Inventory, id) {
		return false
	}
	if m.own(ownInventory) {
		m.s.Inventory = slices.Clone(m.s.Inventory)
	}
	m.s.Inventory = append(m.s.Inventory, id)
	return true
}

// recordRiddle отмечает загадку заданной, ставит время и считает решенные.
func (m *mutation) recordRiddle(id string, atMs int64, solved bool) {
	r := &m.s.Riddles
	if !slices.Contains(r.AskedIDs, id) {
		if m.own(ownAskedRiddles) {
			r.AskedIDs = slices.Clone(r.AskedIDs)
		}
		r.AskedIDs = append(r.AskedIDs, id)
	}
	if m.own(ownRiddleTimes) {
		r.Timestamps = maps.Clone(r.Timestamps)
		if r.Timestamps == nil {
			r.Timestamps = map[string]int64{}
		}
	}
	r.Timestamps[id] = atMs
	if solved && r.SolvedCount < len(r.AskedIDs) {
		r.SolvedCount++
	}
}

// markClueUsed запоминает первое подтверждение подсказки.
func (m *mutation) markClueUsed(id string, atMs int64) {
	c := &m.s.Clues
	if slices.Contains(c.UsedIDs, id) {
		return
	}
	if m.own(ownUsedClues) {
		c.UsedIDs = slices.Clone(c.UsedIDs)
	}
	c.UsedIDs = append(c.UsedIDs, id)
	if m.own(ownClueTimes) {
		c.Timestamps = maps.Clone(c.Timestamps)
		if c.Timestamps == nil {
			c.Timestamps = map[string]int64{}
		}
	}
	c.Timestamps[id] = atMs
}

func (m *mutation) armHotspot(id string) {
	d := &m.s.Discovery
	if slices.Contains(d.ArmedHotspots, id) {
		return
	}
	if m.own(ownArmedHotspots) {
		d.ArmedHotspots = slices.Clone(d.ArmedHotspots)
	}
	d.ArmedHotspots = append(d.ArmedHotspots, id)
}

func (m *mutation) unarmHotspot(id string) {
	d := &m.s.Discovery
	if !slices.Contains(d.ArmedHotspots, id) {
		return
	}
	// DeleteFunc меняет срез на месте, общий срез сначала копируем.
	if m.own(ownArmedHotspots) {
		d.ArmedHotspots = slices.Clone(d.ArmedHotspots)
	}
	d.ArmedHotspots = slices.DeleteFunc(d.ArmedHotspots, func(h string) bool { return h == id })
}

func (m *mutation) markTriggered(id string) {
	d := &m.s.Discovery
	if slices.Contains(d.TriggeredDiscoveries, id) {
		return
	}
	if m.own(ownTriggered) {
		d.TriggeredDiscoveries = slices.Clone(d.TriggeredDiscoveries)
	}
	d.TriggeredDiscoveries = append(d.TriggeredDiscoveries, id)
}

// sequence возвращает изменяемую активную последовательность или nil.
func (m *mutation) sequence() *models.ActiveDiscoverySequence {
	d := &m.s.Discovery
	if d.ActiveSequence == nil {
		return nil
	}
	if m.own(ownSequence) {
		d.ActiveSequence = d.ActiveSequence.Clone()
	}
	return d.ActiveSequence
}

// setSequence заменяет активную последовательность собственной копией мутации.
func (m *mutation) setSequence(seq *models.ActiveDiscoverySequence) {
	m.owned |= ownSequence
	m.s.Discovery.ActiveSequence = seq
}
