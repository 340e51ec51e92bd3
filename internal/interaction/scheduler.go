package interaction

import (
	"sync"
	"time"
)

// Timer - отложенная задача, которую можно отменить.
type Timer interface {
	Stop() bool
}

// Scheduler запускает f один раз через d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler использует time.AfterFunc, колбэки идут в своей горутине.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualScheduler запускает таймеры, только когда AdvanceTo двигает часы за
// их срок. Используется для проигрывания записанных жестов.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	mu      *sync.Mutex
	due     time.Time
	f       func()
	stopped bool
	fired   bool
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{mu: &m.mu, due: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Now возвращает часы планировщика.
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AdvanceTo запускает все таймеры со сроком не позже at, от ранних к поздним,
// затем ставит часы на at. Колбэки могут планировать новые таймеры.
func (m *ManualScheduler) AdvanceTo(at time.Time) {
	for {
		m.mu.Lock()
		var next *manualTimer
		for _, t := range m.timers {
			if t.stopped || t.fired || t.due.After(at) {
				continue
			}
			if next == nil || t.due.Before(next.due) {
				next = t
			}
		}
		if next == nil {
			if at.After(m.now) {
				m.now = at
			}
			m.mu.Unlock()
			return
		}
		next.fired = true
		if next.due.After(m.now) {
			m.now = next.due
		}
		m.mu.Unlock()
		next.f()
	}
}
