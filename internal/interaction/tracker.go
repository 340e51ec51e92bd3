// Package interaction превращает сырой ввод указателя в единый вердикт
// "жест выполнен" для нажатия, серии нажатий, долгого нажатия и
// удержания с помешиванием.
package interaction

import (
	"math"
	"sync"
	"time"

	"keepsake-server/internal/catalog"
	"keepsake-server/internal/models"
)

// minStirStepPx - наименьшее смещение, которое считается помешиванием.
const minStirStepPx = 20

// Tracker следит за одной попыткой жеста. Безопасен для конкурентного
// использования, таймеры удержания срабатывают в горутине планировщика.
type Tracker struct {
	mu          sync.Mutex
	interaction catalog.Interaction
	bounds      *catalog.Rect
	sched       Scheduler
	onComplete  func()

	scratch   models.InteractionScratch
	pressed   bool
	holdTimer Timer
	holdGen   uint64
	satisfied bool
}

type TrackerOption func(*Tracker)

// WithBounds игнорирует нажатия, начатые вне r.
func WithBounds(r catalog.Rect) TrackerOption {
	return func(t *Tracker) { t.bounds = &r }
}

func WithScheduler(s Scheduler) TrackerOption {
	return func(t *Tracker) { t.sched = s }
}

// OnComplete регистрирует колбэк, вызываемый один раз при выполнении жеста.
func OnComplete(f func()) TrackerOption {
	return func(t *Tracker) { t.onComplete = f }
}

func NewTracker(in catalog.Interaction, opts ...TrackerOption) *Tracker {
	t := &Tracker{interaction: in, sched: RealScheduler{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Satisfied сообщает, выполнен ли жест.
func (t *Tracker) Satisfied() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.satisfied
}

// Scratch возвращает промежуточное состояние жеста.
func (t *Tracker) Scratch() models.InteractionScratch {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.scratch
	if s.StirLastPoint != nil {
		p := *s.StirLastPoint
		s.StirLastPoint = &p
	}
	return s
}

// Reset отменяет ожидающий таймер и начинает заново.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopHoldTimer()
	t.scratch = models.InteractionScratch{}
	t.pressed = false
	t.satisfied = false
}

func (t *Tracker) PointerDown(x, y float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.satisfied || t.interaction == nil {
		return
	}
	if t.bounds != nil && !t.bounds.Contains(x, y) {
		return
	}
	t.pressed = true
	ms := at.UnixMilli()

	switch in := t.interaction.(type) {
	case catalog.MultiTap:
		if ms-t.scratch.LastTapMs > in.MaxInterval.Milliseconds() {
			t.scratch.TapCount = 0
		}
	case catalog.LongPress:
		t.scratch.HoldStartMs = ms
		t.scratch.Holding = true
		t.armHoldTimer(in.Hold, func() bool {
			if !t.scratch.Holding {
				return false
			}
			return t.complete()
		})
	case catalog.HoldThenStir:
		t.scratch.HoldStartMs = ms
		t.scratch.Holding = true
		t.scratch.StirStarted = false
		t.scratch.StirAngleAccumulated = 0
		t.scratch.StirLastPoint = &models.Point{X: x, Y: y}
		startedMs := ms + in.Hold.Milliseconds()
		t.armHoldTimer(in.Hold, func() bool {
			if t.scratch.Holding {
				t.scratch.StirStarted = true
				t.scratch.StirStartedMs = startedMs
			}
			return false
		})
	}
}

func (t *Tracker) PointerMove(x, y float64, at time.Time) {
	t.mu.Lock()
	done := t.pointerMove(x, y, at)
	t.mu.Unlock()
	if done {
		t.notify()
	}
}

func (t *Tracker) pointerMove(x, y float64, at time.Time) bool {
	in, ok := t.interaction.(catalog.HoldThenStir)
	if !ok || t.satisfied || !t.scratch.Holding || !t.scratch.StirStarted {
		return false
	}
	if in.StirMaxDuration > 0 && at.UnixMilli()-t.scratch.StirStartedMs > in.StirMaxDuration.Milliseconds() {
		// Слишком медленно: попытка окончена до следующего нажатия.
		t.scratch = models.InteractionScratch{}
		t.pressed = false
		return false
	}
	last := t.scratch.StirLastPoint
	if last == nil {
		t.scratch.StirLastPoint = &models.Point{X: x, Y: y}
		return false
	}
	distance := math.Hypot(x-last.X, y-last.Y)
	if distance < minStirStepPx {
		return false
	}
	t.scratch.StirAngleAccumulated += distance / (2 * math.Pi * in.StirRadiusPx)
	t.scratch.StirLastPoint = &models.Point{X: x, Y: y}
	if t.scratch.StirAngleAccumulated >= in.StirTurns {
		return t.complete()
	}
	return false
}

func (t *Tracker) PointerUp(at time.Time) {
	t.mu.Lock()
	done := t.pointerUp(at)
	t.mu.Unlock()
	if done {
		t.notify()
	}
}

func (t *Tracker) pointerUp(at time.Time) bool {
	if t.satisfied || !t.pressed {
		return false
	}
	t.pressed = false

	switch in := t.interaction.(type) {
	case catalog.Tap:
		return t.complete()
	case catalog.MultiTap:
		t.scratch.TapCount++
		t.scratch.LastTapMs = at.UnixMilli()
		if t.scratch.TapCount >= in.Taps {
			return t.complete()
		}
	case catalog.LongPress:
		t.stopHoldTimer()
		t.scratch.Holding = false
	case catalog.HoldThenStir:
		t.stopHoldTimer()
		t.scratch.Holding = false
		t.scratch.StirStarted = false
		t.scratch.StirAngleAccumulated = 0
	}
	return false
}

// PointerCancel отменяет текущее нажатие.
func (t *Tracker) PointerCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopHoldTimer()
	t.pressed = false
	t.scratch.Holding = false
	t.scratch.StirStarted = false
	t.scratch.StirAngleAccumulated = 0
}

// armHoldTimer вызывается под mu. fire выполняется под mu и возвращает
// true, если завершил жест.
func (t *Tracker) armHoldTimer(d time.Duration, fire func() bool) {
	t.stopHoldTimer()
	t.holdGen++
	gen := t.holdGen
	t.holdTimer = t.sched.AfterFunc(d, func() {
		t.mu.Lock()
		done := false
		if gen == t.holdGen && !t.satisfied {
			done = fire()
		}
		t.mu.Unlock()
		if done {
			t.notify()
		}
	})
}

func (t *Tracker) stopHoldTimer() {
	if t.holdTimer != nil {
		t.holdTimer.Stop()
		t.holdTimer = nil
	}
	t.holdGen++
}

func (t *Tracker) complete() bool {
	t.stopHoldTimer()
	t.satisfied = true
	t.pressed = false
	t.scratch = models.InteractionScratch{}
	return true
}

func (t *Tracker) notify() {
	if t.onComplete != nil {
		t.onComplete()
	}
}
