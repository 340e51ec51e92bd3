package interaction

import (
	"fmt"
	"time"

	"keepsake-server/internal/catalog"
	"keepsake-server/internal/models"
)

// PointerKind - тип записанного события указателя.
type PointerKind string

const (
	PointerDown   PointerKind = "down"
	PointerMove   PointerKind = "move"
	PointerUp     PointerKind = "up"
	PointerCancel PointerKind = "cancel"
)

// Sample - одно записанное событие указателя. AtMs - время клиента в
// миллисекундах, значение имеет только разница между событиями.
type Sample struct {
	Kind PointerKind
	X    float64
	Y    float64
	AtMs int64
}

// Validate проигрывает события на виртуальных часах и сообщает, выполнен ли
// жест. bounds может быть nil. События должны идти по порядку времени.
func Validate(in catalog.Interaction, bounds *catalog.Rect, samples []Sample) (bool, error) {
	if in == nil {
		return false, fmt.Errorf("%w: no interaction to validate", models.ErrInvalidInput)
	}
	if len(samples) == 0 {
		return false, nil
	}

	start := time.UnixMilli(samples[0].AtMs)
	sched := NewManualScheduler(start)
	opts := []TrackerOption{WithScheduler(sched)}
	if bounds != nil {
		opts = append(opts, WithBounds(*bounds))
	}
	tracker := NewTracker(in, opts...)

	prev := samples[0].AtMs
	for i, s := range samples {
		if s.AtMs < prev {
			return false, fmt.Errorf("%w: sample %d goes back in time", models.ErrInvalidInput, i)
		}
		prev = s.AtMs
		at := time.UnixMilli(s.AtMs)
		sched.AdvanceTo(at)

		switch s.Kind {
		case PointerDown:
			tracker.PointerDown(s.X, s.Y, at)
		case PointerMove:
			tracker.PointerMove(s.X, s.Y, at)
		case PointerUp:
			tracker.PointerUp(at)
		case PointerCancel:
			tracker.PointerCancel()
		default:
			return false, fmt.Errorf("%w: unknown pointer sample %q", models.ErrInvalidInput, s.Kind)
		}
		if tracker.Satisfied() {
			return true, nil
		}
	}
	return tracker.Satisfied(), nil
}
