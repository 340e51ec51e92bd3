// Package timewindow отвечает, можно ли проходить подсказку в данное местное
// время и когда начатая попытка перестает быть действительной. Проверки
// используют часовой пояс переданного момента.
package timewindow

import (
	"math"
	"time"

	"keepsake-server/internal/catalog"
)

const minutesPerDay = 24 * 60

// Границы окон в минутах от местной полуночи, оба конца включительно.
var windows = map[catalog.WindowKind]struct{ start, end int }{
	catalog.WindowNoon:    {start: 11*60 + 30, end: 12*60 + 30},
	catalog.WindowEvening: {start: 18 * 60, end: 21 * 60},
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func fallbackMinutes(w *catalog.TimeWindow) int {
	return int(math.Round(w.FallbackHours * 60))
}

// IsWithinWindow сообщает, попадает ли now в основное окно.
// nil-окно ничего не ограничивает.
func IsWithinWindow(w *catalog.TimeWindow, now time.Time) bool {
	if w == nil {
		return true
	}
	b, ok := windows[w.Kind]
	if !ok {
		return true
	}
	m := minuteOfDay(now)
	return m >= b.start && m <= b.end
}

// IsWithinFallback сообщает, попадает ли now в запасной период после конца
// окна. Период, уходящий за полночь, переносится на следующее утро.
func IsWithinFallback(w *catalog.TimeWindow, now time.Time) bool {
	if w == nil {
		return true
	}
	b, ok := windows[w.Kind]
	if !ok {
		return true
	}
	m := minuteOfDay(now)
	fallbackEnd := b.end + fallbackMinutes(w)
	if fallbackEnd > minutesPerDay {
		wrappedEnd := fallbackEnd - minutesPerDay
		return m >= b.end || m <= wrappedEnd
	}
	return m > b.end && m <= fallbackEnd
}

// CanAttempt = IsWithinWindow или IsWithinFallback.
func CanAttempt(w *catalog.TimeWindow, now time.Time) bool {
	return IsWithinWindow(w, now) || IsWithinFallback(w, now)
}

// ComputeExpiration возвращает конец окна в календарный день start плюс
// запасной период, сдвинутый на сутки, если он уже раньше start. Для
// nil-окна ok равен false: такое окно не истекает.
func ComputeExpiration(w *catalog.TimeWindow, start time.Time) (expiresAt time.Time, ok bool) {
	if w == nil {
		return time.Time{}, false
	}
	b, known := windows[w.Kind]
	if !known {
		return time.Time{}, false
	}
	y, mo, d := start.Date()
	end := time.Date(y, mo, d, b.end/60, b.end%60, 0, 0, start.Location())
	expiresAt = end.Add(time.Duration(w.FallbackHours * float64(time.Hour)))
	if expiresAt.Before(start) {
		expiresAt = expiresAt.AddDate(0, 0, 1)
	}
	return expiresAt, true
}
