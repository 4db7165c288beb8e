package delivery

import (
	"fmt"
	"time"

	"github.com/phrazzld/futureself-api/internal/domain"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Next returns the instant one unit after previous.
//
// Days and weeks are fixed durations. Months and years move the calendar
// fields and clamp to the last day of the target month, so January 31 plus
// one month is the last day of February. The wall-clock time and location
// of previous are preserved.
func Next(previous time.Time, unit domain.Unit) (time.Time, error) {
	return Occurrence(previous, unit, 1)
}

// Occurrence returns the k-th occurrence after anchor (k = 0 is the anchor
// itself). Monthly and yearly occurrences are always measured from the
// anchor, so a month-end anchor returns to the month end once a shorter
// month has passed instead of drifting to an earlier day.
func Occurrence(anchor time.Time, unit domain.Unit, k int) (time.Time, error) {
	if k < 0 {
		return time.Time{}, fmt.Errorf("occurrence index must not be negative, got %d", k)
	}

	switch unit {
	case domain.UnitDays:
		return anchor.Add(time.Duration(k) * day), nil
	case domain.UnitWeeks:
		return anchor.Add(time.Duration(k) * week), nil
	case domain.UnitMonths:
		return addMonthsClamped(anchor, k), nil
	case domain.UnitYears:
		return addMonthsClamped(anchor, 12*k), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidUnit, unit)
	}
}

// OccurrencesRemaining returns how many occurrences of spec are still owed
// after delivered have gone out. Zero means the schedule is exhausted.
// One-shot specs have a single occurrence.
func OccurrencesRemaining(spec domain.DeliverySpec, delivered int) int {
	total := 1
	if spec.IsRecurring() {
		total = spec.Count
	}
	remaining := total - delivered
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Occurrences lists every due instant of spec in order.
func Occurrences(spec domain.DeliverySpec) ([]time.Time, error) {
	if !spec.IsRecurring() {
		return []time.Time{spec.DueAt}, nil
	}
	if spec.Count < 1 || spec.Count > MaxOccurrences {
		return nil, fmt.Errorf("recurring count must be between 1 and %d, got %d", MaxOccurrences, spec.Count)
	}

	out := make([]time.Time, 0, spec.Count)
	for k := 0; k < spec.Count; k++ {
		t, err := Occurrence(spec.Anchor, spec.Unit, k)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func addMonthsClamped(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}

	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int(m) - 1 + months
	year := y + floorDiv(total, 12)
	month := time.Month(total-floorDiv(total, 12)*12 + 1)

	if last := daysIn(year, month); d > last {
		d = last
	}
	return time.Date(year, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
