// Package calendar derives the month and day keys the booking ledger is
// partitioned by, and the date range each weekly slot covers.
package calendar

import (
	"fmt"
	"time"
)

const (
	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"
	daysPerSlot = 7
)

// MonthKey returns the ledger key ("2024-07") for t in its own location.
func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}

// DayKey returns the calendar day string used for daily visit counts.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// ParseMonth parses a month key in the given location.
func ParseMonth(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(monthLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	return t, nil
}

// Range is an inclusive span of calendar days.
type Range struct {
	From time.Time
	To   time.Time
}

// String renders the range as "2024-07-01 ~ 2024-07-07".
func (r Range) String() string {
	return DayKey(r.From) + " ~ " + DayKey(r.To)
}

// WeekRange returns the days covered by the slot at position index (0-based)
// out of total slots in the given month. Each slot spans seven days starting
// on the 1st; the last slot absorbs the remaining days of the month.
func WeekRange(month string, index, total int, loc *time.Location) (Range, error) {
	if total <= 0 || index < 0 || index >= total {
		return Range{}, fmt.Errorf("slot index %d out of range [0,%d)", index, total)
	}
	first, err := ParseMonth(month, loc)
	if err != nil {
		return Range{}, err
	}
	last := first.AddDate(0, 1, -1)

	from := first.AddDate(0, 0, index*daysPerSlot)
	if from.After(last) {
		from = last
	}
	to := from.AddDate(0, 0, daysPerSlot-1)
	if index == total-1 || to.After(last) {
		to = last
	}
	return Range{From: from, To: to}, nil
}
