// Package calendar provides the weekly operating windows the shop books against.
package calendar

import (
	"context"
	"fmt"
	"time"
)

// DayHours is the operating window of a single weekday.
type DayHours struct {
	Weekday time.Weekday `json:"weekday"`
	Open    string       `json:"open"`  // "09:00" in 24-hour format
	Close   string       `json:"close"` // "19:00" in 24-hour format
	IsOpen  bool         `json:"is_open"`
}

// Week holds one row per weekday, indexed by time.Weekday (0=Sunday).
type Week [7]DayHours

// Source is a read-only provider of weekly operating windows.
type Source interface {
	Hours(ctx context.Context, weekday time.Weekday) (DayHours, error)
}

// DefaultWeek opens Monday through Saturday 09:00-19:00 and closes Sunday.
func DefaultWeek() Week {
	var w Week
	for d := time.Sunday; d <= time.Saturday; d++ {
		w[d] = DayHours{Weekday: d, Open: "09:00", Close: "19:00", IsOpen: d != time.Sunday}
	}
	return w
}

// ForDay returns the row for weekday. Out-of-range weekdays are reported closed.
func (w Week) ForDay(weekday time.Weekday) DayHours {
	if weekday < time.Sunday || weekday > time.Saturday {
		return DayHours{Weekday: weekday}
	}
	row := w[weekday]
	row.Weekday = weekday
	return row
}

// Hours lets a fixed Week act as a Source.
func (w Week) Hours(_ context.Context, weekday time.Weekday) (DayHours, error) {
	return w.ForDay(weekday), nil
}

// Window returns the open and close instants of the row on the given date, in
// the date's location. ok is false when the day is closed or the row is
// malformed, including a close that is not after the open.
func (h DayHours) Window(date time.Time) (open, close time.Time, ok bool) {
	if !h.IsOpen {
		return time.Time{}, time.Time{}, false
	}
	openMin, err := parseClock(h.Open)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	closeMin, err := parseClock(h.Close)
	if err != nil || closeMin <= openMin {
		return time.Time{}, time.Time{}, false
	}
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return day.Add(time.Duration(openMin) * time.Minute), day.Add(time.Duration(closeMin) * time.Minute), true
}

// Validate reports malformed rows so administrative writers can reject them.
func (w Week) Validate() error {
	for d := time.Sunday; d <= time.Saturday; d++ {
		row := w[d]
		if !row.IsOpen {
			continue
		}
		openMin, err := parseClock(row.Open)
		if err != nil {
			return fmt.Errorf("calendar: %s open: %w", d, err)
		}
		closeMin, err := parseClock(row.Close)
		if err != nil {
			return fmt.Errorf("calendar: %s close: %w", d, err)
		}
		if closeMin <= openMin {
			return fmt.Errorf("calendar: %s closes at %s before opening at %s", d, row.Close, row.Open)
		}
	}
	return nil
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
