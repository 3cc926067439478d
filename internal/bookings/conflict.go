package bookings

import (
	"context"
	"fmt"
	"time"
)

// Detector answers whether a provider is busy during a candidate interval.
// It only reads.
type Detector struct {
	reader Reader
}

// NewDetector builds a detector over any booking reader, including a Tx.
func NewDetector(reader Reader) *Detector {
	if reader == nil {
		panic("bookings: reader required")
	}
	return &Detector{reader: reader}
}

// Conflicts returns the calendar-blocking bookings of providerID that overlap
// [start, start+durationMinutes), skipping excludeID.
func (d *Detector) Conflicts(ctx context.Context, providerID string, start time.Time, durationMinutes int, excludeID string) ([]Booking, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	candidates, err := d.reader.ListForProvider(ctx, providerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("bookings: list provider bookings: %w", err)
	}
	var out []Booking
	for _, b := range candidates {
		if b.ID == excludeID || !b.Status.BlocksCalendar() {
			continue
		}
		if Overlaps(b.StartTime, b.DurationMinutes, start, durationMinutes) {
			out = append(out, b)
		}
	}
	return out, nil
}

// HasConflict is Conflicts reduced to a boolean.
func (d *Detector) HasConflict(ctx context.Context, providerID string, start time.Time, durationMinutes int, excludeID string) (bool, error) {
	conflicts, err := d.Conflicts(ctx, providerID, start, durationMinutes, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}
