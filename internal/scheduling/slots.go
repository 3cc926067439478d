// Package scheduling generates bookable slots and assigns providers to them.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/barbershop-booking/internal/bookings"
	"github.com/wolfman30/barbershop-booking/internal/calendar"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

// DefaultGranularity is the slot grid step.
const DefaultGranularity = 30 * time.Minute

// ConflictChecker is satisfied by *bookings.Detector.
type ConflictChecker interface {
	HasConflict(ctx context.Context, providerID string, start time.Time, durationMinutes int, excludeID string) (bool, error)
}

// Query selects the slots to generate. Date is interpreted in its own location.
type Query struct {
	Date            time.Time
	ProviderID      string // bookings.AnyProvider considers Providers
	DurationMinutes int
	Providers       []string
}

// Slot is one candidate start time with its provider assignment.
type Slot struct {
	Start        time.Time
	End          time.Time
	Availability Availability
}

// IsAvailable reports whether some provider is free for the slot.
func (s Slot) IsAvailable() bool {
	_, ok := s.Availability.(Available)
	return ok
}

// Generator produces the slot grid for a day.
type Generator struct {
	calendar    calendar.Source
	conflicts   ConflictChecker
	granularity time.Duration
	now         func() time.Time
	logger      *logging.Logger
}

// NewGenerator builds a slot generator. A non-positive granularity falls back to DefaultGranularity.
func NewGenerator(src calendar.Source, conflicts ConflictChecker, granularity time.Duration, logger *logging.Logger) *Generator {
	if src == nil || conflicts == nil {
		panic("scheduling: calendar and conflict checker required")
	}
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{calendar: src, conflicts: conflicts, granularity: granularity, now: time.Now, logger: logger}
}

// WithClock returns a copy of g reading the current instant from now.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	clone := *g
	clone.now = now
	return &clone
}

// Generate returns the ordered slots of q.Date. Slots are anchored at opening,
// must end by closing, and those starting at or before now are left out.
// A closed or unknown weekday yields no slots.
func (g *Generator) Generate(ctx context.Context, q Query) ([]Slot, error) {
	if q.DurationMinutes <= 0 {
		return nil, fmt.Errorf("scheduling: duration must be positive")
	}
	providers := eligibleProviders(q)
	if len(providers) == 0 {
		return nil, nil
	}

	hours, err := g.calendar.Hours(ctx, q.Date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("scheduling: load hours: %w", err)
	}
	open, closeAt, ok := hours.Window(q.Date)
	if !ok {
		return nil, nil
	}

	now := g.now()
	duration := time.Duration(q.DurationMinutes) * time.Minute
	var slots []Slot
	for cur := open; !cur.Add(duration).After(closeAt); cur = cur.Add(g.granularity) {
		if !cur.After(now) {
			continue
		}
		busy := make(map[string]bool, len(providers))
		for _, providerID := range providers {
			conflict, err := g.conflicts.HasConflict(ctx, providerID, cur, q.DurationMinutes, "")
			if err != nil {
				return nil, fmt.Errorf("scheduling: check %s at %s: %w", providerID, cur.Format("15:04"), err)
			}
			busy[providerID] = conflict
			if !conflict {
				// Later providers cannot change the outcome.
				break
			}
		}
		slots = append(slots, Slot{Start: cur, End: cur.Add(duration), Availability: Assign(providers, busy)})
	}
	g.logger.Debug("slots generated", "date", q.Date.Format("2006-01-02"), "provider_id", q.ProviderID, "count", len(slots))
	return slots, nil
}

func eligibleProviders(q Query) []string {
	if q.ProviderID == bookings.AnyProvider {
		return q.Providers
	}
	if q.ProviderID == "" {
		return nil
	}
	return []string{q.ProviderID}
}
