// Package bookings owns the appointment model, its state machine and the
// provider-scoped conflict check that guards every write.
package bookings

import "time"

// Status is the appointment lifecycle state.
type Status string

const (
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusConfirmed       Status = "confirmed"
	StatusCancelled       Status = "cancelled"
	StatusNoShow          Status = "no_show"
	StatusCompleted       Status = "completed"
)

// AnyProvider asks the coordinator or slot generator to consider every active provider.
const AnyProvider = "*"

var transitions = map[Status][]Status{
	StatusAwaitingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:       {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BlocksCalendar reports whether a booking in this status occupies its interval.
func (s Status) BlocksCalendar() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAwaitingPayment, StatusConfirmed, StatusCancelled, StatusNoShow, StatusCompleted:
		return true
	}
	return false
}

// Booking is a single appointment. StartTime is wall time in the business location.
type Booking struct {
	ID              string    `json:"id"`
	ProviderID      string    `json:"provider_id"`
	ServiceID       string    `json:"service_id"`
	ClientID        string    `json:"client_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// End returns the exclusive end of the booking interval.
func (b Booking) End() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Overlaps reports whether the half-open intervals [aStart, aStart+aMinutes)
// and [bStart, bStart+bMinutes) intersect.
func Overlaps(aStart time.Time, aMinutes int, bStart time.Time, bMinutes int) bool {
	aEnd := aStart.Add(time.Duration(aMinutes) * time.Minute)
	bEnd := bStart.Add(time.Duration(bMinutes) * time.Minute)
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
