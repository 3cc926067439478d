package bookings

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict is returned when no eligible provider is free for the requested interval.
	ErrConflict = errors.New("bookings: slot no longer available")

	// ErrInvalidTransition is returned when the state machine forbids the requested change.
	ErrInvalidTransition = errors.New("bookings: invalid status transition")

	// ErrNotFound is returned when a booking does not exist.
	ErrNotFound = errors.New("bookings: booking not found")

	// ErrInvalidRequest is returned for structurally invalid create/reschedule input.
	ErrInvalidRequest = errors.New("bookings: invalid request")

	// ErrOutsideHours is returned when the interval does not fit the day's operating window.
	ErrOutsideHours = errors.New("bookings: outside business hours")
)

// ConflictError carries the bookings that blocked a create or reschedule.
type ConflictError struct {
	ProviderID string
	Start      time.Time
	Conflicts  []Booking
}

func (e *ConflictError) Error() string {
	if e.ProviderID == AnyProvider || e.ProviderID == "" {
		return fmt.Sprintf("bookings: no provider free at %s", e.Start.Format("2006-01-02 15:04"))
	}
	return fmt.Sprintf("bookings: provider %s busy at %s (%d conflicting)", e.ProviderID, e.Start.Format("2006-01-02 15:04"), len(e.Conflicts))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidTransitionError names the refused transition. Op is set instead of
// To when the refused operation keeps the status, such as a reschedule.
type InvalidTransitionError struct {
	BookingID string
	From      Status
	To        Status
	Op        string
}

func (e *InvalidTransitionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("bookings: cannot %s booking %s while %s", e.Op, e.BookingID, e.From)
	}
	return fmt.Sprintf("bookings: booking %s cannot move from %s to %s", e.BookingID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
