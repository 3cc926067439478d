package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-booking/internal/calendar"
	"github.com/wolfman30/barbershop-booking/internal/observability/metrics"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

var bookingsTracer = otel.Tracer("barbershop.internal.bookings")

// Lifecycle event names published after successful transitions.
const (
	EventCreated     = "booking.created"
	EventConfirmed   = "booking.confirmed"
	EventRescheduled = "booking.rescheduled"
	EventCancelled   = "booking.cancelled"
	EventNoShow      = "booking.no_show"
	EventCompleted   = "booking.completed"
)

// EventPublisher receives lifecycle events. Failures are logged, never returned.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, eventType string, b Booking) error
}

// ProviderDirectory lists the providers eligible for "any provider" requests, in preference order.
type ProviderDirectory interface {
	ActiveProviderIDs(ctx context.Context) ([]string, error)
}

// CreateRequest describes a new booking. ProviderID may be AnyProvider.
type CreateRequest struct {
	ProviderID      string
	ServiceID       string
	ClientID        string
	Start           time.Time
	DurationMinutes int
	Notes           string
	// Candidates overrides the provider directory for AnyProvider requests.
	Candidates []string
	// PayInPerson creates the booking Confirmed since no online payment step follows.
	PayInPerson bool
}

// RescheduleResult reports the outcome of a reschedule.
type RescheduleResult struct {
	Booking       *Booking
	PreviousStart time.Time
	Changed       bool
}

// Coordinator owns booking creation and every status transition.
type Coordinator struct {
	store     Store
	calendar  calendar.Source
	providers ProviderDirectory
	publisher EventPublisher
	metrics   *metrics.BookingMetrics
	now       func() time.Time
	logger    *logging.Logger
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCalendar rejects intervals that fall outside the day's operating window.
func WithCalendar(src calendar.Source) CoordinatorOption {
	return func(c *Coordinator) { c.calendar = src }
}

// WithProviderDirectory sets the provider list used for AnyProvider requests.
func WithProviderDirectory(dir ProviderDirectory) CoordinatorOption {
	return func(c *Coordinator) { c.providers = dir }
}

// WithEventPublisher publishes lifecycle events after each transition.
func WithEventPublisher(p EventPublisher) CoordinatorOption {
	return func(c *Coordinator) { c.publisher = p }
}

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.BookingMetrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator constructs a booking coordinator.
func NewCoordinator(store Store, logger *logging.Logger, opts ...CoordinatorOption) *Coordinator {
	if store == nil {
		panic("bookings: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Coordinator{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Detector returns a conflict detector over the coordinator's store.
func (c *Coordinator) Detector() *Detector {
	return NewDetector(c.store)
}

// Get loads a booking.
func (c *Coordinator) Get(ctx context.Context, id string) (*Booking, error) {
	return c.store.Get(ctx, id)
}

// ListAwaitingPaymentBefore returns unpaid bookings created before cutoff.
func (c *Coordinator) ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time) ([]Booking, error) {
	return c.store.ListByStatusBefore(ctx, StatusAwaitingPayment, cutoff)
}

// Create validates the request and inserts the booking with its conflict check
// inside one provider scope. AnyProvider tries candidates in order.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (booking *Booking, err error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.provider_id", req.ProviderID),
		attribute.String("barbershop.service_id", req.ServiceID),
	)
	defer func() {
		c.metrics.ObserveBooking("create", err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := c.validateInterval(ctx, req.Start, req.DurationMinutes); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ServiceID) == "" || strings.TrimSpace(req.ClientID) == "" {
		return nil, fmt.Errorf("%w: service and client are required", ErrInvalidRequest)
	}

	candidates, err := c.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	now := c.now()
	status := StatusAwaitingPayment
	if req.PayInPerson {
		status = StatusConfirmed
	}
	var lastConflict *ConflictError
	for _, providerID := range candidates {
		b := &Booking{
			ID:              uuid.New().String(),
			ProviderID:      providerID,
			ServiceID:       req.ServiceID,
			ClientID:        req.ClientID,
			StartTime:       req.Start,
			DurationMinutes: req.DurationMinutes,
			Status:          status,
			Notes:           req.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err := c.store.InProviderScope(ctx, providerID, func(tx Tx) error {
			conflicts, err := NewDetector(tx).Conflicts(ctx, providerID, b.StartTime, b.DurationMinutes, "")
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return &ConflictError{ProviderID: providerID, Start: b.StartTime, Conflicts: conflicts}
			}
			return tx.Insert(ctx, b)
		})
		if errors.As(err, &lastConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.logger.Info("booking created", "booking_id", b.ID, "provider_id", b.ProviderID, "start", b.StartTime, "status", b.Status)
		c.publish(ctx, EventCreated, *b)
		if b.Status == StatusConfirmed {
			c.publish(ctx, EventConfirmed, *b)
		}
		return b, nil
	}
	if len(candidates) == 1 && lastConflict != nil {
		return nil, lastConflict
	}
	return nil, &ConflictError{ProviderID: req.ProviderID, Start: req.Start}
}

// Reschedule moves a booking to newStart after re-checking conflicts, excluding itself.
func (c *Coordinator) Reschedule(ctx context.Context, id string, newStart time.Time) (result *RescheduleResult, err error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.booking_id", id))
	defer func() {
		c.metrics.ObserveBooking("reschedule", err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	result = &RescheduleResult{}
	booking, changed, err := c.mutate(ctx, id, func(tx Tx, b *Booking) (bool, error) {
		result.PreviousStart = b.StartTime
		if b.StartTime.Equal(newStart) {
			return false, nil
		}
		if b.Status != StatusAwaitingPayment && b.Status != StatusConfirmed {
			return false, &InvalidTransitionError{BookingID: b.ID, From: b.Status, Op: "reschedule"}
		}
		if err := c.validateInterval(ctx, newStart, b.DurationMinutes); err != nil {
			return false, err
		}
		conflicts, err := NewDetector(tx).Conflicts(ctx, b.ProviderID, newStart, b.DurationMinutes, b.ID)
		if err != nil {
			return false, err
		}
		if len(conflicts) > 0 {
			return false, &ConflictError{ProviderID: b.ProviderID, Start: newStart, Conflicts: conflicts}
		}
		b.StartTime = newStart
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	result.Booking = booking
	result.Changed = changed
	if changed {
		c.logger.Info("booking rescheduled", "booking_id", id, "previous_start", result.PreviousStart, "start", booking.StartTime)
		c.publish(ctx, EventRescheduled, *booking)
	}
	return result, nil
}

// Cancel moves a booking to Cancelled. Cancelling a cancelled booking succeeds
// and reports wasAlreadyCancelled. A confirmed payment is left untouched.
func (c *Coordinator) Cancel(ctx context.Context, id string) (booking *Booking, wasAlreadyCancelled bool, err error) {
	defer func() { c.metrics.ObserveBooking("cancel", err) }()
	booking, changed, err := c.transition(ctx, id, StatusCancelled, true)
	if err != nil {
		return nil, false, err
	}
	if changed {
		c.publish(ctx, EventCancelled, *booking)
	}
	return booking, !changed, nil
}

// Confirm moves an AwaitingPayment booking to Confirmed. Confirming a confirmed
// booking succeeds and reports wasAlreadyConfirmed.
func (c *Coordinator) Confirm(ctx context.Context, id string) (booking *Booking, wasAlreadyConfirmed bool, err error) {
	defer func() { c.metrics.ObserveBooking("confirm", err) }()
	booking, changed, err := c.transition(ctx, id, StatusConfirmed, true)
	if err != nil {
		return nil, false, err
	}
	if changed {
		c.publish(ctx, EventConfirmed, *booking)
	}
	return booking, !changed, nil
}

// MarkNoShow is only legal from Confirmed.
func (c *Coordinator) MarkNoShow(ctx context.Context, id string) (booking *Booking, err error) {
	defer func() { c.metrics.ObserveBooking("no_show", err) }()
	booking, _, err = c.transition(ctx, id, StatusNoShow, false)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, EventNoShow, *booking)
	return booking, nil
}

// Complete is only legal from Confirmed.
func (c *Coordinator) Complete(ctx context.Context, id string) (booking *Booking, err error) {
	defer func() { c.metrics.ObserveBooking("complete", err) }()
	booking, _, err = c.transition(ctx, id, StatusCompleted, false)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, EventCompleted, *booking)
	return booking, nil
}

// transition applies a state machine edge. With idempotent set, a booking
// already in the target state is returned unchanged.
func (c *Coordinator) transition(ctx context.Context, id string, to Status, idempotent bool) (*Booking, bool, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.booking_id", id),
		attribute.String("barbershop.status", string(to)),
	)

	booking, changed, err := c.mutate(ctx, id, func(_ Tx, b *Booking) (bool, error) {
		if b.Status == to && idempotent {
			return false, nil
		}
		if !CanTransition(b.Status, to) {
			return false, &InvalidTransitionError{BookingID: b.ID, From: b.Status, To: to}
		}
		b.Status = to
		return true, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	if changed {
		c.logger.Info("booking status changed", "booking_id", id, "status", to)
	}
	return booking, changed, nil
}

// mutate re-reads the booking inside its provider scope, applies fn and
// persists the result when fn reports a change.
func (c *Coordinator) mutate(ctx context.Context, id string, fn func(tx Tx, b *Booking) (bool, error)) (*Booking, bool, error) {
	current, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	var (
		result  *Booking
		changed bool
	)
	err = c.store.InProviderScope(ctx, current.ProviderID, func(tx Tx) error {
		b, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		changed, err = fn(tx, b)
		if err != nil {
			return err
		}
		if changed {
			b.UpdatedAt = c.now()
			if err := tx.Update(ctx, b); err != nil {
				return err
			}
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (c *Coordinator) candidates(ctx context.Context, req CreateRequest) ([]string, error) {
	if req.ProviderID != AnyProvider {
		if strings.TrimSpace(req.ProviderID) == "" {
			return nil, fmt.Errorf("%w: provider is required", ErrInvalidRequest)
		}
		return []string{req.ProviderID}, nil
	}
	if len(req.Candidates) > 0 {
		return req.Candidates, nil
	}
	if c.providers == nil {
		return nil, fmt.Errorf("%w: no providers to choose from", ErrInvalidRequest)
	}
	ids, err := c.providers.ActiveProviderIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: list providers: %w", err)
	}
	if len(ids) == 0 {
		return nil, &ConflictError{ProviderID: AnyProvider, Start: req.Start}
	}
	return ids, nil
}

func (c *Coordinator) validateInterval(ctx context.Context, start time.Time, durationMinutes int) error {
	if durationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	if start.IsZero() {
		return fmt.Errorf("%w: start is required", ErrInvalidRequest)
	}
	if !start.After(c.now()) {
		return fmt.Errorf("%w: start is in the past", ErrInvalidRequest)
	}
	if c.calendar == nil {
		return nil
	}
	hours, err := c.calendar.Hours(ctx, start.Weekday())
	if err != nil {
		return fmt.Errorf("bookings: load hours: %w", err)
	}
	open, closeAt, ok := hours.Window(start)
	if !ok {
		return ErrOutsideHours
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	if start.Before(open) || end.After(closeAt) {
		return ErrOutsideHours
	}
	return nil
}

func (c *Coordinator) publish(ctx context.Context, eventType string, b Booking) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishBookingEvent(ctx, eventType, b); err != nil {
		c.logger.Warn("booking event publish failed", "event", eventType, "booking_id", b.ID, "error", err)
	}
}
