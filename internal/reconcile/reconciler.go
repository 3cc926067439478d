package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-booking/internal/bookings"
	"github.com/wolfman30/barbershop-booking/internal/gateway"
	"github.com/wolfman30/barbershop-booking/internal/notify"
	"github.com/wolfman30/barbershop-booking/internal/observability/metrics"
	"github.com/wolfman30/barbershop-booking/internal/payments"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

var reconcileTracer = otel.Tracer("barbershop.internal.reconcile")

// Outcome describes what a reconciliation did with an event.
type Outcome string

const (
	OutcomeNotApproved      Outcome = "not_approved"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeRejected         Outcome = "rejected"
	OutcomeFailed           Outcome = "failed"
)

// PaymentLedger is the part of the payment ledger the reconciler drives.
type PaymentLedger interface {
	FindByExternalReference(ctx context.Context, ref string) (*payments.Payment, error)
	Confirm(ctx context.Context, paymentID string, method payments.Method) (*payments.Payment, bool, error)
}

// BookingConfirmer confirms the booking a payment belongs to.
type BookingConfirmer interface {
	Confirm(ctx context.Context, id string) (*bookings.Booking, bool, error)
}

// Notifier dispatches booking notifications.
type Notifier interface {
	Dispatch(ctx context.Context, evt notify.Event) (notify.Report, error)
}

// Reconciler applies normalized gateway events to the ledger and bookings.
type Reconciler struct {
	ledger   PaymentLedger
	bookings BookingConfirmer
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewReconciler wires the reconciler. notifier and m may be nil.
func NewReconciler(ledger PaymentLedger, confirmer BookingConfirmer, notifier Notifier, m *metrics.BookingMetrics, logger *logging.Logger) *Reconciler {
	if ledger == nil {
		panic("reconcile: ledger cannot be nil")
	}
	if confirmer == nil {
		panic("reconcile: booking confirmer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		ledger:   ledger,
		bookings: confirmer,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle applies one event. It returns an error only for failures worth
// redelivering (storage errors); every other case is acknowledged and
// reported through the outcome.
func (r *Reconciler) Handle(ctx context.Context, evt gateway.Event) (Outcome, error) {
	ctx, span := reconcileTracer.Start(ctx, "reconcile.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.provider", evt.Provider),
		attribute.String("barbershop.external_reference", evt.ExternalReference),
		attribute.Bool("barbershop.approved", evt.Approved),
	)

	outcome, err := r.handle(ctx, evt)
	if err != nil {
		span.RecordError(err)
	}
	r.metrics.ObserveWebhook(evt.Provider, string(outcome))
	if !evt.ReceivedAt.IsZero() {
		r.metrics.ObserveWebhookLatency(evt.Provider, r.now().Sub(evt.ReceivedAt).Seconds())
	}
	return outcome, err
}

func (r *Reconciler) handle(ctx context.Context, evt gateway.Event) (Outcome, error) {
	log := r.logger.With("provider", evt.Provider, "external_reference", evt.ExternalReference, "event_id", evt.EventID)

	if !evt.Approved {
		log.Info("payment event not approved; acknowledged")
		return OutcomeNotApproved, nil
	}

	payment, err := r.ledger.FindByExternalReference(ctx, evt.ExternalReference)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("reconcile: find payment: %w", err)
	}
	if payment == nil {
		log.Warn("payment event for unknown reference; acknowledged")
		return OutcomeUnknownReference, nil
	}

	confirmed, alreadyPaid, err := r.ledger.Confirm(ctx, payment.ID, "")
	switch {
	case errors.Is(err, payments.ErrInvalidTransition):
		log.Error("approved payment for a cancelled payment record", "payment_id", payment.ID, "booking_id", payment.BookingID)
		return OutcomeRejected, nil
	case err != nil:
		return OutcomeFailed, fmt.Errorf("reconcile: confirm payment: %w", err)
	}
	payment = confirmed

	// Booking confirmation is idempotent, so a redelivery after a crash
	// between the two steps still confirms the booking.
	booking, alreadyBooked, err := r.bookings.Confirm(ctx, payment.BookingID)
	switch {
	case errors.Is(err, bookings.ErrInvalidTransition), errors.Is(err, bookings.ErrNotFound):
		log.Error("payment confirmed but booking cannot be confirmed", "error", err, "payment_id", payment.ID, "booking_id", payment.BookingID)
		return OutcomeRejected, nil
	case err != nil:
		return OutcomeFailed, fmt.Errorf("reconcile: confirm booking: %w", err)
	}

	outcome := OutcomeConfirmed
	if alreadyPaid && alreadyBooked {
		outcome = OutcomeDuplicate
		log.Info("duplicate payment event; acknowledged", "payment_id", payment.ID, "booking_id", booking.ID)
	} else {
		log.Info("payment reconciled", "payment_id", payment.ID, "booking_id", booking.ID)
	}

	// Dispatch on duplicates too. The dispatcher skips recipients already
	// claimed, so a redelivery only sends what an interrupted attempt missed.
	if r.notifier != nil {
		if _, err := r.notifier.Dispatch(ctx, notify.Event{Kind: notify.KindConfirmed, Booking: *booking}); err != nil {
			log.Warn("confirmation notifications not dispatched", "error", err, "booking_id", booking.ID)
		}
	}
	return outcome, nil
}
