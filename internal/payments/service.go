package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-booking/internal/bookings"
	"github.com/wolfman30/barbershop-booking/internal/observability/metrics"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

var paymentsTracer = otel.Tracer("barbershop.internal.payments")

// BookingReader resolves the booking a payment is created for.
type BookingReader interface {
	Get(ctx context.Context, id string) (*bookings.Booking, error)
}

// Ledger owns the payment lifecycle.
type Ledger struct {
	store    Store
	bookings BookingReader
	metrics  *metrics.BookingMetrics
	now      func() time.Time
	logger   *logging.Logger
}

// NewLedger constructs a ledger. bookingReader may be nil, in which case the
// booking is not looked up on create.
func NewLedger(store Store, bookingReader BookingReader, m *metrics.BookingMetrics, logger *logging.Logger) *Ledger {
	if store == nil {
		panic("payments: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ledger{store: store, bookings: bookingReader, metrics: m, now: time.Now, logger: logger}
}

// SetClock overrides time.Now.
func (l *Ledger) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// Create records the booking's payment. In-person methods start PayOnSite,
// remote methods start Pending and expect AttachExternalReference.
func (l *Ledger) Create(ctx context.Context, bookingID string, method Method, amountCents int64) (p *Payment, err error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.booking_id", bookingID),
		attribute.String("barbershop.payment_method", string(method)),
		attribute.Int64("barbershop.amount_cents", amountCents),
	)
	defer func() {
		l.metrics.ObservePayment("create", string(method), err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if strings.TrimSpace(bookingID) == "" || !method.Valid() || amountCents < 0 {
		return nil, fmt.Errorf("%w: booking, method and a non-negative amount are required", ErrInvalidPayment)
	}
	if l.bookings != nil {
		if _, err := l.bookings.Get(ctx, bookingID); err != nil {
			return nil, fmt.Errorf("payments: load booking: %w", err)
		}
	}

	status := StatusPending
	if method.InPerson() {
		status = StatusPayOnSite
	}
	p = &Payment{
		ID:          uuid.New().String(),
		BookingID:   bookingID,
		Method:      method,
		AmountCents: amountCents,
		Status:      status,
		CreatedAt:   l.now(),
	}
	if err := l.store.Insert(ctx, p); err != nil {
		return nil, err
	}
	l.logger.Info("payment created", "payment_id", p.ID, "booking_id", bookingID, "method", method, "status", status)
	return p, nil
}

// AttachExternalReference binds the gateway reference. Re-attaching the same
// reference is a no-op.
func (l *Ledger) AttachExternalReference(ctx context.Context, paymentID, provider, ref string) (*Payment, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.attach_reference")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.payment_id", paymentID))

	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: external reference is required", ErrInvalidPayment)
	}
	p, err := l.store.SetExternalReference(ctx, paymentID, provider, ref)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrReferenceCollision) {
			l.logger.Error("external reference collision", "payment_id", paymentID, "external_reference", ref)
		}
		return nil, err
	}
	return p, nil
}

// Confirm marks the payment confirmed. Confirming again returns
// wasAlreadyConfirmed=true and changes nothing.
func (l *Ledger) Confirm(ctx context.Context, paymentID string, method Method) (p *Payment, wasAlreadyConfirmed bool, err error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.payment_id", paymentID))
	defer func() {
		l.metrics.ObservePayment("confirm", string(method), err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if method != "" && !method.Valid() {
		return nil, false, fmt.Errorf("%w: unknown method %q", ErrInvalidPayment, method)
	}
	p, wasAlreadyConfirmed, err = l.store.Confirm(ctx, paymentID, method, l.now())
	if err != nil {
		return nil, false, err
	}
	if wasAlreadyConfirmed {
		l.logger.Info("payment already confirmed", "payment_id", paymentID)
	} else {
		l.logger.Info("payment confirmed", "payment_id", paymentID, "booking_id", p.BookingID, "method", p.Method)
	}
	return p, wasAlreadyConfirmed, nil
}

// Cancel cancels a pending or pay-on-site payment. A confirmed payment is
// refused with ErrInvalidTransition since refunds are not handled here.
func (l *Ledger) Cancel(ctx context.Context, paymentID string) (p *Payment, wasAlreadyCancelled bool, err error) {
	defer func() { l.metrics.ObservePayment("cancel", "", err) }()
	p, wasAlreadyCancelled, err = l.store.Cancel(ctx, paymentID)
	if err != nil {
		return nil, false, err
	}
	if !wasAlreadyCancelled {
		l.logger.Info("payment cancelled", "payment_id", paymentID, "booking_id", p.BookingID)
	}
	return p, wasAlreadyCancelled, nil
}

// FindByExternalReference resolves a gateway reference. Absence yields nil, nil.
func (l *Ledger) FindByExternalReference(ctx context.Context, ref string) (*Payment, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, nil
	}
	return l.store.FindByExternalReference(ctx, ref)
}

// GetByBooking returns the booking's payment.
func (l *Ledger) GetByBooking(ctx context.Context, bookingID string) (*Payment, error) {
	return l.store.GetByBooking(ctx, bookingID)
}

// Get returns a payment by id.
func (l *Ledger) Get(ctx context.Context, paymentID string) (*Payment, error) {
	return l.store.Get(ctx, paymentID)
}

// SetPayCode stores the instant-payment payload and/or checkout URL shown to the client.
func (l *Ledger) SetPayCode(ctx context.Context, paymentID, payCode, checkoutURL string) error {
	return l.store.SetPayCode(ctx, paymentID, payCode, checkoutURL)
}
