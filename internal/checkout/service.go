// Package checkout runs the client-facing booking flow: it books the slot,
// opens the payment, calls the gateway and sends the notifications.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-booking/internal/bookings"
	"github.com/wolfman30/barbershop-booking/internal/catalog"
	"github.com/wolfman30/barbershop-booking/internal/gateway"
	"github.com/wolfman30/barbershop-booking/internal/notify"
	"github.com/wolfman30/barbershop-booking/internal/payments"
	"github.com/wolfman30/barbershop-booking/internal/pix"
	"github.com/wolfman30/barbershop-booking/internal/scheduling"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

var checkoutTracer = otel.Tracer("barbershop.internal.checkout")

const (
	defaultPaymentWindow = 15 * time.Minute
	cleanupTimeout       = 10 * time.Second
)

var (
	// ErrServiceUnavailable is returned when the service is unknown or inactive.
	ErrServiceUnavailable = errors.New("checkout: service unavailable")

	// ErrGatewayFailed is returned when the gateway refused or failed the payment.
	// The booking and payment are cancelled before it is returned.
	ErrGatewayFailed = errors.New("checkout: payment gateway failed")

	// ErrNoSlotSource is returned by Availability when no slot source is wired.
	ErrNoSlotSource = errors.New("checkout: slot listing not configured")
)

// Catalog resolves services and the paying client.
type Catalog interface {
	Service(ctx context.Context, id string) (*catalog.Service, error)
	Client(ctx context.Context, id string) (*catalog.Client, error)
	ActiveProviderIDs(ctx context.Context) ([]string, error)
}

// SlotSource lists the slot grid of a day. *scheduling.Generator satisfies it.
type SlotSource interface {
	Generate(ctx context.Context, q scheduling.Query) ([]scheduling.Slot, error)
}

// BookingCoordinator is the subset of bookings.Coordinator used here.
type BookingCoordinator interface {
	Create(ctx context.Context, req bookings.CreateRequest) (*bookings.Booking, error)
	Reschedule(ctx context.Context, id string, newStart time.Time) (*bookings.RescheduleResult, error)
	Cancel(ctx context.Context, id string) (*bookings.Booking, bool, error)
	ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time) ([]bookings.Booking, error)
}

// PaymentLedger is the subset of payments.Ledger used here.
type PaymentLedger interface {
	Create(ctx context.Context, bookingID string, method payments.Method, amountCents int64) (*payments.Payment, error)
	AttachExternalReference(ctx context.Context, paymentID, provider, ref string) (*payments.Payment, error)
	SetPayCode(ctx context.Context, paymentID, payCode, checkoutURL string) error
	Cancel(ctx context.Context, paymentID string) (*payments.Payment, bool, error)
	GetByBooking(ctx context.Context, bookingID string) (*payments.Payment, error)
}

// Gateway creates remote payments. gateway.Router satisfies it.
type Gateway interface {
	InstantProvider() string
	CardProvider() string
	CreateInstantPayment(ctx context.Context, req gateway.InstantPaymentRequest) (*gateway.InstantPayment, error)
	CreateCardCheckout(ctx context.Context, req gateway.CardCheckoutRequest) (*gateway.CardCheckout, error)
}

// Notifier dispatches booking notifications.
type Notifier interface {
	Dispatch(ctx context.Context, evt notify.Event) (notify.Report, error)
}

// BookRequest is a client's booking. ProviderID may be bookings.AnyProvider.
type BookRequest struct {
	ProviderID string
	ServiceID  string
	ClientID   string
	Start      time.Time
	Method     payments.Method
	Notes      string
}

// BookResult is what the client needs to pay.
type BookResult struct {
	Booking      *bookings.Booking
	Payment      *payments.Payment
	PayCodeImage string
}

// Service is the booking flow.
type Service struct {
	catalog       Catalog
	coordinator   BookingCoordinator
	ledger        PaymentLedger
	gateway       Gateway
	notifier      Notifier
	slots         SlotSource
	pixTemplate   pix.Payload
	paymentWindow time.Duration
	logger        *logging.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithPixTemplate supplies key, merchant name and city for locally generated codes.
func WithPixTemplate(p pix.Payload) Option {
	return func(s *Service) { s.pixTemplate = p }
}

// WithSlots enables Availability.
func WithSlots(src SlotSource) Option {
	return func(s *Service) { s.slots = src }
}

// WithPaymentWindow sets how long a booking may wait for payment.
func WithPaymentWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.paymentWindow = d
		}
	}
}

// NewService wires the flow. gw may be nil when only in-person methods are offered.
func NewService(cat Catalog, coordinator BookingCoordinator, ledger PaymentLedger, gw Gateway, notifier Notifier, logger *logging.Logger, opts ...Option) *Service {
	if cat == nil || coordinator == nil || ledger == nil || notifier == nil {
		panic("checkout: catalog, coordinator, ledger and notifier are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		catalog:       cat,
		coordinator:   coordinator,
		ledger:        ledger,
		gateway:       gw,
		notifier:      notifier,
		paymentWindow: defaultPaymentWindow,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book reserves the slot and opens its payment. In-person methods confirm at
// once and notify; remote methods leave the booking awaiting payment with a
// pay code or checkout URL in the result.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	ctx, span := checkoutTracer.Start(ctx, "checkout.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.service_id", req.ServiceID),
		attribute.String("barbershop.payment_method", string(req.Method)),
	)

	if !req.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown method %q", payments.ErrInvalidPayment, req.Method)
	}
	svc, err := s.activeService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	booking, err := s.coordinator.Create(ctx, bookings.CreateRequest{
		ProviderID:      req.ProviderID,
		ServiceID:       svc.ID,
		ClientID:        req.ClientID,
		Start:           req.Start,
		DurationMinutes: svc.DurationMinutes,
		Notes:           req.Notes,
		PayInPerson:     req.Method.InPerson(),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("barbershop.booking_id", booking.ID))

	payment, err := s.ledger.Create(ctx, booking.ID, req.Method, svc.PriceCents)
	if err != nil {
		span.RecordError(err)
		s.release(ctx, booking.ID, nil)
		return nil, err
	}

	result := &BookResult{Booking: booking, Payment: payment}
	if req.Method.InPerson() {
		s.notify(ctx, notify.Event{Kind: notify.KindConfirmed, Booking: *booking})
		return result, nil
	}

	if err := s.openRemotePayment(ctx, svc, booking, result); err != nil {
		span.RecordError(err)
		s.release(ctx, booking.ID, payment)
		return nil, err
	}
	return result, nil
}

func (s *Service) openRemotePayment(ctx context.Context, svc *catalog.Service, booking *bookings.Booking, result *BookResult) error {
	if s.gateway == nil {
		return fmt.Errorf("%w: no gateway configured", ErrGatewayFailed)
	}
	payer := s.payer(ctx, booking.ClientID)
	payment := result.Payment

	var provider, ref, payCode, checkoutURL string
	switch payment.Method {
	case payments.MethodInstantPayment:
		created, err := s.gateway.CreateInstantPayment(ctx, gateway.InstantPaymentRequest{
			BookingID:   booking.ID,
			AmountCents: payment.AmountCents,
			Description: svc.Name,
			Payer:       payer,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrGatewayFailed, err)
		}
		provider, ref, payCode = s.gateway.InstantProvider(), created.ExternalReference, created.PayCode
		result.PayCodeImage = created.PayCodeImage
		if strings.TrimSpace(payCode) == "" {
			local, err := s.localPixCode(booking.ID, payment.AmountCents)
			if err != nil {
				return err
			}
			payCode = local
		}
	case payments.MethodCard:
		created, err := s.gateway.CreateCardCheckout(ctx, gateway.CardCheckoutRequest{
			BookingID:   booking.ID,
			AmountCents: payment.AmountCents,
			Description: svc.Name,
			Payer:       payer,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrGatewayFailed, err)
		}
		provider, ref, checkoutURL = s.gateway.CardProvider(), created.ExternalReference, created.CheckoutURL
	default:
		return fmt.Errorf("%w: method %q has no remote step", payments.ErrInvalidPayment, payment.Method)
	}

	attached, err := s.ledger.AttachExternalReference(ctx, payment.ID, provider, ref)
	if err != nil {
		return fmt.Errorf("checkout: attach reference: %w", err)
	}
	if err := s.ledger.SetPayCode(ctx, payment.ID, payCode, checkoutURL); err != nil {
		return fmt.Errorf("checkout: store pay code: %w", err)
	}
	attached.PayCode = payCode
	attached.CheckoutURL = checkoutURL
	result.Payment = attached

	s.logger.Info("checkout opened",
		"booking_id", booking.ID,
		"payment_id", payment.ID,
		"provider", provider,
		"external_reference", ref,
		"method", payment.Method,
	)
	return nil
}

func (s *Service) localPixCode(bookingID string, amountCents int64) (string, error) {
	payload := s.pixTemplate
	payload.BookingID = bookingID
	payload.AmountCents = amountCents
	code, err := pix.Generate(payload)
	if err != nil {
		return "", fmt.Errorf("checkout: local pix code: %w", err)
	}
	return code, nil
}

func (s *Service) payer(ctx context.Context, clientID string) gateway.Contact {
	client, err := s.catalog.Client(ctx, clientID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			s.logger.Warn("checkout: payer lookup failed", "client_id", clientID, "error", err)
		}
		return gateway.Contact{}
	}
	return gateway.Contact{Name: client.Name, Email: client.Email, Phone: client.Phone}
}

// release frees the slot after a failed checkout. It runs detached from the
// request so a cancelled caller still releases.
func (s *Service) release(ctx context.Context, bookingID string, payment *payments.Payment) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if payment != nil {
		if _, _, err := s.ledger.Cancel(ctx, payment.ID); err != nil {
			s.logger.Error("checkout: release payment failed", "payment_id", payment.ID, "error", err)
		}
	}
	if _, _, err := s.coordinator.Cancel(ctx, bookingID); err != nil {
		s.logger.Error("checkout: release booking failed", "booking_id", bookingID, "error", err)
		return
	}
	s.logger.Warn("checkout: booking released after failure", "booking_id", bookingID)
}

// Availability lists the slots of date sized for the service. providerID may
// be bookings.AnyProvider, which considers every active provider in order.
func (s *Service) Availability(ctx context.Context, date time.Time, providerID, serviceID string) ([]scheduling.Slot, error) {
	if s.slots == nil {
		return nil, ErrNoSlotSource
	}
	ctx, span := checkoutTracer.Start(ctx, "checkout.availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.service_id", serviceID),
		attribute.String("barbershop.provider_id", providerID),
	)

	svc, err := s.activeService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	q := scheduling.Query{Date: date, ProviderID: providerID, DurationMinutes: svc.DurationMinutes}
	if providerID == bookings.AnyProvider {
		if q.Providers, err = s.catalog.ActiveProviderIDs(ctx); err != nil {
			return nil, fmt.Errorf("checkout: list providers: %w", err)
		}
	}
	slots, err := s.slots.Generate(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return slots, nil
}

func (s *Service) activeService(ctx context.Context, id string) (*catalog.Service, error) {
	svc, err := s.catalog.Service(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) || (err == nil && !svc.Active) {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, id)
	}
	if err != nil {
		return nil, fmt.Errorf("checkout: load service: %w", err)
	}
	return svc, nil
}

// Reschedule moves the booking and notifies when the start actually changed.
func (s *Service) Reschedule(ctx context.Context, bookingID string, newStart time.Time) (*bookings.RescheduleResult, error) {
	result, err := s.coordinator.Reschedule(ctx, bookingID, newStart)
	if err != nil {
		return nil, err
	}
	if result.Changed {
		s.notify(ctx, notify.Event{
			Kind:          notify.KindRescheduled,
			Booking:       *result.Booking,
			PreviousStart: result.PreviousStart,
		})
	}
	return result, nil
}

// Cancel cancels the booking and its pending payment. A confirmed payment is
// kept for manual refund.
func (s *Service) Cancel(ctx context.Context, bookingID string) (*bookings.Booking, error) {
	booking, wasAlreadyCancelled, err := s.coordinator.Cancel(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	s.cancelPendingPayment(ctx, bookingID)
	if !wasAlreadyCancelled {
		s.notify(ctx, notify.Event{Kind: notify.KindCancelled, Booking: *booking})
	}
	return booking, nil
}

// ExpireUnpaid cancels bookings still awaiting payment after the payment
// window, measured from creation. ExpirySweeper calls it periodically. It
// returns how many bookings it cancelled.
func (s *Service) ExpireUnpaid(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.paymentWindow)
	stale, err := s.coordinator.ListAwaitingPaymentBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("checkout: list unpaid: %w", err)
	}

	var errs []error
	expired := 0
	for _, b := range stale {
		booking, wasAlreadyCancelled, err := s.coordinator.Cancel(ctx, b.ID)
		if errors.Is(err, bookings.ErrInvalidTransition) {
			// paid between the listing and the cancel
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("checkout: expire %s: %w", b.ID, err))
			continue
		}
		s.cancelPendingPayment(ctx, b.ID)
		if wasAlreadyCancelled {
			continue
		}
		expired++
		s.logger.Info("unpaid booking expired", "booking_id", b.ID, "created_at", b.CreatedAt)
		s.notify(ctx, notify.Event{Kind: notify.KindCancelled, Booking: *booking})
	}
	return expired, errors.Join(errs...)
}

func (s *Service) cancelPendingPayment(ctx context.Context, bookingID string) {
	payment, err := s.ledger.GetByBooking(ctx, bookingID)
	if errors.Is(err, payments.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error("checkout: load payment failed", "booking_id", bookingID, "error", err)
		return
	}
	if payment.Status != payments.StatusPending && payment.Status != payments.StatusPayOnSite {
		return
	}
	if _, _, err := s.ledger.Cancel(ctx, payment.ID); err != nil {
		s.logger.Error("checkout: cancel payment failed", "payment_id", payment.ID, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, evt notify.Event) {
	report, err := s.notifier.Dispatch(ctx, evt)
	if err != nil {
		s.logger.Error("notification dispatch failed", "booking_id", evt.Booking.ID, "kind", evt.Kind, "error", err)
		return
	}
	if report.Failed > 0 {
		s.logger.Warn("some notifications failed", "booking_id", evt.Booking.ID, "kind", evt.Kind, "failed", report.Failed)
	}
}
