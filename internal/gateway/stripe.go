package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

// StripeName is the provider name used in webhook routes.
const StripeName = "stripe"

var stripeTracer = otel.Tracer("barbershop.internal.gateway.stripe")

// Stripe creates hosted card checkouts. The checkout session ID is the ledger
// reference; the booking ID travels as client_reference_id and metadata.
type Stripe struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
	currency      string
	logger        *logging.Logger
}

// StripeConfig configures the adapter. BaseURL is only set in tests.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	BaseURL       string
	HTTPClient    *http.Client
}

// NewStripe creates the adapter with its own backend so the global stripe.Key
// is never touched.
func NewStripe(cfg StripeConfig, logger *logging.Logger) *Stripe {
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:    httpClient,
		LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		backendCfg.URL = stripe.String(base)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}
	return &Stripe{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		currency:      "brl",
		logger:        logger,
	}
}

func (s *Stripe) Name() string { return StripeName }

// CreateInstantPayment is not offered; PIX goes through another provider.
func (s *Stripe) CreateInstantPayment(context.Context, InstantPaymentRequest) (*InstantPayment, error) {
	return nil, fmt.Errorf("%w: stripe instant payment", ErrUnsupported)
}

func (s *Stripe) CreateCardCheckout(ctx context.Context, req CardCheckoutRequest) (*CardCheckout, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.booking_id", req.BookingID),
		attribute.Int64("barbershop.amount_cents", req.AmountCents),
	)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(describe(req.Description)),
				},
			},
		}},
	}
	if s.successURL != "" {
		params.SuccessURL = stripe.String(s.successURL)
	}
	if s.cancelURL != "" {
		params.CancelURL = stripe.String(s.cancelURL)
	}
	if email := strings.TrimSpace(req.Payer.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.AddMetadata("booking_id", req.BookingID)
	params.Context = ctx

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("gateway: stripe checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("gateway: stripe response missing checkout url")
	}
	s.logger.Info("stripe checkout session created", "booking_id", req.BookingID, "session_id", session.ID)
	return &CardCheckout{ExternalReference: session.ID, CheckoutURL: session.URL}, nil
}

// NormalizeWebhook verifies the Stripe-Signature header and maps checkout
// session events. Events of other types are unresolved.
func (s *Stripe) NormalizeWebhook(_ context.Context, req WebhookRequest) (Event, error) {
	evt, err := webhook.ConstructEventWithOptions(req.Body, req.Headers.Get("Stripe-Signature"), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}

	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
	default:
		return Event{}, fmt.Errorf("%w: event type %s", ErrUnresolved, evt.Type)
	}
	if evt.Data == nil {
		return Event{}, fmt.Errorf("%w: event %s has no data", ErrUnresolved, evt.ID)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	if session.ID == "" {
		return Event{}, fmt.Errorf("%w: session without id", ErrUnresolved)
	}

	approved := false
	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		approved = session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
	}
	return Event{
		Provider:          StripeName,
		EventID:           evt.ID,
		ExternalReference: session.ID,
		Approved:          approved,
	}, nil
}
