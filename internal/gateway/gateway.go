// Package gateway adapts remote payment providers to the narrow contract the
// booking core consumes: create a payment or checkout, and normalize webhooks.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnresolved is returned for webhook payloads that are malformed, unsigned
	// or do not describe a payment. Callers acknowledge and drop them.
	ErrUnresolved = errors.New("gateway: unresolved webhook")

	// ErrUnsupported is returned when an adapter does not offer the payment kind.
	ErrUnsupported = errors.New("gateway: operation not supported by provider")
)

// Contact identifies the payer.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// InstantPaymentRequest asks for a PIX-style push payment.
type InstantPaymentRequest struct {
	BookingID   string
	AmountCents int64
	Description string
	Payer       Contact
}

// InstantPayment is the created remote payment.
type InstantPayment struct {
	ExternalReference string
	PayCode           string
	PayCodeImage      string // base64 PNG when the provider renders one
}

// CardCheckoutRequest asks for a hosted card checkout.
type CardCheckoutRequest struct {
	BookingID   string
	AmountCents int64
	Description string
	Payer       Contact
}

// CardCheckout is the created hosted checkout.
type CardCheckout struct {
	ExternalReference string
	CheckoutURL       string
}

// WebhookRequest is the raw inbound webhook, detached from net/http.
type WebhookRequest struct {
	Provider string
	Headers  http.Header
	Query    url.Values
	Body     []byte
}

// Event is a normalized payment notification.
type Event struct {
	Provider          string    `json:"provider"`
	EventID           string    `json:"event_id,omitempty"`
	ExternalReference string    `json:"external_reference"`
	Approved          bool      `json:"approved"`
	ReceivedAt        time.Time `json:"received_at"`
}

// Adapter is implemented by every payment provider.
type Adapter interface {
	Name() string
	CreateInstantPayment(ctx context.Context, req InstantPaymentRequest) (*InstantPayment, error)
	CreateCardCheckout(ctx context.Context, req CardCheckoutRequest) (*CardCheckout, error)
	NormalizeWebhook(ctx context.Context, req WebhookRequest) (Event, error)
}

func describe(description string) string {
	if strings.TrimSpace(description) == "" {
		return "Booking"
	}
	return description
}
