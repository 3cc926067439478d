package gateway

import (
	"context"
	"fmt"
	"strings"
)

// Router picks the adapter for each payment kind and dispatches webhooks by
// provider name.
type Router struct {
	instant  Adapter
	card     Adapter
	webhooks map[string]Adapter
}

// NewRouter wires the instant and card adapters. Both, plus any extra adapters,
// accept webhooks under their Name().
func NewRouter(instant, card Adapter, extra ...Adapter) *Router {
	r := &Router{instant: instant, card: card, webhooks: make(map[string]Adapter)}
	for _, a := range append([]Adapter{instant, card}, extra...) {
		if a != nil {
			r.webhooks[strings.ToLower(a.Name())] = a
		}
	}
	return r
}

// InstantProvider names the adapter that handles instant payments.
func (r *Router) InstantProvider() string {
	if r.instant == nil {
		return ""
	}
	return r.instant.Name()
}

// CardProvider names the adapter that handles card checkouts.
func (r *Router) CardProvider() string {
	if r.card == nil {
		return ""
	}
	return r.card.Name()
}

func (r *Router) CreateInstantPayment(ctx context.Context, req InstantPaymentRequest) (*InstantPayment, error) {
	if r.instant == nil {
		return nil, fmt.Errorf("%w: no instant payment provider", ErrUnsupported)
	}
	return r.instant.CreateInstantPayment(ctx, req)
}

func (r *Router) CreateCardCheckout(ctx context.Context, req CardCheckoutRequest) (*CardCheckout, error) {
	if r.card == nil {
		return nil, fmt.Errorf("%w: no card provider", ErrUnsupported)
	}
	return r.card.CreateCardCheckout(ctx, req)
}

// NormalizeWebhook routes on req.Provider. Unknown providers are unresolved.
func (r *Router) NormalizeWebhook(ctx context.Context, req WebhookRequest) (Event, error) {
	a, ok := r.webhooks[strings.ToLower(strings.TrimSpace(req.Provider))]
	if !ok {
		return Event{}, fmt.Errorf("%w: unknown provider %q", ErrUnresolved, req.Provider)
	}
	evt, err := a.NormalizeWebhook(ctx, req)
	if err != nil {
		return Event{}, err
	}
	if evt.Provider == "" {
		evt.Provider = a.Name()
	}
	return evt, nil
}
