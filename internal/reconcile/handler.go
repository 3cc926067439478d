package reconcile

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/barbershop-booking/internal/gateway"
	"github.com/wolfman30/barbershop-booking/internal/observability/metrics"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

const (
	maxWebhookBody = 1 << 20
	enqueueTimeout = 5 * time.Second
)

// Normalizer turns a raw webhook into a gateway event.
type Normalizer interface {
	NormalizeWebhook(ctx context.Context, req gateway.WebhookRequest) (gateway.Event, error)
}

// Handler receives gateway webhooks, normalizes them and enqueues the result.
type Handler struct {
	normalizer Normalizer
	queue      Queue
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
	now        func() time.Time
}

// NewHandler creates the intake handler.
func NewHandler(normalizer Normalizer, queue Queue, m *metrics.BookingMetrics, logger *logging.Logger) *Handler {
	if normalizer == nil {
		panic("reconcile: normalizer cannot be nil")
	}
	if queue == nil {
		panic("reconcile: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{normalizer: normalizer, queue: queue, metrics: m, logger: logger, now: time.Now}
}

// HandleWebhook serves POST /webhooks/{provider}. Malformed and unresolvable
// payloads are acknowledged with 200. Only failures that would lose a valid
// event (provider lookup or queue unavailable) answer 5xx so the gateway retries.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := strings.TrimSpace(chi.URLParam(r, "provider"))
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("webhook body read failed", "error", err, "provider", provider)
		h.metrics.ObserveWebhook(provider, "unreadable")
		w.WriteHeader(http.StatusOK)
		return
	}

	evt, err := h.normalizer.NormalizeWebhook(r.Context(), gateway.WebhookRequest{
		Provider: provider,
		Headers:  r.Header.Clone(),
		Query:    r.URL.Query(),
		Body:     body,
	})
	switch {
	case errors.Is(err, gateway.ErrUnresolved):
		h.logger.Info("webhook acknowledged without action", "provider", provider, "reason", err.Error())
		h.metrics.ObserveWebhook(provider, "unresolved")
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		h.logger.Error("webhook normalization failed", "error", err, "provider", provider)
		h.metrics.ObserveWebhook(provider, "normalize_error")
		http.Error(w, "temporarily unavailable", http.StatusBadGateway)
		return
	}

	evt.ReceivedAt = h.now().UTC()
	if err := h.enqueue(r.Context(), evt); err != nil {
		h.logger.Error("webhook enqueue failed", "error", err, "provider", provider, "external_reference", evt.ExternalReference)
		h.metrics.ObserveWebhook(provider, "enqueue_error")
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	h.logger.Info("webhook event queued", "provider", evt.Provider, "external_reference", evt.ExternalReference, "approved", evt.Approved)
	h.metrics.ObserveWebhook(provider, "queued")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) enqueue(ctx context.Context, evt gateway.Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	return Enqueue(ctx, h.queue, evt)
}

// SimulatedCheckoutRoutes serves the simulator's checkout page. Only mount it
// when the simulator adapter is active.
func (h *Handler) SimulatedCheckoutRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{ref}", h.handleSimulatedCheckout)
	r.Post("/{ref}/complete", h.handleSimulatedComplete)
	return r
}

func (h *Handler) handleSimulatedCheckout(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head><meta charset="utf-8" /><title>Simulated checkout</title></head>
  <body>
    <h1>Simulated checkout</h1>
    <p>Reference: %s</p>
    <form method="post" action="%s/complete"><button type="submit">Pay</button></form>
  </body>
</html>`, html.EscapeString(ref), html.EscapeString(ref))
}

func (h *Handler) handleSimulatedComplete(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(chi.URLParam(r, "ref"))
	if ref == "" {
		http.Error(w, "missing reference", http.StatusBadRequest)
		return
	}
	evt := gateway.Event{
		Provider:          gateway.SimulatorName,
		ExternalReference: ref,
		Approved:          true,
		ReceivedAt:        h.now().UTC(),
	}
	if err := h.enqueue(r.Context(), evt); err != nil {
		h.logger.Error("simulated payment enqueue failed", "error", err, "external_reference", ref)
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	h.logger.Info("simulated payment queued", "external_reference", ref)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Payment received. You can close this page.")
}
