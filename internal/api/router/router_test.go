package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/barbershop-booking/internal/gateway"
	"github.com/wolfman30/barbershop-booking/internal/observability/metrics"
	"github.com/wolfman30/barbershop-booking/internal/pix"
	"github.com/wolfman30/barbershop-booking/internal/reconcile"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

func newTestRouter(t *testing.T, simulated bool, ready func(*http.Request) error) (http.Handler, *reconcile.MemoryQueue) {
	t.Helper()

	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	sim := gateway.NewSimulator("http://localhost:8080", pix.Payload{Key: "caixa@barbearia.example"}, logger)
	queue := reconcile.NewMemoryQueue(8)

	cfg := &Config{
		Logger:            logger,
		Webhooks:          reconcile.NewHandler(gateway.NewRouter(sim, sim), queue, m, logger),
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Readiness:         ready,
		SimulatedCheckout: simulated,
	}
	return New(cfg), queue
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterReadiness(t *testing.T) {
	router, _ := newTestRouter(t, false, func(*http.Request) error { return errors.New("postgres down") })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "postgres down") {
		t.Fatalf("expected error in body, got %s", rr.Body.String())
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, false, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterWebhookEnqueues(t *testing.T) {
	router, queue := newTestRouter(t, false, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/simulator", strings.NewReader(`{"external_reference":"sim-bk-1"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected one queued event, got %d", queue.Len())
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(`{}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown providers are acknowledged, got %d", rr.Code)
	}
	if queue.Len() != 1 {
		t.Fatalf("unknown provider must not enqueue, got %d", queue.Len())
	}
}

func TestRouterSimulatedCheckoutMount(t *testing.T) {
	router, _ := newTestRouter(t, true, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/simulated/sim-bk-1", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "sim-bk-1") {
		t.Fatalf("expected checkout page, got %d %s", rr.Code, rr.Body.String())
	}

	router, _ = newTestRouter(t, false, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/simulated/sim-bk-1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without simulator, got %d", rr.Code)
	}
}
