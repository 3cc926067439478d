package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/barbershop-booking/internal/http/middleware"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

// WebhookHandler receives gateway webhooks and serves simulated checkouts.
// reconcile.Handler satisfies it.
type WebhookHandler interface {
	HandleWebhook(w http.ResponseWriter, r *http.Request)
	SimulatedCheckoutRoutes() chi.Router
}

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhooks       WebhookHandler
	MetricsHandler http.Handler
	// Readiness reports dependency health for /ready. Nil means always ready.
	Readiness func(r *http.Request) error
	// SimulatedCheckout mounts the simulator's payment pages.
	SimulatedCheckout bool
	// CheckoutRateLimit caps simulated checkout requests per second and IP.
	CheckoutRateLimit float64
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthCheck)
	r.Get("/ready", readinessCheck(cfg.Readiness))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhooks != nil {
		r.With(middleware.Timeout(30*time.Second)).Post("/webhooks/{provider}", cfg.Webhooks.HandleWebhook)
		if cfg.SimulatedCheckout {
			limit := cfg.CheckoutRateLimit
			if limit <= 0 {
				limit = 2
			}
			limiter := httpmiddleware.NewRateLimiter(limit, 10)
			r.With(limiter.Middleware).Mount("/payments/simulated", cfg.Webhooks.SimulatedCheckoutRoutes())
		}
	}
	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readinessCheck(check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
