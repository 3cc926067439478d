package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/wolfman30/barbershop-booking/internal/checkout"
	appconfig "github.com/wolfman30/barbershop-booking/internal/config"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

func memoryConfig() *appconfig.Config {
	return &appconfig.Config{
		PublicBaseURL:      "http://localhost:8080",
		BusinessTimezone:   "America/Sao_Paulo",
		PaymentWindow:      15 * time.Minute,
		PixKey:             "caixa@barbearia.example",
		PixMerchantName:    "Barbearia",
		PixMerchantCity:    "Sao Paulo",
		EmailProvider:      "stub",
		WebhookQueueBuffer: 8,
		WebhookWorkerCount: 1,
	}
}

func TestBuildAppInMemory(t *testing.T) {
	a, err := buildApp(context.Background(), memoryConfig(), logging.Discard())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.Close()

	if a.pool != nil || a.redis != nil || a.deliverer != nil {
		t.Fatalf("expected no external connections in memory mode")
	}
	if a.sweeper != nil {
		t.Fatalf("unpaid sweeper must be opt-in")
	}
	if _, err := a.checkout.Availability(context.Background(), time.Now(), "prov-1", "svc-missing"); !errors.Is(err, checkout.ErrServiceUnavailable) {
		t.Fatalf("expected slot listing wired up to the catalog check, got %v", err)
	}

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime metrics, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/simulated/sim-bk-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected simulated checkout without gateway credentials, got %d", rr.Code)
	}
}

func TestBuildAppReadinessFollowsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()

	a, err := buildApp(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.Close()
	if a.redis == nil {
		t.Fatalf("expected redis client")
	}

	mr.Close()
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after redis stops, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "unavailable" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestBackgroundStopsOnCancel(t *testing.T) {
	a, err := buildApp(context.Background(), memoryConfig(), logging.Discard())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	a.startBackground(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		a.worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestBuildAppEnablesSweeper(t *testing.T) {
	cfg := memoryConfig()
	cfg.UnpaidSweepInterval = time.Minute

	a, err := buildApp(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.Close()
	if a.sweeper == nil {
		t.Fatalf("expected sweeper when an interval is configured")
	}
}
