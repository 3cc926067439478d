package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/barbershop-booking/internal/api/router"
	"github.com/wolfman30/barbershop-booking/internal/app/bootstrap"
	"github.com/wolfman30/barbershop-booking/internal/bookings"
	"github.com/wolfman30/barbershop-booking/internal/catalog"
	"github.com/wolfman30/barbershop-booking/internal/checkout"
	appconfig "github.com/wolfman30/barbershop-booking/internal/config"
	"github.com/wolfman30/barbershop-booking/internal/events"
	"github.com/wolfman30/barbershop-booking/internal/notify"
	"github.com/wolfman30/barbershop-booking/internal/observability/metrics"
	"github.com/wolfman30/barbershop-booking/internal/payments"
	"github.com/wolfman30/barbershop-booking/internal/reconcile"
	"github.com/wolfman30/barbershop-booking/internal/scheduling"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting barbershop-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	a.startBackground(ctx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	a.worker.Wait()
	logger.Info("server stopped")
}

// app holds the assembled process. Close releases what buildApp opened.
type app struct {
	handler   http.Handler
	checkout  *checkout.Service
	worker    *reconcile.Worker
	sweeper   *checkout.ExpirySweeper
	deliverer *events.Deliverer

	pool    *pgxpool.Pool
	redis   *redis.Client
	closers []io.Closer
	logger  *logging.Logger
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	loc := cfg.BusinessLocation()
	a := &app{logger: logger}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	if pool == nil {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}
	a.redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	var awsCfg *aws.Config
	if bootstrap.NeedsAWS(cfg) {
		loaded, err := bootstrap.LoadAWSConfig(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		awsCfg = &loaded
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(registry)

	stores := bootstrap.BuildStores(pool, loc)
	publisher, deliverer, closer := bootstrap.BuildEventPublisher(cfg, pool, logger)
	a.deliverer = deliverer
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	hours := bootstrap.BuildCalendar(a.redis)
	coordinator := bookings.NewCoordinator(stores.Bookings, logger,
		bookings.WithCalendar(hours),
		bookings.WithProviderDirectory(stores.Catalog),
		bookings.WithEventPublisher(publisher),
		bookings.WithMetrics(bookingMetrics),
	)
	ledger := payments.NewLedger(stores.Payments, coordinator, bookingMetrics, logger)

	dispatcherOpts := append(bootstrap.BuildChannelOptions(cfg, awsCfg, logger),
		notify.WithLocation(loc),
		notify.WithDispatcherMetrics(bookingMetrics),
	)
	dispatcher := notify.NewDispatcher(stores.Notify, catalog.NewContacts(stores.Catalog), ledger, logger, dispatcherOpts...)

	slots := scheduling.NewGenerator(hours, coordinator.Detector(), time.Duration(cfg.SlotGranularityMinutes)*time.Minute, logger)

	gw, usesSimulator := bootstrap.BuildGateway(cfg, logger)
	a.checkout = checkout.NewService(stores.Catalog, coordinator, ledger, gw, dispatcher, logger,
		checkout.WithSlots(slots),
		checkout.WithPixTemplate(bootstrap.PixTemplate(cfg)),
		checkout.WithPaymentWindow(cfg.PaymentWindow),
	)
	if cfg.UnpaidSweepInterval > 0 {
		a.sweeper = checkout.NewExpirySweeper(a.checkout, logger).WithInterval(cfg.UnpaidSweepInterval)
	}

	queue := bootstrap.BuildWebhookQueue(cfg, awsCfg, logger)
	reconciler := reconcile.NewReconciler(ledger, coordinator, dispatcher, bookingMetrics, logger)
	workerOpts := []reconcile.WorkerOption{reconcile.WithWorkerCount(cfg.WebhookWorkerCount)}
	if stores.Dedup != nil {
		workerOpts = append(workerOpts, reconcile.WithEventDedup(stores.Dedup))
	}
	a.worker = reconcile.NewWorker(queue, reconciler, logger, workerOpts...)

	a.handler = router.New(&router.Config{
		Logger:            logger,
		Webhooks:          reconcile.NewHandler(gw, queue, bookingMetrics, logger),
		MetricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Readiness:         a.ready,
		SimulatedCheckout: usesSimulator,
	})
	return a, nil
}

func (a *app) startBackground(ctx context.Context) {
	a.worker.Start(ctx)
	if a.sweeper != nil {
		go a.sweeper.Start(ctx)
	}
	bootstrap.StartDeliverer(ctx, a.deliverer)
}

func (a *app) ready(r *http.Request) error {
	if a.pool != nil {
		if err := a.pool.Ping(r.Context()); err != nil {
			return err
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(r.Context()).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
