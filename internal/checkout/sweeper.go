package checkout

import (
	"context"
	"time"

	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

// Expirer cancels bookings whose payment window has passed. Service satisfies it.
type Expirer interface {
	ExpireUnpaid(ctx context.Context, now time.Time) (int, error)
}

// ExpirySweeper periodically expires unpaid bookings.
type ExpirySweeper struct {
	expirer  Expirer
	logger   *logging.Logger
	interval time.Duration
	now      func() time.Time
}

// NewExpirySweeper creates a sweeper that runs every minute unless WithInterval says otherwise.
func NewExpirySweeper(expirer Expirer, logger *logging.Logger) *ExpirySweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &ExpirySweeper{
		expirer:  expirer,
		logger:   logger,
		interval: time.Minute,
		now:      time.Now,
	}
}

// WithInterval sets the sweep interval.
func (w *ExpirySweeper) WithInterval(interval time.Duration) *ExpirySweeper {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start sweeps once immediately and then on every tick. Blocks until ctx is cancelled.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.logger.Info("starting unpaid booking sweeper", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("unpaid booking sweeper shutting down")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns how many bookings expired.
func (w *ExpirySweeper) RunOnce(ctx context.Context) int {
	n, err := w.expirer.ExpireUnpaid(ctx, w.now())
	if err != nil {
		w.logger.Error("expire unpaid bookings failed", "error", err, "expired", n)
	}
	if n > 0 {
		w.logger.Info("expired unpaid bookings", "count", n)
	}
	return n
}
