package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/barbershop-booking/internal/gateway"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

const (
	defaultWorkerCount   = 1
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// EventDedup remembers gateway event ids that were fully reconciled.
// events.WebhookDedup satisfies it.
type EventDedup interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	Remember(ctx context.Context, provider, eventID string) error
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	dedup            EventDedup
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithEventDedup skips events whose gateway id was already reconciled.
func WithEventDedup(dedup EventDedup) WorkerOption {
	return func(cfg *workerConfig) { cfg.dedup = dedup }
}

// Worker consumes queued gateway events and reconciles them.
type Worker struct {
	queue      Queue
	reconciler *Reconciler
	logger     *logging.Logger
	cfg        workerConfig
	wg         sync.WaitGroup
}

// NewWorker creates a worker.
func NewWorker(queue Queue, reconciler *Reconciler, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("reconcile: queue cannot be nil")
	}
	if reconciler == nil {
		panic("reconcile: reconciler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{queue: queue, reconciler: reconciler, logger: logger, cfg: cfg}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("reconcile worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("reconcile worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive webhook events", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage reconciles one queue message. Undecodable messages are
// dropped; messages that failed with a storage error are left on the queue.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) {
	evt, err := decodeEvent(msg.Body)
	if err != nil {
		w.logger.Error("dropping undecodable webhook event", "error", err, "message_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	if w.seen(ctx, evt) {
		w.logger.Info("skipping already processed webhook event", "provider", evt.Provider, "event_id", evt.EventID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	outcome, err := w.reconciler.Handle(ctx, evt)
	if err != nil {
		w.logger.Error("webhook event reconciliation failed; leaving for redelivery", "error", err,
			"outcome", outcome, "external_reference", evt.ExternalReference, "message_id", msg.ID)
		return
	}
	w.remember(ctx, evt)
	w.deleteMessage(msg.ReceiptHandle)
}

// seen is advisory. Lookup errors fall through to the reconciler, which is
// idempotent on its own.
func (w *Worker) seen(ctx context.Context, evt gateway.Event) bool {
	if w.cfg.dedup == nil || evt.EventID == "" {
		return false
	}
	done, err := w.cfg.dedup.Seen(ctx, evt.Provider, evt.EventID)
	if err != nil {
		w.logger.Warn("processed event lookup failed", "error", err, "event_id", evt.EventID)
		return false
	}
	return done
}

func (w *Worker) remember(ctx context.Context, evt gateway.Event) {
	if w.cfg.dedup == nil || evt.EventID == "" {
		return
	}
	if err := w.cfg.dedup.Remember(ctx, evt.Provider, evt.EventID); err != nil {
		w.logger.Warn("failed to mark webhook event processed", "error", err, "event_id", evt.EventID)
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete webhook event", "error", err)
	}
}
