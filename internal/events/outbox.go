package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

// Entry is one booking event waiting to be published.
type Entry struct {
	ID        uuid.UUID
	Type      string
	Payload   json.RawMessage
	Attempts  int
	CreatedAt time.Time
}

// Handler publishes a single entry downstream.
type Handler interface {
	Handle(ctx context.Context, entry Entry) error
}

// DB is the subset of pgxpool.Pool used by the outbox.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Outbox stores booking events in Postgres until a Deliverer publishes them.
type Outbox struct {
	db  DB
	now func() time.Time
}

func NewOutbox(db DB) *Outbox {
	if db == nil {
		panic("events: db required")
	}
	return &Outbox{db: db, now: time.Now}
}

// Append stores payload as JSON under eventType.
func (o *Outbox) Append(ctx context.Context, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: encode %s: %w", eventType, err)
	}
	id := uuid.New()
	if _, err := o.db.Exec(ctx,
		`INSERT INTO outbox (id, type, payload, created_at) VALUES ($1, $2, $3, $4)`,
		id, eventType, data, o.now().UTC(),
	); err != nil {
		return uuid.Nil, fmt.Errorf("events: append %s: %w", eventType, err)
	}
	return id, nil
}

// Pending returns undelivered entries in creation order, leaving out those
// that already failed maxAttempts times.
func (o *Outbox) Pending(ctx context.Context, limit, maxAttempts int) ([]Entry, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, type, payload, attempts, created_at
		FROM outbox
		WHERE delivered_at IS NULL AND attempts < $2
		ORDER BY created_at, id
		LIMIT $1`, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: list pending: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan pending: %w", err)
		}
		e.Payload = append(json.RawMessage(nil), payload...)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ack marks an entry delivered. Acking twice is harmless.
func (o *Outbox) Ack(ctx context.Context, id uuid.UUID) error {
	if _, err := o.db.Exec(ctx,
		`UPDATE outbox SET delivered_at = $2 WHERE id = $1 AND delivered_at IS NULL`,
		id, o.now().UTC(),
	); err != nil {
		return fmt.Errorf("events: ack %s: %w", id, err)
	}
	return nil
}

// Fail records a delivery attempt that did not go through.
func (o *Outbox) Fail(ctx context.Context, id uuid.UUID, cause error) error {
	if _, err := o.db.Exec(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, cause.Error(),
	); err != nil {
		return fmt.Errorf("events: record failure %s: %w", id, err)
	}
	return nil
}

const (
	defaultDeliverBatch    = 25
	defaultDeliverInterval = 2 * time.Second
	defaultMaxAttempts     = 10
)

// DelivererOption customizes a Deliverer.
type DelivererOption func(*Deliverer)

// WithBatchSize caps how many entries one pass publishes.
func WithBatchSize(n int) DelivererOption {
	return func(d *Deliverer) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithPollInterval sets the pause between passes.
func WithPollInterval(interval time.Duration) DelivererOption {
	return func(d *Deliverer) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithMaxAttempts parks an entry after n failed deliveries.
func WithMaxAttempts(n int) DelivererOption {
	return func(d *Deliverer) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// Deliverer moves outbox entries to a Handler.
type Deliverer struct {
	outbox      *Outbox
	handler     Handler
	logger      *logging.Logger
	batchSize   int
	interval    time.Duration
	maxAttempts int
}

func NewDeliverer(outbox *Outbox, handler Handler, logger *logging.Logger, opts ...DelivererOption) *Deliverer {
	if outbox == nil || handler == nil {
		panic("events: outbox and handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Deliverer{
		outbox:      outbox,
		handler:     handler,
		logger:      logger,
		batchSize:   defaultDeliverBatch,
		interval:    defaultDeliverInterval,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start drains once and then on every interval until ctx is done.
func (d *Deliverer) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// DrainResult counts the outcome of one pass.
type DrainResult struct {
	Delivered int
	Failed    int
}

// Drain publishes one batch. Failed entries stay pending until they reach
// the attempt limit.
func (d *Deliverer) Drain(ctx context.Context) DrainResult {
	var res DrainResult
	entries, err := d.outbox.Pending(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox poll failed", "error", err)
		return res
	}
	for _, e := range entries {
		if err := d.handler.Handle(ctx, e); err != nil {
			res.Failed++
			d.fail(ctx, e, err)
			continue
		}
		if err := d.outbox.Ack(ctx, e.ID); err != nil {
			d.logger.Error("outbox ack failed", "error", err, "event_id", e.ID)
			continue
		}
		res.Delivered++
	}
	return res
}

func (d *Deliverer) fail(ctx context.Context, e Entry, cause error) {
	if err := d.outbox.Fail(ctx, e.ID, cause); err != nil {
		d.logger.Error("outbox failure not recorded", "error", err, "event_id", e.ID)
	}
	if e.Attempts+1 >= d.maxAttempts {
		d.logger.Error("booking event parked after repeated failures", "error", cause,
			"event_id", e.ID, "type", e.Type, "attempts", e.Attempts+1)
		return
	}
	d.logger.Warn("booking event delivery failed", "error", cause, "event_id", e.ID, "type", e.Type)
}
