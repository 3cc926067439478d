package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type dedupDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WebhookDedup remembers gateway event ids that were reconciled, keyed by
// provider since ids are only unique per gateway.
type WebhookDedup struct {
	db dedupDB
}

func NewWebhookDedup(db dedupDB) *WebhookDedup {
	if db == nil {
		panic("events: db required")
	}
	return &WebhookDedup{db: db}
}

func (d *WebhookDedup) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	var seen bool
	err := d.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2)`,
		provider, eventID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("events: lookup %s/%s: %w", provider, eventID, err)
	}
	return seen, nil
}

func (d *WebhookDedup) Remember(ctx context.Context, provider, eventID string) error {
	if _, err := d.db.Exec(ctx,
		`INSERT INTO processed_events (provider, event_id) VALUES ($1, $2) ON CONFLICT (provider, event_id) DO NOTHING`,
		provider, eventID,
	); err != nil {
		return fmt.Errorf("events: remember %s/%s: %w", provider, eventID, err)
	}
	return nil
}
