package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by Repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository is the Postgres Store. The partial unique index
// notifications_dedup_active_idx enforces the claim.
type Repository struct {
	db DB
}

// NewRepository creates a Postgres-backed store.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("notify: db cannot be nil")
	}
	return &Repository{db: db}
}

func (r *Repository) Claim(ctx context.Context, rec *Record) (bool, error) {
	const query = `
		INSERT INTO notifications (id, booking_id, topic, channel, recipient_role, recipient_address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		ON CONFLICT (booking_id, topic, channel, recipient_role, recipient_address)
			WHERE status IN ('pending', 'sent')
		DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, rec.ID, rec.BookingID, rec.Topic, string(rec.Channel),
		string(rec.RecipientRole), rec.RecipientAddress, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("notify: claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	rec.Status = StatusPending
	return true, nil
}

func (r *Repository) MarkSent(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE notifications SET status = 'sent', sent_at = $2, error_detail = NULL
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("notify: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id, detail string) error {
	const query = `
		UPDATE notifications SET status = 'failed', error_detail = $2
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, id, detail)
	if err != nil {
		return fmt.Errorf("notify: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListForBooking(ctx context.Context, bookingID string) ([]Record, error) {
	const query = `
		SELECT id, booking_id, topic, channel, recipient_role, recipient_address, status,
			COALESCE(error_detail, ''), created_at, sent_at
		FROM notifications
		WHERE booking_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("notify: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                   Record
			channel, role, status string
		)
		if err := rows.Scan(&rec.ID, &rec.BookingID, &rec.Topic, &channel, &role, &rec.RecipientAddress,
			&status, &rec.ErrorDetail, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("notify: scan: %w", err)
		}
		rec.Channel = Channel(channel)
		rec.RecipientRole = Role(role)
		rec.Status = Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: list: %w", err)
	}
	return out, nil
}
