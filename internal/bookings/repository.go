package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier abstracts the pgx query interface shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

const bookingColumns = `id, provider_id, service_id, client_id, start_time, duration_minutes, status, notes, created_at, updated_at`

// Repository is the Postgres Store. Provider scopes are transactions holding
// a transaction-level advisory lock on the provider id.
type Repository struct {
	db  DB
	loc *time.Location
}

// NewRepository creates a repository. start_time is a TIMESTAMPTZ instant;
// bookings are read back in loc.
func NewRepository(db DB, loc *time.Location) *Repository {
	if db == nil {
		panic("bookings: db required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Repository{db: db, loc: loc}
}

func (r *Repository) InProviderScope(ctx context.Context, providerID string, fn func(tx Tx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "bookings:provider:"+providerID); err != nil {
		return fmt.Errorf("bookings: lock provider: %w", err)
	}
	if err = fn(&pgTx{q: tx, loc: r.loc}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("bookings: commit: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Booking, error) {
	return getBooking(ctx, r.db, r.loc, id)
}

func (r *Repository) ListForProvider(ctx context.Context, providerID string, from, to time.Time) ([]Booking, error) {
	return listForProvider(ctx, r.db, r.loc, providerID, from, to)
}

func (r *Repository) ListByStatusBefore(ctx context.Context, status Status, createdBefore time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = $1 AND created_at < $2
		ORDER BY start_time ASC, id ASC`, string(status), createdBefore)
	if err != nil {
		return nil, fmt.Errorf("bookings: list by status: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows, r.loc)
}

type pgTx struct {
	q   querier
	loc *time.Location
}

func (t *pgTx) Get(ctx context.Context, id string) (*Booking, error) {
	return getBooking(ctx, t.q, t.loc, id)
}

func (t *pgTx) ListForProvider(ctx context.Context, providerID string, from, to time.Time) ([]Booking, error) {
	return listForProvider(ctx, t.q, t.loc, providerID, from, to)
}

func (t *pgTx) Insert(ctx context.Context, b *Booking) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.ProviderID, b.ServiceID, b.ClientID, b.StartTime, b.DurationMinutes,
		string(b.Status), b.Notes, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("bookings: insert: %w", err)
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, b *Booking) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE bookings
		SET start_time = $2, duration_minutes = $3, status = $4, notes = $5, updated_at = $6
		WHERE id = $1`,
		b.ID, b.StartTime, b.DurationMinutes, string(b.Status), b.Notes, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("bookings: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func getBooking(ctx context.Context, q querier, loc *time.Location, id string) (*Booking, error) {
	row := q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row, loc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

// listForProvider applies the same half-open overlap as Overlaps.
func listForProvider(ctx context.Context, q querier, loc *time.Location, providerID string, from, to time.Time) ([]Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1
		  AND status NOT IN ('cancelled', 'no_show')
		  AND start_time < $3
		  AND start_time + make_interval(mins => duration_minutes) > $2
		ORDER BY start_time ASC, id ASC`, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: list for provider: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows, loc)
}

func scanBookings(rows pgx.Rows, loc *time.Location) ([]Booking, error) {
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows, loc)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: rows: %w", err)
	}
	return out, nil
}

func scanBooking(row pgx.Row, loc *time.Location) (*Booking, error) {
	var (
		b      Booking
		status string
		start  time.Time
	)
	if err := row.Scan(&b.ID, &b.ProviderID, &b.ServiceID, &b.ClientID, &start, &b.DurationMinutes,
		&status, &b.Notes, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = Status(status)
	b.StartTime = start.In(loc)
	return &b, nil
}
