package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	paymentColumns = `id, booking_id, method, amount_cents, status, provider, external_reference, pay_code, checkout_url, created_at, confirmed_at`

	uniqueViolation         = "23505"
	bookingUniqueConstraint = "payments_booking_id_key"
)

// Repository is the Postgres Store. Status changes are single conditional
// UPDATEs so concurrent webhook deliveries cannot both win.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by pgx.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("payments: db required")
	}
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, p *Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.BookingID, string(p.Method), p.AmountCents, string(p.Status),
		p.Provider, nullable(p.ExternalReference), nullable(p.PayCode), nullable(p.CheckoutURL),
		p.CreatedAt, p.ConfirmedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == bookingUniqueConstraint {
				return ErrDuplicatePayment
			}
			return ErrReferenceCollision
		}
		return fmt.Errorf("payments: insert: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *Repository) GetByBooking(ctx context.Context, bookingID string) (*Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1`, bookingID)
}

func (r *Repository) FindByExternalReference(ctx context.Context, ref string) (*Payment, error) {
	p, err := r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_reference = $1`, ref)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) SetExternalReference(ctx context.Context, id, provider, ref string) (*Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `
		UPDATE payments
		SET external_reference = $2, provider = $3
		WHERE id = $1 AND (external_reference IS NULL OR external_reference = $2)
		RETURNING `+paymentColumns, id, ref, provider))
	if err == nil {
		return p, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, ErrReferenceCollision
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payments: attach reference: %w", err)
	}
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrReferenceImmutable
}

func (r *Repository) SetPayCode(ctx context.Context, id, payCode, checkoutURL string) error {
	tag, err := r.db.Exec(ctx, `UPDATE payments SET pay_code = $2, checkout_url = $3 WHERE id = $1`,
		id, nullable(payCode), nullable(checkoutURL))
	if err != nil {
		return fmt.Errorf("payments: set pay code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Confirm(ctx context.Context, id string, method Method, at time.Time) (*Payment, bool, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = 'confirmed', confirmed_at = $2, method = COALESCE(NULLIF($3, ''), method)
		WHERE id = $1 AND status IN ('pending', 'pay_on_site')
		RETURNING `+paymentColumns, id, at, string(method)))
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("payments: confirm: %w", err)
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status == StatusConfirmed {
		return current, true, nil
	}
	return nil, false, ErrInvalidTransition
}

func (r *Repository) Cancel(ctx context.Context, id string) (*Payment, bool, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = 'cancelled'
		WHERE id = $1 AND status IN ('pending', 'pay_on_site')
		RETURNING `+paymentColumns, id))
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("payments: cancel: %w", err)
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status == StatusCancelled {
		return current, true, nil
	}
	return nil, false, ErrInvalidTransition
}

func (r *Repository) getOne(ctx context.Context, sql string, arg any) (*Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payments: get: %w", err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p                         Payment
		method, status            string
		ref, payCode, checkoutURL *string
	)
	if err := row.Scan(&p.ID, &p.BookingID, &method, &p.AmountCents, &status, &p.Provider,
		&ref, &payCode, &checkoutURL, &p.CreatedAt, &p.ConfirmedAt); err != nil {
		return nil, err
	}
	p.Method = Method(method)
	p.Status = Status(status)
	p.ExternalReference = deref(ref)
	p.PayCode = deref(payCode)
	p.CheckoutURL = deref(checkoutURL)
	return &p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
