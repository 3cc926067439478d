package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgxpool.Pool used by Repository.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads the catalog tables.
type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	if db == nil {
		panic("catalog: db cannot be nil")
	}
	return &Repository{db: db}
}

func (r *Repository) Service(ctx context.Context, id string) (*Service, error) {
	const query = `SELECT id, name, duration_minutes, price_cents, active FROM services WHERE id = $1`
	var s Service
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.Active)
	if err != nil {
		return nil, notFound("service", err)
	}
	return &s, nil
}

func (r *Repository) Provider(ctx context.Context, id string) (*Provider, error) {
	const query = `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), active, sort_order
		FROM providers WHERE id = $1
	`
	var p Provider
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.Active, &p.SortOrder)
	if err != nil {
		return nil, notFound("provider", err)
	}
	return &p, nil
}

func (r *Repository) Client(ctx context.Context, id string) (*Client, error) {
	const query = `SELECT id, name, COALESCE(phone, ''), COALESCE(email, '') FROM clients WHERE id = $1`
	var c Client
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email)
	if err != nil {
		return nil, notFound("client", err)
	}
	return &c, nil
}

func (r *Repository) ActiveProviderIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM providers WHERE active ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list providers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("catalog: scan provider: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list providers: %w", err)
	}
	return ids, nil
}

func notFound(kind string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, kind)
	}
	return fmt.Errorf("catalog: get %s: %w", kind, err)
}

var _ Reader = (*Repository)(nil)
