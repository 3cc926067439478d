package bootstrap

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/barbershop-booking/internal/bookings"
	"github.com/wolfman30/barbershop-booking/internal/catalog"
	"github.com/wolfman30/barbershop-booking/internal/events"
	"github.com/wolfman30/barbershop-booking/internal/notify"
	"github.com/wolfman30/barbershop-booking/internal/payments"
)

// Stores groups the persistence layer. Dedup is nil in memory mode.
type Stores struct {
	Bookings bookings.Store
	Payments payments.Store
	Notify   notify.Store
	Catalog  catalog.Reader
	Dedup    *events.WebhookDedup
}

// BuildStores returns Postgres stores when a pool is given and in-memory
// stores otherwise.
func BuildStores(pool *pgxpool.Pool, loc *time.Location) Stores {
	if pool == nil {
		return Stores{
			Bookings: bookings.NewMemoryStore(),
			Payments: payments.NewMemoryStore(),
			Notify:   notify.NewMemoryStore(),
			Catalog:  catalog.NewMemory(),
		}
	}
	return Stores{
		Bookings: bookings.NewRepository(pool, loc),
		Payments: payments.NewRepository(pool),
		Notify:   notify.NewRepository(pool),
		Catalog:  catalog.NewRepository(pool),
		Dedup:    events.NewWebhookDedup(pool),
	}
}
