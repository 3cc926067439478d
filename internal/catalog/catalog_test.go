package catalog

import (
	"context"
	"errors"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barbershop-booking/internal/notify"
)

func TestMemoryActiveProviderOrder(t *testing.T) {
	m := NewMemory()
	m.PutProvider(Provider{ID: "c", Active: true, SortOrder: 2})
	m.PutProvider(Provider{ID: "a", Active: true, SortOrder: 1})
	m.PutProvider(Provider{ID: "b", Active: true, SortOrder: 1})
	m.PutProvider(Provider{ID: "z", Active: false})

	ids, err := m.ActiveProviderIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestMemoryLookups(t *testing.T) {
	m := NewMemory()
	m.PutService(Service{ID: "svc-1", Name: "Haircut", DurationMinutes: 30, PriceCents: 4500, Active: true})
	ctx := context.Background()

	s, err := m.Service(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4500), s.PriceCents)

	_, err = m.Service(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Client(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestContactsAdapter(t *testing.T) {
	m := NewMemory()
	m.PutClient(Client{ID: "cli-1", Name: "Ana", Phone: "+5511999990001"})
	m.PutProvider(Provider{ID: "prov-1", Name: "Rafa", Email: "rafa@example.com", Active: true})
	m.PutService(Service{ID: "svc-1", Name: "Beard trim"})
	c := NewContacts(m)
	ctx := context.Background()

	client, err := c.Contact(ctx, notify.RoleClient, "cli-1")
	require.NoError(t, err)
	assert.Equal(t, notify.Contact{Name: "Ana", Phone: "+5511999990001"}, client)

	provider, err := c.Contact(ctx, notify.RoleProvider, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, "rafa@example.com", provider.Email)

	missing, err := c.Contact(ctx, notify.RoleClient, "ghost")
	require.NoError(t, err)
	assert.Equal(t, notify.Contact{}, missing)

	name, err := c.ServiceName(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "Beard trim", name)
}

func TestRepositoryService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectQuery("SELECT id, name, duration_minutes").WithArgs("svc-1").WillReturnRows(
		pgxmock.NewRows([]string{"id", "name", "duration_minutes", "price_cents", "active"}).
			AddRow("svc-1", "Haircut", 30, int64(4500), true),
	)
	mock.ExpectQuery("SELECT id, name, duration_minutes").WithArgs("svc-404").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, name, duration_minutes").WithArgs("svc-err").WillReturnError(errors.New("conn reset"))

	s, err := repo.Service(context.Background(), "svc-1")
	require.NoError(t, err)
	assert.Equal(t, 30, s.DurationMinutes)

	_, err = repo.Service(context.Background(), "svc-404")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Service(context.Background(), "svc-err")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryActiveProviderIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectQuery("SELECT id FROM providers WHERE active").WillReturnRows(
		pgxmock.NewRows([]string{"id"}).AddRow("prov-1").AddRow("prov-2"),
	)
	ids, err := repo.ActiveProviderIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"prov-1", "prov-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
