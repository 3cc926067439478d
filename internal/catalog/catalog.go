// Package catalog is the read side of services, providers and clients. Their
// CRUD lives elsewhere; booking only needs lookups.
package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/wolfman30/barbershop-booking/internal/notify"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Service is a bookable service with its current duration and price.
type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Active          bool   `json:"active"`
}

// Provider is a person clients book with.
type Provider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Active    bool   `json:"active"`
	SortOrder int    `json:"sort_order"`
}

// Client is a person who books.
type Client struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Reader looks up catalog entries.
type Reader interface {
	Service(ctx context.Context, id string) (*Service, error)
	Provider(ctx context.Context, id string) (*Provider, error)
	Client(ctx context.Context, id string) (*Client, error)
	// ActiveProviderIDs lists active providers by sort order, then id.
	ActiveProviderIDs(ctx context.Context) ([]string, error)
}

// Memory is an in-process Reader, seeded with Put* calls.
type Memory struct {
	mu        sync.RWMutex
	services  map[string]Service
	providers map[string]Provider
	clients   map[string]Client
}

func NewMemory() *Memory {
	return &Memory{
		services:  make(map[string]Service),
		providers: make(map[string]Provider),
		clients:   make(map[string]Client),
	}
}

func (m *Memory) PutService(s Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
}

func (m *Memory) PutProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
}

func (m *Memory) PutClient(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
}

func (m *Memory) Service(_ context.Context, id string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) Provider(_ context.Context, id string) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) Client(_ context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ActiveProviderIDs(context.Context) ([]string, error) {
	m.mu.RLock()
	active := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		if p.Active {
			active = append(active, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		if active[i].SortOrder != active[j].SortOrder {
			return active[i].SortOrder < active[j].SortOrder
		}
		return active[i].ID < active[j].ID
	})
	ids := make([]string, len(active))
	for i, p := range active {
		ids[i] = p.ID
	}
	return ids, nil
}

// Contacts adapts a Reader to the notification directory. Missing people
// resolve to an empty contact so the dispatcher simply skips them.
type Contacts struct {
	reader Reader
}

func NewContacts(reader Reader) *Contacts {
	return &Contacts{reader: reader}
}

func (c *Contacts) Contact(ctx context.Context, role notify.Role, id string) (notify.Contact, error) {
	switch role {
	case notify.RoleClient:
		client, err := c.reader.Client(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return notify.Contact{}, nil
		}
		if err != nil {
			return notify.Contact{}, err
		}
		return notify.Contact{Name: client.Name, Phone: client.Phone, Email: client.Email}, nil
	case notify.RoleProvider:
		provider, err := c.reader.Provider(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return notify.Contact{}, nil
		}
		if err != nil {
			return notify.Contact{}, err
		}
		return notify.Contact{Name: provider.Name, Phone: provider.Phone, Email: provider.Email}, nil
	default:
		return notify.Contact{}, nil
	}
}

func (c *Contacts) ServiceName(ctx context.Context, serviceID string) (string, error) {
	s, err := c.reader.Service(ctx, serviceID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Name, nil
}

var (
	_ Reader           = (*Memory)(nil)
	_ notify.Directory = (*Contacts)(nil)
)
