package bookings

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Reader is the read side of the booking store.
type Reader interface {
	Get(ctx context.Context, id string) (*Booking, error)
	// ListForProvider returns the calendar-blocking bookings of providerID whose
	// interval intersects [from, to), ordered by start time.
	ListForProvider(ctx context.Context, providerID string, from, to time.Time) ([]Booking, error)
}

// Tx is the store view handed to a provider-scoped unit of work.
type Tx interface {
	Reader
	Insert(ctx context.Context, b *Booking) error
	Update(ctx context.Context, b *Booking) error
}

// Store persists bookings. InProviderScope runs fn so that no other scope for
// the same provider can interleave between its reads and writes.
type Store interface {
	Reader
	InProviderScope(ctx context.Context, providerID string, fn func(tx Tx) error) error
	ListByStatusBefore(ctx context.Context, status Status, createdBefore time.Time) ([]Booking, error)
}

// MemoryStore is an in-process Store guarded by one mutex per provider.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]Booking

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]Booking),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) providerLock(providerID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[providerID] = l
	}
	return l
}

func (s *MemoryStore) InProviderScope(ctx context.Context, providerID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.providerLock(providerID)
	l.Lock()
	defer l.Unlock()
	return fn(memoryTx{store: s})
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryStore) ListForProvider(_ context.Context, providerID string, from, to time.Time) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Booking
	for _, b := range s.bookings {
		if b.ProviderID != providerID || !b.Status.BlocksCalendar() {
			continue
		}
		if b.StartTime.Before(to) && b.End().After(from) {
			out = append(out, b)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) ListByStatusBefore(_ context.Context, status Status, createdBefore time.Time) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Booking
	for _, b := range s.bookings {
		if b.Status == status && b.CreatedAt.Before(createdBefore) {
			out = append(out, b)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) insert(b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[b.ID]; exists {
		return ErrInvalidRequest
	}
	s.bookings[b.ID] = *b
	return nil
}

func (s *MemoryStore) update(b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bookings[b.ID]; !exists {
		return ErrNotFound
	}
	s.bookings[b.ID] = *b
	return nil
}

type memoryTx struct {
	store *MemoryStore
}

func (t memoryTx) Get(ctx context.Context, id string) (*Booking, error) {
	return t.store.Get(ctx, id)
}

func (t memoryTx) ListForProvider(ctx context.Context, providerID string, from, to time.Time) ([]Booking, error) {
	return t.store.ListForProvider(ctx, providerID, from, to)
}

func (t memoryTx) Insert(_ context.Context, b *Booking) error { return t.store.insert(b) }

func (t memoryTx) Update(_ context.Context, b *Booking) error { return t.store.update(b) }

func sortByStart(list []Booking) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartTime.Equal(list[j].StartTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartTime.Before(list[j].StartTime)
	})
}
