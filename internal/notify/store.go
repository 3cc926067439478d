package notify

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists notification records.
type Store interface {
	// Claim inserts rec as pending unless a pending or sent record already
	// exists for its key. It reports whether the claim succeeded.
	Claim(ctx context.Context, rec *Record) (bool, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, detail string) error
	ListForBooking(ctx context.Context, bookingID string) ([]Record, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	byKey   map[Key][]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byKey:   make(map[Key][]string),
	}
}

func (s *MemoryStore) Claim(_ context.Context, rec *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	for _, id := range s.byKey[key] {
		if s.records[id].blocksClaim() {
			return false, nil
		}
	}
	cp := *rec
	cp.Status = StatusPending
	s.records[cp.ID] = &cp
	s.byKey[key] = append(s.byKey[key], cp.ID)
	rec.Status = StatusPending
	return true, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != StatusPending {
		return ErrNotFound
	}
	rec.Status = StatusSent
	rec.ErrorDetail = ""
	rec.SentAt = &at
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != StatusPending {
		return ErrNotFound
	}
	rec.Status = StatusFailed
	rec.ErrorDetail = detail
	return nil
}

func (s *MemoryStore) ListForBooking(_ context.Context, bookingID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.records {
		if rec.BookingID == bookingID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
