package payments

import (
	"context"
	"sync"
	"time"
)

// Store persists payments. Every method is atomic with respect to the others.
type Store interface {
	Insert(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByBooking(ctx context.Context, bookingID string) (*Payment, error)
	// FindByExternalReference returns nil, nil when no payment carries ref.
	FindByExternalReference(ctx context.Context, ref string) (*Payment, error)
	SetExternalReference(ctx context.Context, id, provider, ref string) (*Payment, error)
	SetPayCode(ctx context.Context, id, payCode, checkoutURL string) error
	// Confirm moves a pending or pay-on-site payment to confirmed. A confirmed
	// payment is returned unchanged with wasAlreadyConfirmed set.
	Confirm(ctx context.Context, id string, method Method, at time.Time) (p *Payment, wasAlreadyConfirmed bool, err error)
	// Cancel moves a pending or pay-on-site payment to cancelled.
	Cancel(ctx context.Context, id string) (p *Payment, wasAlreadyCancelled bool, err error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.Mutex
	payments  map[string]*Payment
	byBooking map[string]string
	byRef     map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:  make(map[string]*Payment),
		byBooking: make(map[string]string),
		byRef:     make(map[string]string),
	}
}

func (s *MemoryStore) Insert(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byBooking[p.BookingID]; exists {
		return ErrDuplicatePayment
	}
	if p.ExternalReference != "" {
		if _, taken := s.byRef[p.ExternalReference]; taken {
			return ErrReferenceCollision
		}
		s.byRef[p.ExternalReference] = p.ID
	}
	cp := *p
	s.payments[p.ID] = &cp
	s.byBooking[p.BookingID] = p.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyOf(id)
}

func (s *MemoryStore) GetByBooking(_ context.Context, bookingID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byBooking[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.copyOf(id)
}

func (s *MemoryStore) FindByExternalReference(_ context.Context, ref string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRef[ref]
	if !ok {
		return nil, nil
	}
	return s.copyOf(id)
}

func (s *MemoryStore) SetExternalReference(_ context.Context, id, provider, ref string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if owner, taken := s.byRef[ref]; taken && owner != id {
		return nil, ErrReferenceCollision
	}
	if p.ExternalReference != "" && p.ExternalReference != ref {
		return nil, ErrReferenceImmutable
	}
	p.ExternalReference = ref
	p.Provider = provider
	s.byRef[ref] = id
	return s.copyOf(id)
}

func (s *MemoryStore) SetPayCode(_ context.Context, id, payCode, checkoutURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.PayCode = payCode
	p.CheckoutURL = checkoutURL
	return nil
}

func (s *MemoryStore) Confirm(_ context.Context, id string, method Method, at time.Time) (*Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	switch p.Status {
	case StatusConfirmed:
		cp, err := s.copyOf(id)
		return cp, true, err
	case StatusCancelled:
		return nil, false, ErrInvalidTransition
	}
	p.Status = StatusConfirmed
	if method != "" {
		p.Method = method
	}
	confirmedAt := at
	p.ConfirmedAt = &confirmedAt
	cp, err := s.copyOf(id)
	return cp, false, err
}

func (s *MemoryStore) Cancel(_ context.Context, id string) (*Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	switch p.Status {
	case StatusCancelled:
		cp, err := s.copyOf(id)
		return cp, true, err
	case StatusConfirmed:
		return nil, false, ErrInvalidTransition
	}
	p.Status = StatusCancelled
	cp, err := s.copyOf(id)
	return cp, false, err
}

func (s *MemoryStore) copyOf(id string) (*Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	if p.ConfirmedAt != nil {
		at := *p.ConfirmedAt
		cp.ConfirmedAt = &at
	}
	return &cp, nil
}
