package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barbershop-booking/internal/bookings"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger() *Ledger {
	l := NewLedger(NewMemoryStore(), nil, nil, logging.Discard())
	l.SetClock(func() time.Time { return fixedNow })
	return l
}

func TestLedgerCreate(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	remote, err := l.Create(ctx, "bk-1", MethodInstantPayment, 4500)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, remote.Status)
	assert.Equal(t, int64(4500), remote.AmountCents)

	onSite, err := l.Create(ctx, "bk-2", MethodCash, 3000)
	require.NoError(t, err)
	assert.Equal(t, StatusPayOnSite, onSite.Status)

	_, err = l.Create(ctx, "bk-1", MethodCard, 4500)
	require.ErrorIs(t, err, ErrDuplicatePayment)

	_, err = l.Create(ctx, "bk-3", Method("crypto"), 100)
	require.ErrorIs(t, err, ErrInvalidPayment)
}

type stubBookings map[string]bool

func (s stubBookings) Get(_ context.Context, id string) (*bookings.Booking, error) {
	if !s[id] {
		return nil, bookings.ErrNotFound
	}
	return &bookings.Booking{ID: id}, nil
}

func TestLedgerCreateRequiresBooking(t *testing.T) {
	l := NewLedger(NewMemoryStore(), stubBookings{"bk-1": true}, nil, logging.Discard())
	_, err := l.Create(context.Background(), "bk-404", MethodCard, 100)
	require.ErrorIs(t, err, bookings.ErrNotFound)

	_, err = l.Create(context.Background(), "bk-1", MethodCard, 100)
	require.NoError(t, err)
}

func TestLedgerAttachExternalReference(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	a, err := l.Create(ctx, "bk-1", MethodInstantPayment, 4500)
	require.NoError(t, err)
	b, err := l.Create(ctx, "bk-2", MethodInstantPayment, 4500)
	require.NoError(t, err)

	attached, err := l.AttachExternalReference(ctx, a.ID, "mercadopago", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", attached.ExternalReference)
	assert.Equal(t, "mercadopago", attached.Provider)

	_, err = l.AttachExternalReference(ctx, a.ID, "mercadopago", "ref-1")
	require.NoError(t, err, "re-attaching the same reference is a no-op")

	_, err = l.AttachExternalReference(ctx, b.ID, "mercadopago", "ref-1")
	require.ErrorIs(t, err, ErrReferenceCollision)

	_, err = l.AttachExternalReference(ctx, a.ID, "mercadopago", "ref-2")
	require.ErrorIs(t, err, ErrReferenceImmutable)

	found, err := l.FindByExternalReference(ctx, "ref-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.ID)

	missing, err := l.FindByExternalReference(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = l.AttachExternalReference(ctx, "nope", "mercadopago", "ref-3")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerConfirmIsIdempotent(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	p, err := l.Create(ctx, "bk-1", MethodInstantPayment, 4500)
	require.NoError(t, err)

	first, already, err := l.Confirm(ctx, p.ID, MethodInstantPayment)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, StatusConfirmed, first.Status)
	require.NotNil(t, first.ConfirmedAt)

	l.SetClock(func() time.Time { return fixedNow.Add(time.Hour) })
	second, already, err := l.Confirm(ctx, p.ID, MethodInstantPayment)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, first, second, "second confirm leaves state identical")
}

func TestLedgerConfirmConcurrentOnlyOneWins(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	p, err := l.Create(ctx, "bk-1", MethodCard, 4500)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, already, err := l.Confirm(ctx, p.ID, MethodCard)
			if err != nil {
				t.Errorf("confirm: %v", err)
				return
			}
			if !already {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh)
}

func TestLedgerCancel(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	p, err := l.Create(ctx, "bk-1", MethodInstantPayment, 4500)
	require.NoError(t, err)
	cancelled, already, err := l.Cancel(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, already, err = l.Cancel(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, already)

	_, _, err = l.Confirm(ctx, p.ID, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	paid, err := l.Create(ctx, "bk-2", MethodCard, 4500)
	require.NoError(t, err)
	_, _, err = l.Confirm(ctx, paid.ID, "")
	require.NoError(t, err)
	_, _, err = l.Cancel(ctx, paid.ID)
	require.ErrorIs(t, err, ErrInvalidTransition, "confirmed is terminal")
}

func TestLedgerConfirmOnSiteSwitchesMethod(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	p, err := l.Create(ctx, "bk-1", MethodPayOnSite, 4500)
	require.NoError(t, err)

	confirmed, _, err := l.Confirm(ctx, p.ID, MethodCash)
	require.NoError(t, err)
	assert.Equal(t, MethodCash, confirmed.Method)
	assert.Equal(t, "paid on site", StatusLabel(confirmed.Status, confirmed.Method))
}

func TestLedgerSetPayCode(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	p, err := l.Create(ctx, "bk-1", MethodInstantPayment, 4500)
	require.NoError(t, err)

	require.NoError(t, l.SetPayCode(ctx, p.ID, "000201...", ""))
	got, err := l.GetByBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "000201...", got.PayCode)

	require.ErrorIs(t, l.SetPayCode(ctx, "missing", "x", ""), ErrNotFound)
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status Status
		method Method
		want   string
	}{
		{StatusConfirmed, MethodInstantPayment, "paid (PIX)"},
		{StatusConfirmed, MethodCard, "paid (card)"},
		{StatusConfirmed, MethodCash, "paid on site"},
		{StatusPayOnSite, MethodPayOnSite, "pay on site"},
		{StatusPending, MethodInstantPayment, "awaiting payment"},
		{StatusCancelled, MethodCard, "cancelled"},
		{Status("weird"), MethodCard, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusLabel(tt.status, tt.method), "%s/%s", tt.status, tt.method)
	}
}
