package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestRepositoryClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	rec := &Record{ID: "n1", BookingID: "bk-1", Topic: "confirmed", Channel: ChannelMessage, RecipientRole: RoleClient, RecipientAddress: "+5511999990001", CreatedAt: fixedNow}
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs("n1", "bk-1", "confirmed", "message", "client", "+5511999990001", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ok, err := repo.Claim(context.Background(), rec)
	if err != nil || !ok {
		t.Fatalf("expected claim, got ok=%v err=%v", ok, err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", rec.Status)
	}
	dup := *rec
	dup.ID = "n2"
	ok, err = repo.Claim(context.Background(), &dup)
	if err != nil || ok {
		t.Fatalf("expected conflicting claim to be refused, got ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryMarkSentAndFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectExec("UPDATE notifications SET status = 'sent'").WithArgs("n1", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE notifications SET status = 'failed'").WithArgs("n2", "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE notifications SET status = 'sent'").WithArgs("n3", fixedNow).
		WillReturnError(errors.New("conn reset"))

	if err := repo.MarkSent(context.Background(), "n1", fixedNow); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(context.Background(), "n2", "boom"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.MarkSent(context.Background(), "n3", fixedNow); err == nil {
		t.Fatal("expected database error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryListForBooking(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	sentAt := fixedNow
	columns := []string{"id", "booking_id", "topic", "channel", "recipient_role", "recipient_address", "status", "error_detail", "created_at", "sent_at"}
	mock.ExpectQuery("SELECT id, booking_id, topic").WithArgs("bk-1").WillReturnRows(
		pgxmock.NewRows(columns).
			AddRow("n1", "bk-1", "confirmed", "email", "client", "ana@example.com", "sent", "", fixedNow, &sentAt).
			AddRow("n2", "bk-1", "confirmed", "message", "provider", "+5511999990002", "failed", "carrier down", fixedNow, (*time.Time)(nil)),
	)

	records, err := repo.ListForBooking(context.Background(), "bk-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Channel != ChannelEmail || records[0].SentAt == nil || !records[0].SentAt.Equal(fixedNow) {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if records[1].Status != StatusFailed || records[1].ErrorDetail != "carrier down" || records[1].SentAt != nil {
		t.Fatalf("unexpected second record %+v", records[1])
	}
}
