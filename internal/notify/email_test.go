package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Barbershop" {
		t.Errorf("expected default from name 'Barbershop', got %q", sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	if err := sender.SendEmail(context.Background(), EmailMessage{To: "a@example.com", Subject: "x", Body: "y"}); err == nil {
		t.Error("expected error when client is nil")
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSenderBuildsInput(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "agenda@barbearia.com"}, logging.Discard())

	tags := map[string]string{"kind": "confirmed", "booking_id": "bk:42"}
	err := NewEmailChannel(sender).Send(context.Background(), "ana@example.com", Message{Subject: "Confirmed", Body: "See you", Tags: tags})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "Barbershop <agenda@barbearia.com>" {
		t.Fatalf("unexpected from %q", got)
	}
	if api.input.Destination.ToAddresses[0] != "ana@example.com" {
		t.Fatalf("unexpected destination %v", api.input.Destination.ToAddresses)
	}
	if aws.ToString(api.input.Content.Simple.Body.Text.Data) != "See you" {
		t.Fatalf("unexpected body")
	}
	if len(api.input.EmailTags) != 2 {
		t.Fatalf("expected two tags, got %d", len(api.input.EmailTags))
	}
	if aws.ToString(api.input.EmailTags[0].Name) != "booking_id" || aws.ToString(api.input.EmailTags[0].Value) != "bk_42" {
		t.Fatalf("unexpected first tag %s=%s", aws.ToString(api.input.EmailTags[0].Name), aws.ToString(api.input.EmailTags[0].Value))
	}

	api.err = errors.New("throttled")
	if err := sender.SendEmail(context.Background(), EmailMessage{To: "ana@example.com"}); err == nil {
		t.Fatal("expected SES error to propagate")
	}
}

func TestNewSESSenderNilClient(t *testing.T) {
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Fatal("expected nil sender without client")
	}
}

func TestStubSendersSucceed(t *testing.T) {
	if err := NewStubEmailSender(nil).SendEmail(context.Background(), EmailMessage{To: "a@example.com"}); err != nil {
		t.Errorf("stub email sender should not fail: %v", err)
	}
	if err := NewMessageChannel(NewStubSMSSender(nil)).Send(context.Background(), "+5511999990000", Message{Body: strings.Repeat("x", 80)}); err != nil {
		t.Errorf("stub sms sender should not fail: %v", err)
	}
}

func TestTwilioSenderPostsForm(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("missing basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "+5511999990000" || r.PostForm.Get("From") != "+5511000000000" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "secret", "+5511000000000", logging.Discard()).WithBaseURL(srv.URL)
	if err := sender.SendSMS(context.Background(), "+5511999990000", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestTwilioSenderRetriesServerErrorsOnly(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "secret", "+5511000000000", logging.Discard()).WithBaseURL(srv.URL)
	sender.retryDelay = time.Millisecond
	if err := sender.SendSMS(context.Background(), "+5511999990000", "hello"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer bad.Close()
	sender = NewTwilioSender("AC123", "secret", "+5511000000000", logging.Discard()).WithBaseURL(bad.URL)
	err := sender.SendSMS(context.Background(), "nope", "hello")
	if err == nil || !strings.Contains(err.Error(), "code 21211") {
		t.Fatalf("expected formatted twilio error, got %v", err)
	}
}

func TestTwilioSenderValidates(t *testing.T) {
	if err := NewTwilioSender("", "", "", nil).SendSMS(context.Background(), "+1", "x"); err == nil {
		t.Fatal("expected credentials error")
	}
	if err := NewTwilioSender("AC", "tok", "+1", nil).SendSMS(context.Background(), "+2", "  "); err == nil {
		t.Fatal("expected body error")
	}
}
