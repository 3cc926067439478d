package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/barbershop-booking/internal/pix"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

func TestSimulatorCreatesDeterministicReferences(t *testing.T) {
	sim := NewSimulator("https://barbearia.example.com/", pix.Payload{MerchantName: "Barbearia", City: "Recife"}, logging.Discard())

	instant, err := sim.CreateInstantPayment(context.Background(), InstantPaymentRequest{BookingID: "bk-1", AmountCents: 4500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if instant.ExternalReference != "sim-bk-1" {
		t.Fatalf("unexpected reference %q", instant.ExternalReference)
	}
	if !pix.Verify(instant.PayCode) {
		t.Fatalf("generated pay code failed checksum: %s", instant.PayCode)
	}

	checkout, err := sim.CreateCardCheckout(context.Background(), CardCheckoutRequest{BookingID: "bk-1", AmountCents: 4500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checkout.CheckoutURL != "https://barbearia.example.com/payments/simulated/sim-bk-1" {
		t.Fatalf("unexpected checkout url %q", checkout.CheckoutURL)
	}
}

func TestSimulatorRequiresBaseURL(t *testing.T) {
	for _, base := range []string{"", "not a url", "ftp://example.com"} {
		sim := NewSimulator(base, pix.Payload{}, logging.Discard())
		if _, err := sim.CreateCardCheckout(context.Background(), CardCheckoutRequest{BookingID: "bk-1"}); err == nil {
			t.Fatalf("expected error for base %q", base)
		}
	}
}

func TestSimulatorNormalizeWebhook(t *testing.T) {
	sim := NewSimulator("https://example.com", pix.Payload{}, logging.Discard())

	evt, err := sim.NormalizeWebhook(context.Background(), WebhookRequest{Body: []byte(`{"external_reference":"sim-bk-1","event_id":"e1"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !evt.Approved || evt.ExternalReference != "sim-bk-1" || evt.EventID != "e1" {
		t.Fatalf("unexpected event %+v", evt)
	}

	if _, err := sim.NormalizeWebhook(context.Background(), WebhookRequest{Body: []byte(`{}`)}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
	if _, err := sim.NormalizeWebhook(context.Background(), WebhookRequest{Body: []byte(`garbage`)}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestMercadoPagoCreateInstantPayment(t *testing.T) {
	var got mpPaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer mp-token" {
			t.Errorf("missing auth header")
		}
		if r.Header.Get("X-Idempotency-Key") != "pix-bk-1" {
			t.Errorf("unexpected idempotency key %q", r.Header.Get("X-Idempotency-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":123,"status":"pending","external_reference":"bk:bk-1",
			"point_of_interaction":{"transaction_data":{"qr_code":"000201abc","qr_code_base64":"iVBOR"}}}`))
	}))
	defer srv.Close()

	mp := NewMercadoPago("mp-token", "", srv.URL, logging.Discard()).WithNotificationURL("https://example.com/webhooks/mercadopago")
	resp, err := mp.CreateInstantPayment(context.Background(), InstantPaymentRequest{
		BookingID:   "bk-1",
		AmountCents: 4550,
		Description: "Corte",
		Payer:       Contact{Name: "Ana", Email: "ana@example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ExternalReference != "bk:bk-1" || resp.PayCode != "000201abc" || resp.PayCodeImage != "iVBOR" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.PaymentMethodID != "pix" || got.TransactionAmount != 45.5 || got.ExternalReference != "bk:bk-1" {
		t.Fatalf("unexpected request body %+v", got)
	}
	if got.NotificationURL != "https://example.com/webhooks/mercadopago" {
		t.Fatalf("notification url not forwarded: %+v", got)
	}
}

func TestMercadoPagoCreateCardCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/preferences" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp.example/checkout/pref-1"}`))
	}))
	defer srv.Close()

	mp := NewMercadoPago("mp-token", "", srv.URL, logging.Discard())
	resp, err := mp.CreateCardCheckout(context.Background(), CardCheckoutRequest{BookingID: "bk-2", AmountCents: 3000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ExternalReference != "bk:bk-2" || resp.CheckoutURL != "https://mp.example/checkout/pref-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestMercadoPagoAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	mp := NewMercadoPago("mp-token", "", srv.URL, logging.Discard())
	_, err := mp.CreateInstantPayment(context.Background(), InstantPaymentRequest{BookingID: "bk-1", AmountCents: 100})
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func mercadoPagoPaymentServer(t *testing.T, status string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payments/987" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprintf(w, `{"id":987,"status":%q,"external_reference":"bk:bk-1"}`, status)
	}))
}

func TestMercadoPagoNormalizeWebhook(t *testing.T) {
	tests := []struct {
		status   string
		approved bool
	}{
		{"approved", true},
		{"pending", false},
		{"rejected", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := mercadoPagoPaymentServer(t, tt.status)
			defer srv.Close()

			mp := NewMercadoPago("mp-token", "", srv.URL, logging.Discard())
			evt, err := mp.NormalizeWebhook(context.Background(), WebhookRequest{
				Body: []byte(`{"id":555,"type":"payment","action":"payment.updated","data":{"id":"987"}}`),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if evt.ExternalReference != "bk:bk-1" || evt.Approved != tt.approved || evt.EventID != "555" {
				t.Fatalf("unexpected event %+v", evt)
			}
		})
	}
}

func TestMercadoPagoWebhookFromQuery(t *testing.T) {
	srv := mercadoPagoPaymentServer(t, "approved")
	defer srv.Close()

	mp := NewMercadoPago("mp-token", "", srv.URL, logging.Discard())
	evt, err := mp.NormalizeWebhook(context.Background(), WebhookRequest{
		Query: url.Values{"type": {"payment"}, "data.id": {"987"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !evt.Approved {
		t.Fatalf("expected approved event")
	}
}

func TestMercadoPagoWebhookIgnoresOtherTopics(t *testing.T) {
	mp := NewMercadoPago("mp-token", "", "http://127.0.0.1:1", logging.Discard())
	_, err := mp.NormalizeWebhook(context.Background(), WebhookRequest{
		Body: []byte(`{"type":"merchant_order","data":{"id":"1"}}`),
	})
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestMercadoPagoWebhookSignature(t *testing.T) {
	srv := mercadoPagoPaymentServer(t, "approved")
	defer srv.Close()

	secret := "mp-secret"
	mp := NewMercadoPago("mp-token", secret, srv.URL, logging.Discard())
	body := []byte(`{"type":"payment","data":{"id":"987"}}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("id:987;request-id:req-1;ts:1700000000;"))
	headers := http.Header{}
	headers.Set("X-Signature", "ts=1700000000,v1="+hex.EncodeToString(mac.Sum(nil)))
	headers.Set("X-Request-Id", "req-1")

	if _, err := mp.NormalizeWebhook(context.Background(), WebhookRequest{Headers: headers, Body: body}); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	headers.Set("X-Signature", "ts=1700000000,v1=deadbeef")
	if _, err := mp.NormalizeWebhook(context.Background(), WebhookRequest{Headers: headers, Body: body}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved for bad signature, got %v", err)
	}
}

func stripeSign(payload []byte, secret string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%s,v1=%s", ts, sig)
}

func TestStripeCreateCardCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("client_reference_id") != "bk-1" {
			t.Errorf("missing client_reference_id: %v", r.PostForm)
		}
		if r.PostForm.Get("line_items[0][price_data][unit_amount]") != "4500" {
			t.Errorf("unexpected amount: %v", r.PostForm)
		}
		if r.PostForm.Get("line_items[0][price_data][currency]") != "brl" {
			t.Errorf("unexpected currency: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk_test_123", SuccessURL: "https://example.com/ok", CancelURL: "https://example.com/cancel", BaseURL: srv.URL}, logging.Discard())
	resp, err := s.CreateCardCheckout(context.Background(), CardCheckoutRequest{BookingID: "bk-1", AmountCents: 4500, Description: "Corte"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ExternalReference != "cs_test_1" || resp.CheckoutURL != "https://checkout.stripe.com/c/pay/cs_test_1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestStripeInstantPaymentUnsupported(t *testing.T) {
	s := NewStripe(StripeConfig{SecretKey: "sk_test"}, logging.Discard())
	if _, err := s.CreateInstantPayment(context.Background(), InstantPaymentRequest{BookingID: "bk-1"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func stripeEvent(id, eventType, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2023-10-16","type":%q,
		"data":{"object":{"id":"cs_test_1","object":"checkout.session","client_reference_id":"bk-1","payment_status":%q}}}`,
		id, eventType, paymentStatus))
}

func TestStripeNormalizeWebhook(t *testing.T) {
	secret := "whsec_test"
	s := NewStripe(StripeConfig{SecretKey: "sk_test", WebhookSecret: secret}, logging.Discard())

	tests := []struct {
		name     string
		typ      string
		status   string
		approved bool
	}{
		{"completed paid", "checkout.session.completed", "paid", true},
		{"completed unpaid", "checkout.session.completed", "unpaid", false},
		{"async succeeded", "checkout.session.async_payment_succeeded", "paid", true},
		{"expired", "checkout.session.expired", "unpaid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := stripeEvent("evt_1", tt.typ, tt.status)
			headers := http.Header{}
			headers.Set("Stripe-Signature", stripeSign(payload, secret))

			evt, err := s.NormalizeWebhook(context.Background(), WebhookRequest{Headers: headers, Body: payload})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if evt.ExternalReference != "cs_test_1" || evt.Approved != tt.approved || evt.EventID != "evt_1" {
				t.Fatalf("unexpected event %+v", evt)
			}
		})
	}
}

func TestStripeWebhookRejectsBadSignatureAndOtherEvents(t *testing.T) {
	secret := "whsec_test"
	s := NewStripe(StripeConfig{SecretKey: "sk_test", WebhookSecret: secret}, logging.Discard())

	payload := stripeEvent("evt_1", "checkout.session.completed", "paid")
	headers := http.Header{}
	headers.Set("Stripe-Signature", stripeSign(payload, "wrong"))
	if _, err := s.NormalizeWebhook(context.Background(), WebhookRequest{Headers: headers, Body: payload}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved for bad signature, got %v", err)
	}

	other := stripeEvent("evt_2", "customer.created", "")
	headers.Set("Stripe-Signature", stripeSign(other, secret))
	if _, err := s.NormalizeWebhook(context.Background(), WebhookRequest{Headers: headers, Body: other}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved for other event type, got %v", err)
	}
}

type stubAdapter struct {
	name  string
	event Event
}

func (s stubAdapter) Name() string { return s.name }
func (s stubAdapter) CreateInstantPayment(context.Context, InstantPaymentRequest) (*InstantPayment, error) {
	return &InstantPayment{ExternalReference: s.name + "-instant"}, nil
}
func (s stubAdapter) CreateCardCheckout(context.Context, CardCheckoutRequest) (*CardCheckout, error) {
	return &CardCheckout{ExternalReference: s.name + "-card"}, nil
}
func (s stubAdapter) NormalizeWebhook(context.Context, WebhookRequest) (Event, error) {
	return s.event, nil
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter(
		stubAdapter{name: "mercadopago", event: Event{ExternalReference: "bk:1"}},
		stubAdapter{name: "stripe", event: Event{ExternalReference: "cs_1", Provider: "stripe"}},
		stubAdapter{name: "simulator", event: Event{ExternalReference: "sim-1"}},
	)
	ctx := context.Background()

	instant, _ := r.CreateInstantPayment(ctx, InstantPaymentRequest{})
	card, _ := r.CreateCardCheckout(ctx, CardCheckoutRequest{})
	if instant.ExternalReference != "mercadopago-instant" || card.ExternalReference != "stripe-card" {
		t.Fatalf("unexpected routing %+v %+v", instant, card)
	}
	if r.InstantProvider() != "mercadopago" || r.CardProvider() != "stripe" {
		t.Fatalf("unexpected provider names")
	}

	evt, err := r.NormalizeWebhook(ctx, WebhookRequest{Provider: "SIMULATOR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.ExternalReference != "sim-1" || evt.Provider != "simulator" {
		t.Fatalf("unexpected event %+v", evt)
	}

	if _, err := r.NormalizeWebhook(ctx, WebhookRequest{Provider: "paypal"}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved for unknown provider, got %v", err)
	}
}

func TestRouterWithoutAdapters(t *testing.T) {
	r := NewRouter(nil, nil)
	if _, err := r.CreateInstantPayment(context.Background(), InstantPaymentRequest{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := r.CreateCardCheckout(context.Background(), CardCheckoutRequest{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
