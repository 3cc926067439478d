package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

// MercadoPagoName is the provider name used in references and webhook routes.
const MercadoPagoName = "mercadopago"

var mercadoPagoTracer = otel.Tracer("barbershop.internal.gateway.mercadopago")

// MercadoPago creates PIX payments and hosted checkouts through the Mercado Pago REST API.
// Both carry external_reference "bk:<booking id>", which is also the ledger reference.
type MercadoPago struct {
	accessToken   string
	webhookSecret string
	baseURL       string
	notifyURL     string
	httpClient    *http.Client
	logger        *logging.Logger
}

// NewMercadoPago creates the adapter.
func NewMercadoPago(accessToken, webhookSecret, baseURL string, logger *logging.Logger) *MercadoPago {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.mercadopago.com"
	}
	return &MercadoPago{
		accessToken:   accessToken,
		webhookSecret: webhookSecret,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// WithNotificationURL sets the webhook URL sent along with created payments.
func (m *MercadoPago) WithNotificationURL(notifyURL string) *MercadoPago {
	m.notifyURL = strings.TrimSpace(notifyURL)
	return m
}

// WithHTTPClient overrides the HTTP client (for testing).
func (m *MercadoPago) WithHTTPClient(client *http.Client) *MercadoPago {
	if client != nil {
		m.httpClient = client
	}
	return m
}

func (m *MercadoPago) Name() string { return MercadoPagoName }

// Reference returns the external_reference used for a booking.
func (m *MercadoPago) Reference(bookingID string) string {
	return "bk:" + bookingID
}

type mpPayer struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

type mpPaymentRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"`
	ExternalReference string  `json:"external_reference"`
	NotificationURL   string  `json:"notification_url,omitempty"`
	Payer             mpPayer `json:"payer"`
}

type mpPayment struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	ExternalReference  string `json:"external_reference"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (m *MercadoPago) CreateInstantPayment(ctx context.Context, req InstantPaymentRequest) (*InstantPayment, error) {
	ctx, span := mercadoPagoTracer.Start(ctx, "mercadopago.create_pix_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.booking_id", req.BookingID),
		attribute.Int64("barbershop.amount_cents", req.AmountCents),
	)

	ref := m.Reference(req.BookingID)
	body := mpPaymentRequest{
		TransactionAmount: float64(req.AmountCents) / 100,
		Description:       describe(req.Description),
		PaymentMethodID:   "pix",
		ExternalReference: ref,
		NotificationURL:   m.notifyURL,
		Payer:             mpPayer{Email: req.Payer.Email, FirstName: req.Payer.Name},
	}
	var parsed mpPayment
	if err := m.do(ctx, http.MethodPost, "/v1/payments", "pix-"+req.BookingID, body, &parsed); err != nil {
		span.RecordError(err)
		return nil, err
	}
	code := parsed.PointOfInteraction.TransactionData.QRCode
	m.logger.Info("mercadopago pix payment created", "booking_id", req.BookingID, "payment_ref", parsed.ID, "has_code", code != "")
	return &InstantPayment{
		ExternalReference: ref,
		PayCode:           code,
		PayCodeImage:      parsed.PointOfInteraction.TransactionData.QRCodeBase64,
	}, nil
}

type mpPreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type mpPreferenceRequest struct {
	Items             []mpPreferenceItem `json:"items"`
	ExternalReference string             `json:"external_reference"`
	NotificationURL   string             `json:"notification_url,omitempty"`
	Payer             mpPayer            `json:"payer"`
	PaymentMethods    struct {
		ExcludedPaymentTypes []map[string]string `json:"excluded_payment_types"`
	} `json:"payment_methods"`
}

func (m *MercadoPago) CreateCardCheckout(ctx context.Context, req CardCheckoutRequest) (*CardCheckout, error) {
	ctx, span := mercadoPagoTracer.Start(ctx, "mercadopago.create_preference")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.booking_id", req.BookingID))

	ref := m.Reference(req.BookingID)
	body := mpPreferenceRequest{
		Items: []mpPreferenceItem{{
			Title:      describe(req.Description),
			Quantity:   1,
			UnitPrice:  float64(req.AmountCents) / 100,
			CurrencyID: "BRL",
		}},
		ExternalReference: ref,
		NotificationURL:   m.notifyURL,
		Payer:             mpPayer{Email: req.Payer.Email, FirstName: req.Payer.Name},
	}
	body.PaymentMethods.ExcludedPaymentTypes = []map[string]string{{"id": "ticket"}}

	var parsed struct {
		ID        string `json:"id"`
		InitPoint string `json:"init_point"`
	}
	if err := m.do(ctx, http.MethodPost, "/checkout/preferences", "", body, &parsed); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if parsed.InitPoint == "" {
		return nil, fmt.Errorf("gateway: mercadopago response missing init_point")
	}
	return &CardCheckout{ExternalReference: ref, CheckoutURL: parsed.InitPoint}, nil
}

// NormalizeWebhook resolves a payment notification by fetching the payment and
// reading its external_reference. Non-payment topics are unresolved.
func (m *MercadoPago) NormalizeWebhook(ctx context.Context, req WebhookRequest) (Event, error) {
	var notification struct {
		ID     json.RawMessage `json:"id"`
		Type   string          `json:"type"`
		Action string          `json:"action"`
		Data   struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &notification); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
		}
	}
	topic := notification.Type
	if topic == "" {
		topic = req.Query.Get("type")
	}
	paymentID := notification.Data.ID
	if paymentID == "" {
		paymentID = req.Query.Get("data.id")
	}
	if topic != "payment" || paymentID == "" {
		return Event{}, fmt.Errorf("%w: topic %q", ErrUnresolved, topic)
	}
	if !m.verifySignature(req, paymentID) {
		return Event{}, fmt.Errorf("%w: invalid signature", ErrUnresolved)
	}

	var payment mpPayment
	if err := m.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, "", nil, &payment); err != nil {
		return Event{}, err
	}
	if payment.ExternalReference == "" {
		return Event{}, fmt.Errorf("%w: payment %s has no external_reference", ErrUnresolved, paymentID)
	}
	return Event{
		Provider:          MercadoPagoName,
		EventID:           strings.Trim(string(notification.ID), `"`),
		ExternalReference: payment.ExternalReference,
		Approved:          payment.Status == "approved",
	}, nil
}

// verifySignature checks x-signature ("ts=..,v1=..") over the manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;". Without a secret every
// request passes.
func (m *MercadoPago) verifySignature(req WebhookRequest, dataID string) bool {
	if m.webhookSecret == "" {
		return true
	}
	header := req.Headers.Get("X-Signature")
	if header == "" {
		return false
	}
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			sig = kv[1]
		}
	}
	if ts == "" || sig == "" {
		return false
	}
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), req.Headers.Get("X-Request-Id"), ts)
	mac := hmac.New(sha256.New, []byte(m.webhookSecret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (m *MercadoPago) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: mercadopago encode: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gateway: mercadopago request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: mercadopago http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway: mercadopago api status %d: %s", resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: mercadopago decode: %w", err)
	}
	return nil
}
