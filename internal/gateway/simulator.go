package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/wolfman30/barbershop-booking/internal/pix"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

const (
	// SimulatorName is the provider name of the local simulation.
	SimulatorName = "simulator"

	simulatorPixKey = "simulador@barbearia.local"
)

// Simulator stands in for a gateway when no credentials are configured. It
// issues deterministic references, a locally generated PIX code and a checkout
// URL under the public base URL, and treats every webhook as approved.
type Simulator struct {
	publicBaseURL string
	pixTemplate   pix.Payload
	logger        *logging.Logger
}

// NewSimulator creates the simulator. pixTemplate supplies key, merchant name
// and city for generated codes.
func NewSimulator(publicBaseURL string, pixTemplate pix.Payload, logger *logging.Logger) *Simulator {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(pixTemplate.Key) == "" {
		pixTemplate.Key = simulatorPixKey
	}
	return &Simulator{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		pixTemplate:   pixTemplate,
		logger:        logger,
	}
}

func (s *Simulator) Name() string { return SimulatorName }

// Reference returns the deterministic reference for a booking.
func (s *Simulator) Reference(bookingID string) string {
	return "sim-" + bookingID
}

func (s *Simulator) CreateInstantPayment(_ context.Context, req InstantPaymentRequest) (*InstantPayment, error) {
	if strings.TrimSpace(req.BookingID) == "" {
		return nil, fmt.Errorf("gateway: simulator requires booking id")
	}
	payload := s.pixTemplate
	payload.AmountCents = req.AmountCents
	payload.BookingID = req.BookingID
	code, err := pix.Generate(payload)
	if err != nil {
		return nil, fmt.Errorf("gateway: simulator pix: %w", err)
	}
	s.logger.Info("simulated instant payment created", "booking_id", req.BookingID, "amount_cents", req.AmountCents)
	return &InstantPayment{ExternalReference: s.Reference(req.BookingID), PayCode: code}, nil
}

func (s *Simulator) CreateCardCheckout(_ context.Context, req CardCheckoutRequest) (*CardCheckout, error) {
	if strings.TrimSpace(req.BookingID) == "" {
		return nil, fmt.Errorf("gateway: simulator requires booking id")
	}
	if s.publicBaseURL == "" {
		return nil, fmt.Errorf("gateway: simulator requires PUBLIC_BASE_URL")
	}
	if !isValidBaseURL(s.publicBaseURL) {
		return nil, fmt.Errorf("gateway: simulator PUBLIC_BASE_URL must be an absolute http(s) URL")
	}
	ref := s.Reference(req.BookingID)
	return &CardCheckout{
		ExternalReference: ref,
		CheckoutURL:       fmt.Sprintf("%s/payments/simulated/%s", s.publicBaseURL, url.PathEscape(ref)),
	}, nil
}

// NormalizeWebhook accepts {"external_reference": "..."} and always approves.
func (s *Simulator) NormalizeWebhook(_ context.Context, req WebhookRequest) (Event, error) {
	var body struct {
		ExternalReference string `json:"external_reference"`
		EventID           string `json:"event_id"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}
	if strings.TrimSpace(body.ExternalReference) == "" {
		return Event{}, fmt.Errorf("%w: missing external_reference", ErrUnresolved)
	}
	return Event{
		Provider:          SimulatorName,
		EventID:           body.EventID,
		ExternalReference: body.ExternalReference,
		Approved:          true,
	}, nil
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
