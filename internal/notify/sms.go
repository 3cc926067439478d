package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

var smsTracer = otel.Tracer("barbershop.internal.notify.sms")

// SMSSender sends text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// MessageChannel adapts an SMSSender to the message channel.
type MessageChannel struct {
	sender SMSSender
}

func NewMessageChannel(sender SMSSender) *MessageChannel {
	return &MessageChannel{sender: sender}
}

func (c *MessageChannel) Send(ctx context.Context, address string, msg Message) error {
	if c == nil || c.sender == nil {
		return fmt.Errorf("notify: sms sender not configured")
	}
	return c.sender.SendSMS(ctx, address, msg.Body)
}

// TwilioSender posts SMS messages using Twilio's REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	retryDelay time.Duration
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioSender builds a sender with default timeouts.
func NewTwilioSender(accountSID, authToken, from string, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    "https://api.twilio.com",
		retryDelay: 250 * time.Millisecond,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the API base URL (for testing).
func (s *TwilioSender) WithBaseURL(baseURL string) *TwilioSender {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

const twilioAttempts = 3

// SendSMS posts one message. 429 and 5xx answers are retried up to three
// times; any other failure is returned immediately.
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	switch {
	case s.accountSID == "" || s.authToken == "":
		return errors.New("notify: twilio credentials missing")
	case to == "":
		return errors.New("notify: sms recipient required")
	case s.from == "":
		return errors.New("notify: sms sender number required")
	case strings.TrimSpace(body) == "":
		return errors.New("notify: sms body required")
	}

	ctx, span := smsTracer.Start(ctx, "notify.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.to", to))

	form := url.Values{"To": {to}, "From": {s.from}, "Body": {body}}.Encode()
	var err error
	for attempt := 1; attempt <= twilioAttempts; attempt++ {
		var (
			sid   string
			retry bool
		)
		sid, retry, err = s.post(ctx, form)
		if err == nil {
			span.SetAttributes(attribute.String("twilio.sid", sid))
			s.logger.Info("twilio sms sent", "to", to, "sid", sid, "attempt", attempt)
			return nil
		}
		if !retry || attempt == twilioAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
	span.RecordError(err)
	return err
}

// twilioReply covers both the message resource and the error body.
type twilioReply struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// post makes one Messages.json call. retry reports whether the failure is
// worth another attempt.
func (s *TwilioSender) post(ctx context.Context, form string) (sid string, retry bool, err error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return "", false, fmt.Errorf("notify: twilio request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("notify: twilio call: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var reply twilioReply
	_ = json.Unmarshal(raw, &reply)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return reply.SID, false, nil
	}
	retry = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return "", retry, fmt.Errorf("notify: twilio send failed: %s", describeTwilioFailure(resp.StatusCode, reply, raw))
}

func describeTwilioFailure(status int, reply twilioReply, raw []byte) string {
	switch {
	case reply.Message != "" && reply.Code != 0:
		return fmt.Sprintf("status %d code %d: %s", status, reply.Code, reply.Message)
	case reply.Message != "":
		return fmt.Sprintf("status %d: %s", status, reply.Message)
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return fmt.Sprintf("status %d: %s", status, text)
	}
	return fmt.Sprintf("status %d", status)
}

// StubSMSSender logs instead of sending.
type StubSMSSender struct {
	logger *logging.Logger
}

func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

func (s *StubSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info("stub SMS sender: would send", "to", to, "body_preview", truncate(body, 50))
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var (
	_ SMSSender = (*TwilioSender)(nil)
	_ SMSSender = (*StubSMSSender)(nil)
	_ Sender    = (*MessageChannel)(nil)
)
