// Package reconcile turns normalized gateway webhooks into payment and booking
// confirmations. Intake and processing are split by a queue so the processing
// side never sees HTTP.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wolfman30/barbershop-booking/internal/gateway"
)

// Queue carries encoded gateway events from intake to the worker.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is a received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

func encodeEvent(evt gateway.Event) (string, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("reconcile: encode event: %w", err)
	}
	return string(body), nil
}

func decodeEvent(body string) (gateway.Event, error) {
	var evt gateway.Event
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		return gateway.Event{}, fmt.Errorf("reconcile: decode event: %w", err)
	}
	return evt, nil
}

// Enqueue encodes evt and sends it.
func Enqueue(ctx context.Context, q Queue, evt gateway.Event) error {
	body, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	return q.Send(ctx, body)
}
