package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wolfman30/barbershop-booking/internal/bookings"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

func bookingEvent(eventType string, b bookings.Booking, at time.Time) BookingEventV1 {
	return BookingEventV1{
		EventID:         uuid.New().String(),
		Type:            eventType,
		BookingID:       b.ID,
		ProviderID:      b.ProviderID,
		ServiceID:       b.ServiceID,
		ClientID:        b.ClientID,
		StartTime:       b.StartTime,
		DurationMinutes: b.DurationMinutes,
		Status:          string(b.Status),
		OccurredAt:      at.UTC(),
	}
}

// OutboxPublisher appends booking events to the outbox for the Deliverer.
type OutboxPublisher struct {
	outbox *Outbox
	now    func() time.Time
}

func NewOutboxPublisher(outbox *Outbox) *OutboxPublisher {
	if outbox == nil {
		panic("events: outbox required")
	}
	return &OutboxPublisher{outbox: outbox, now: time.Now}
}

func (p *OutboxPublisher) PublishBookingEvent(ctx context.Context, eventType string, b bookings.Booking) error {
	_, err := p.outbox.Append(ctx, eventType, bookingEvent(eventType, b, p.now()))
	return err
}

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct {
	logger *logging.Logger
}

func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishBookingEvent(_ context.Context, eventType string, b bookings.Booking) error {
	p.logger.Info("booking event", "type", eventType, "booking_id", b.ID, "provider_id", b.ProviderID, "status", b.Status)
	return nil
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPHandler publishes outbox entries to a RabbitMQ topic exchange, routed by event type.
type AMQPHandler struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

// DialAMQP connects and declares the durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPHandler, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	return &AMQPHandler{conn: conn, ch: ch, exchange: exchange}, nil
}

func (h *AMQPHandler) Handle(ctx context.Context, entry Entry) error {
	err := h.ch.PublishWithContext(ctx, h.exchange, entry.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    entry.ID.String(),
		Timestamp:    entry.CreatedAt.UTC(),
		Type:         entry.Type,
		Body:         entry.Payload,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", entry.Type, err)
	}
	return nil
}

func (h *AMQPHandler) Close() error {
	if h.ch != nil {
		_ = h.ch.Close()
	}
	if h.conn != nil {
		return h.conn.Close()
	}
	return nil
}

var (
	_ bookings.EventPublisher = (*OutboxPublisher)(nil)
	_ bookings.EventPublisher = (*LogPublisher)(nil)
	_ Handler                 = (*AMQPHandler)(nil)
)
