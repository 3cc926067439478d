package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/barbershop-booking/internal/bookings"
	"github.com/wolfman30/barbershop-booking/internal/observability/metrics"
	"github.com/wolfman30/barbershop-booking/internal/payments"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

var notifyTracer = otel.Tracer("barbershop.internal.notify")

const timeLayout = "Mon 02/01 15:04"

// Directory resolves the people and service named by a booking.
type Directory interface {
	Contact(ctx context.Context, role Role, id string) (Contact, error)
	ServiceName(ctx context.Context, serviceID string) (string, error)
}

// PaymentReader loads the payment attached to a booking.
type PaymentReader interface {
	GetByBooking(ctx context.Context, bookingID string) (*payments.Payment, error)
}

// Event is a booking change to notify about.
type Event struct {
	Kind          Kind
	Booking       bookings.Booking
	PreviousStart time.Time
}

// Topic scopes deduplication. A rescheduled event is scoped to its new start
// so a later move notifies again.
func (e Event) Topic() string {
	if e.Kind == KindRescheduled {
		return string(e.Kind) + ":" + e.Booking.StartTime.UTC().Format(time.RFC3339)
	}
	return string(e.Kind)
}

// Report counts per-recipient outcomes of one Dispatch.
type Report struct {
	Sent    int
	Failed  int
	Skipped int
}

// Dispatcher renders and delivers booking notifications.
type Dispatcher struct {
	store     Store
	directory Directory
	payments  PaymentReader
	senders   map[Channel]Sender
	templates Templates
	renderer  Renderer
	location  *time.Location
	limit     int
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSender enables a channel.
func WithSender(channel Channel, sender Sender) DispatcherOption {
	return func(d *Dispatcher) {
		if sender != nil {
			d.senders[channel] = sender
		}
	}
}

func WithTemplates(t Templates) DispatcherOption {
	return func(d *Dispatcher) { d.templates = t }
}

// WithLocation sets the zone used to format booking times.
func WithLocation(loc *time.Location) DispatcherOption {
	return func(d *Dispatcher) {
		if loc != nil {
			d.location = loc
		}
	}
}

func WithDispatcherMetrics(m *metrics.BookingMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithConcurrency bounds parallel sends per Dispatch.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.limit = n
		}
	}
}

// NewDispatcher creates a dispatcher. payments may be nil.
func NewDispatcher(store Store, directory Directory, paymentReader PaymentReader, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if store == nil {
		panic("notify: store cannot be nil")
	}
	if directory == nil {
		panic("notify: directory cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		store:     store,
		directory: directory,
		payments:  paymentReader,
		senders:   make(map[Channel]Sender),
		templates: DefaultTemplates(),
		location:  time.UTC,
		limit:     4,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch notifies every reachable recipient of evt. Delivery failures are
// recorded per record and counted in the report; the returned error only
// covers failures to load what the messages need.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) (Report, error) {
	ctx, span := notifyTracer.Start(ctx, "notify.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.booking_id", evt.Booking.ID),
		attribute.String("barbershop.event", string(evt.Kind)),
	)

	byRole, ok := d.templates[evt.Kind]
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownEvent, evt.Kind)
	}

	client, err := d.directory.Contact(ctx, RoleClient, evt.Booking.ClientID)
	if err != nil {
		return Report{}, fmt.Errorf("notify: client contact: %w", err)
	}
	provider, err := d.directory.Contact(ctx, RoleProvider, evt.Booking.ProviderID)
	if err != nil {
		return Report{}, fmt.Errorf("notify: provider contact: %w", err)
	}
	data, err := d.templateData(ctx, evt, client, provider)
	if err != nil {
		return Report{}, err
	}

	enabled := make(map[Channel]bool, len(d.senders))
	for ch := range d.senders {
		enabled[ch] = true
	}
	recipients := Recipients(client, provider, enabled)

	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	g.SetLimit(d.limit)
	for _, r := range recipients {
		g.Go(func() error {
			outcome := d.deliver(ctx, evt, r, byRole[r.Role], data)
			mu.Lock()
			switch outcome {
			case StatusSent:
				report.Sent++
			case StatusFailed:
				report.Failed++
			default:
				report.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("notifications dispatched", "booking_id", evt.Booking.ID, "event", evt.Kind,
		"sent", report.Sent, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// deliver handles one recipient: claim, render, send, record. It returns the
// final status, or "" when the key was already claimed.
func (d *Dispatcher) deliver(ctx context.Context, evt Event, r Recipient, tpl Template, data map[string]string) Status {
	rec := &Record{
		ID:               uuid.NewString(),
		BookingID:        evt.Booking.ID,
		Topic:            evt.Topic(),
		Channel:          r.Channel,
		RecipientRole:    r.Role,
		RecipientAddress: r.Address,
		CreatedAt:        d.now().UTC(),
	}
	claimed, err := d.store.Claim(ctx, rec)
	if err != nil {
		d.logger.Error("notification claim failed", "error", err, "booking_id", rec.BookingID, "channel", r.Channel, "role", r.Role)
		d.metrics.ObserveNotification(string(r.Channel), "error")
		return StatusFailed
	}
	if !claimed {
		d.logger.Debug("notification already delivered or in flight", "booking_id", rec.BookingID, "channel", r.Channel, "role", r.Role)
		d.metrics.ObserveNotification(string(r.Channel), "skipped")
		return ""
	}

	sendErr := d.send(ctx, evt.Kind, rec.BookingID, r, tpl, data)
	if sendErr != nil {
		if err := d.store.MarkFailed(ctx, rec.ID, sendErr.Error()); err != nil {
			d.logger.Error("notification mark failed", "error", err, "notification_id", rec.ID)
		}
		d.logger.Warn("notification send failed", "error", sendErr, "booking_id", rec.BookingID, "channel", r.Channel, "role", r.Role)
		d.metrics.ObserveNotification(string(r.Channel), string(StatusFailed))
		return StatusFailed
	}
	if err := d.store.MarkSent(ctx, rec.ID, d.now().UTC()); err != nil {
		d.logger.Error("notification mark sent failed", "error", err, "notification_id", rec.ID)
	}
	d.metrics.ObserveNotification(string(r.Channel), string(StatusSent))
	return StatusSent
}

func (d *Dispatcher) send(ctx context.Context, kind Kind, bookingID string, r Recipient, tpl Template, data map[string]string) error {
	sender, ok := d.senders[r.Channel]
	if !ok {
		return fmt.Errorf("notify: no sender for channel %s", r.Channel)
	}
	msg, err := d.renderer.renderMessage(kind, r.Role, tpl, data)
	if err != nil {
		return err
	}
	msg.Tags = map[string]string{"booking_id": bookingID, "kind": string(kind), "role": string(r.Role)}
	return sender.Send(ctx, r.Address, msg)
}

func (d *Dispatcher) templateData(ctx context.Context, evt Event, client, provider Contact) (map[string]string, error) {
	serviceName, err := d.directory.ServiceName(ctx, evt.Booking.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("notify: service name: %w", err)
	}
	label := "not required"
	if d.payments != nil {
		p, err := d.payments.GetByBooking(ctx, evt.Booking.ID)
		switch {
		case err == nil && p != nil:
			label = payments.StatusLabel(p.Status, p.Method)
		case err != nil && !errors.Is(err, payments.ErrNotFound):
			return nil, fmt.Errorf("notify: payment: %w", err)
		}
	}
	data := map[string]string{
		"BookingID":    evt.Booking.ID,
		"ClientName":   fallback(client.Name, "client"),
		"ProviderName": fallback(provider.Name, "your barber"),
		"ServiceName":  fallback(serviceName, "appointment"),
		"When":         evt.Booking.StartTime.In(d.location).Format(timeLayout),
		"PreviousWhen": "",
		"PaymentLabel": label,
	}
	if !evt.PreviousStart.IsZero() {
		data["PreviousWhen"] = evt.PreviousStart.In(d.location).Format(timeLayout)
	}
	return data, nil
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
