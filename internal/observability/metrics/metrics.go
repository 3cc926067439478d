package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking, payment, webhook and notification flows.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	paymentsTotal      *prometheus.CounterVec
	webhooksTotal      *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	webhookLatency     *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "bookings",
			Name:      "operations_total",
			Help:      "Booking coordinator operations by outcome",
		}, []string{"operation", "result"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "payments",
			Name:      "transitions_total",
			Help:      "Payment ledger transitions",
		}, []string{"operation", "method", "result"}),
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Gateway webhook events by reconciliation outcome",
		}, []string{"provider", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "notifications",
			Name:      "dispatch_total",
			Help:      "Notification dispatch attempts",
		}, []string{"channel", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barbershop",
			Subsystem: "webhooks",
			Name:      "reconcile_latency_seconds",
			Help:      "Latency between webhook receipt and reconciliation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.paymentsTotal, m.webhooksTotal, m.notificationsTotal, m.webhookLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(operation string, err error) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
}

func (m *BookingMetrics) ObservePayment(operation, method string, err error) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(operation, method, resultLabel(err)).Inc()
}

func (m *BookingMetrics) ObserveWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *BookingMetrics) ObserveNotification(channel, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *BookingMetrics) ObserveWebhookLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(provider).Observe(seconds)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
