package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestBookingMetricsObserve(t *testing.T) {
	m := NewBookingMetrics(prometheus.NewRegistry())
	m.ObserveBooking("create", nil)
	m.ObservePayment("confirm", "instant_payment", nil)
	m.ObserveWebhook("simulator", "confirmed")
	m.ObserveNotification("email", "sent")
	m.ObserveWebhookLatency("simulator", 0.5)
}

func TestBookingMetricsCountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking("create", nil)
	m.ObserveBooking("create", errors.New("conflict"))
	m.ObserveBooking("create", errors.New("conflict"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "barbershop_bookings_operations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			got[labelValue(metric, "result")] = metric.GetCounter().GetValue()
		}
	}
	if got["ok"] != 1 || got["error"] != 2 {
		t.Fatalf("unexpected counts: %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("create", nil)
	m.ObservePayment("confirm", "card", nil)
	m.ObserveWebhook("stripe", "ignored")
	m.ObserveNotification("message", "failed")
	m.ObserveWebhookLatency("stripe", 0.1)
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}
