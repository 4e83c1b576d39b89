// Package observability carries courier's Prometheus metrics and
// OpenTelemetry tracing. A nil *Metrics or *Tracer is valid and records
// nothing.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the courier instruments.
type Metrics struct {
	EventsTriggered   *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	DeliveryLatency   prometheus.Histogram
	PendingDeliveries prometheus.Gauge
}

// NewMetrics creates the instruments and registers them on reg.
// Registration panics on duplicates, as prometheus.MustRegister does.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_events_triggered_total",
			Help: "Events triggered, by event type.",
		}, []string{"event"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_deliveries_total",
			Help: "Delivery attempts, by outcome (delivered, retry, failed).",
		}, []string{"status"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_delivery_latency_seconds",
			Help:    "HTTP latency of delivery attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		PendingDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "courier_deliveries_pending",
			Help: "Deliveries waiting for an attempt, as of the last stats read.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.EventsTriggered, m.Deliveries, m.DeliveryLatency, m.PendingDeliveries)
	}
	return m
}

// RecordTrigger counts one triggered event.
func (m *Metrics) RecordTrigger(eventType string) {
	if m == nil {
		return
	}
	m.EventsTriggered.WithLabelValues(eventType).Inc()
}

// RecordAttempt records one delivery attempt.
func (m *Metrics) RecordAttempt(status string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(status).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// SetPending publishes the pending delivery count.
func (m *Metrics) SetPending(n int64) {
	if m == nil {
		return
	}
	m.PendingDeliveries.Set(float64(n))
}
