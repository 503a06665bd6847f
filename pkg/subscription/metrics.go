package subscription

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts lifecycle events with Prometheus before forwarding them.
type MetricsSink struct {
	next    EventSink
	events  *prometheus.CounterVec
	charges *prometheus.CounterVec
}

// NewMetricsSink registers the collectors with reg (the default registerer when nil)
// and forwards every event to next, which may be nil.
func NewMetricsSink(reg prometheus.Registerer, next EventSink) (*MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if next == nil {
		next = NopSink{}
	}

	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planskit",
			Subsystem: "subscription",
			Name:      "events_total",
			Help:      "Lifecycle events raised by the subscription engine.",
		},
		[]string{"event"},
	)
	charges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "planskit",
			Subsystem: "subscription",
			Name:      "charges_total",
			Help:      "Charge attempts by outcome (succeeded, declined, failed).",
		},
		[]string{"outcome", "method"},
	)

	for _, c := range []prometheus.Collector{events, charges} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Join(errors.New("register subscription metrics"), err)
		}
	}

	return &MetricsSink{next: next, events: events, charges: charges}, nil
}

func (m *MetricsSink) Publish(ctx context.Context, event Event) error {
	m.events.WithLabelValues(event.EventName()).Inc()

	switch e := event.(type) {
	case ChargeSuccessful:
		m.charges.WithLabelValues("succeeded", e.Subscription.PaymentMethod).Inc()
	case ChargeFailed:
		outcome := "failed"
		if e.Declined {
			outcome = "declined"
		}
		m.charges.WithLabelValues(outcome, e.Subscription.PaymentMethod).Inc()
	}

	return m.next.Publish(ctx, event)
}
