package notify

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type dispatchMetrics struct {
	events *prometheus.CounterVec
}

func newDispatchMetrics(reg prometheus.Registerer) *dispatchMetrics {
	if reg == nil {
		return nil
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ratekl",
		Subsystem: "notify",
		Name:      "events_total",
		Help:      "Notification events by outcome",
	}, []string{"result"})
	if err := reg.Register(events); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				events = existing
			}
		}
	}
	return &dispatchMetrics{events: events}
}

func (m *dispatchMetrics) observe(result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(result).Inc()
}
