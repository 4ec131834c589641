package multitenant

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a ModelCache.
type Option func(*ModelCache)

// WithMetrics registers cache metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *ModelCache) {
		c.metrics = newCacheMetrics(reg)
	}
}

type cacheMetrics struct {
	lookups *prometheus.CounterVec
	builds  *prometheus.CounterVec
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	if reg == nil {
		return nil
	}
	m := &cacheMetrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratekl",
			Subsystem: "model_cache",
			Name:      "lookups_total",
			Help:      "Handle lookups by entity type and outcome",
		}, []string{"entity", "result"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratekl",
			Subsystem: "model_cache",
			Name:      "builds_total",
			Help:      "Handle builds by entity type and outcome",
		}, []string{"entity", "result"}),
	}
	m.lookups = register(reg, m.lookups)
	m.builds = register(reg, m.builds)
	return m
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *cacheMetrics) hit(entity string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(entity, "hit").Inc()
}

func (m *cacheMetrics) miss(entity string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(entity, "miss").Inc()
}

func (m *cacheMetrics) build(entity string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.builds.WithLabelValues(entity, result).Inc()
}
