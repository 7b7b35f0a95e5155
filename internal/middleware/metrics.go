package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MiddlewareMetrics holds the Prometheus metrics shared by the
// middleware chain.
type MiddlewareMetrics struct {
	circuitBreakerRequests    *prometheus.CounterVec
	circuitBreakerTransitions *prometheus.CounterVec

	panicsRecovered prometheus.Counter
}

var (
	middlewareMetrics     *MiddlewareMetrics
	middlewareMetricsOnce sync.Once
)

// GetMiddlewareMetrics returns the process-wide middleware metrics,
// creating them on first use.
func GetMiddlewareMetrics() *MiddlewareMetrics {
	middlewareMetricsOnce.Do(func() {
		middlewareMetrics = newMiddlewareMetrics()
	})
	return middlewareMetrics
}

func newMiddlewareMetrics() *MiddlewareMetrics {
	return &MiddlewareMetrics{
		circuitBreakerRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reproxy",
				Subsystem: "middleware",
				Name: "circuit_breaker_" +
					"requests_total",
				Help: "Requests seen by the " +
					"circuit breaker, by state",
			},
			[]string{"name", "state"},
		),
		circuitBreakerTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reproxy",
				Subsystem: "middleware",
				Name: "circuit_breaker_" +
					"transitions_total",
				Help: "Circuit breaker state " +
					"transitions",
			},
			[]string{"name", "from", "to"},
		),
		panicsRecovered: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reproxy",
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help: "Handler panics recovered " +
					"by the recovery middleware",
			},
		),
	}
}

// MustRegister registers all middleware metric collectors with the
// given Prometheus registry. promauto registers with the default
// global registry, but the proxy serves /metrics from a custom
// registry; calling MustRegister bridges the two.
func (m *MiddlewareMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.circuitBreakerRequests,
		m.circuitBreakerTransitions,
		m.panicsRecovered,
	)
}

// Init pre-populates common label combinations with zero values so
// that Vec metrics appear in /metrics output immediately after
// startup. This method is idempotent and safe to call multiple times.
func (m *MiddlewareMetrics) Init() {
	m.circuitBreakerRequests.WithLabelValues("proxy", "closed")
}
