package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HealthMetrics holds the Prometheus metrics for the probe endpoints.
type HealthMetrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

var (
	healthMetricsInstance *HealthMetrics
	healthMetricsOnce     sync.Once
)

// GetHealthMetrics returns the process-wide health metrics, creating
// them on first use.
func GetHealthMetrics() *HealthMetrics {
	healthMetricsOnce.Do(func() {
		healthMetricsInstance = newHealthMetrics()
	})
	return healthMetricsInstance
}

func newHealthMetrics() *HealthMetrics {
	return &HealthMetrics{
		checksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reproxy",
				Subsystem: "health",
				Name:      "checks_total",
				Help: "Probe endpoint " +
					"invocations by type",
			},
			[]string{"type"},
		),
		checkStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "reproxy",
				Subsystem: "health",
				Name:      "check_status",
				Help: "Latest result per check " +
					"(1=healthy, 0=unhealthy)",
			},
			[]string{"check"},
		),
	}
}

// MustRegister registers all health metric collectors with the given
// Prometheus registry. promauto registers with the default global
// registry, but the proxy serves /metrics from a custom registry;
// calling MustRegister bridges the two.
func (m *HealthMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.checksTotal,
		m.checkStatus,
	)
}

// Init pre-populates common label combinations with zero values so
// that metrics appear in /metrics output immediately after startup.
// This method is idempotent and safe to call multiple times.
func (m *HealthMetrics) Init() {
	for _, checkType := range []string{"liveness", "readiness", "health"} {
		m.checksTotal.WithLabelValues(checkType)
	}
	m.checkStatus.WithLabelValues("overall")
}

// RecordCheck increments the counter for one check invocation.
func (m *HealthMetrics) RecordCheck(checkType string) {
	m.checksTotal.WithLabelValues(checkType).Inc()
}

// SetCheckStatus sets the gauge for a named check.
func (m *HealthMetrics) SetCheckStatus(check string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.checkStatus.WithLabelValues(check).Set(value)
}
