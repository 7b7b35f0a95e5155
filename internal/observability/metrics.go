package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heymind/reproxy/internal/util"
)

// Label values used before or without a rule match, keeping the rule
// label's cardinality bounded.
const (
	unmatchedRule = "unmatched"
	inFlightRule  = "in_flight"
)

// Metrics holds all Prometheus metrics for the proxy.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestSize     *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	activeRequests  *prometheus.GaugeVec
	circuitBreaker  *prometheus.GaugeVec
	rulesLoaded     prometheus.Gauge
	configReloads   *prometheus.CounterVec
	buildInfo       *prometheus.GaugeVec
	startTime       prometheus.Gauge
	registry        *prometheus.Registry
}

// NewMetrics creates the metric set under the given namespace, backed
// by its own registry so tests and multiple instances never collide.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "reproxy"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "rule", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		}, []string{"method", "rule", "status"}),
		requestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "rule"}),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"method", "rule", "status"}),
		activeRequests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of in-flight HTTP requests",
		}, []string{"method", "rule"}),
		circuitBreaker: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Number of proxy rules in the active rule set",
		}),
		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reload attempts by result",
		}, []string{"result"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the proxy",
		}, []string{"version", "commit", "build_time"}),
		startTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Process start time in unix seconds",
		}),
	}

	m.registerCollectors()
	m.startTime.SetToCurrentTime()

	return m
}

func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.requestSize,
		m.responseSize,
		m.activeRequests,
		m.circuitBreaker,
		m.rulesLoaded,
		m.configReloads,
		m.buildInfo,
		m.startTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// InitVecMetrics pre-populates common label combinations with zero
// values. Prometheus *Vec types only emit metric lines once
// WithLabelValues has been called, so without this the families would
// be missing from /metrics until first use. Idempotent.
func (m *Metrics) InitVecMetrics() {
	m.circuitBreaker.WithLabelValues("proxy")
	m.configReloads.WithLabelValues("success")
	m.configReloads.WithLabelValues("failure")
}

// RecordRequest records one completed request. rule must be the
// matched rule name, never the raw URL, to keep cardinality bounded.
func (m *Metrics) RecordRequest(
	method, rule string,
	status int,
	duration time.Duration,
	reqSize, respSize int64,
) {
	statusStr := strconv.Itoa(status)

	m.requestsTotal.WithLabelValues(method, rule, statusStr).Inc()
	m.requestDuration.WithLabelValues(method, rule, statusStr).Observe(duration.Seconds())
	m.requestSize.WithLabelValues(method, rule).Observe(float64(reqSize))
	m.responseSize.WithLabelValues(method, rule, statusStr).Observe(float64(respSize))
}

// IncrementActiveRequests increments the active requests gauge.
func (m *Metrics) IncrementActiveRequests(method, rule string) {
	m.activeRequests.WithLabelValues(method, rule).Inc()
}

// DecrementActiveRequests decrements the active requests gauge.
func (m *Metrics) DecrementActiveRequests(method, rule string) {
	m.activeRequests.WithLabelValues(method, rule).Dec()
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.circuitBreaker.WithLabelValues(name).Set(float64(state))
}

// SetRulesLoaded sets the number of rules in the active rule set.
func (m *Metrics) SetRulesLoaded(count int) {
	m.rulesLoaded.Set(float64(count))
}

// RecordConfigReload records a configuration reload attempt.
func (m *Metrics) RecordConfigReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware returns a middleware that times every request and
// records it on completion. It installs a rule recorder in the request
// context; the forwarder fills in the matched rule name, which then
// serves as the metric label instead of the raw URL.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			method := r.Method

			ctx := util.ContextWithStartTime(r.Context(), start)
			r = r.WithContext(util.ContextWithRuleRecorder(ctx))

			rw := &metricsResponseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			// The rule is unknown until the forwarder has matched,
			// so in-flight tracking uses a placeholder label.
			metrics.activeRequests.WithLabelValues(method, inFlightRule).Inc()
			next.ServeHTTP(rw, r)
			metrics.activeRequests.WithLabelValues(method, inFlightRule).Dec()

			metrics.RecordRequest(method, ruleFromRequest(r), rw.status,
				time.Since(start), r.ContentLength, int64(rw.size))
		})
	}
}

// ruleFromRequest returns the rule name the forwarder recorded for
// this request, or unmatchedRule.
func ruleFromRequest(r *http.Request) string {
	rule := util.RuleFromContext(r.Context())
	if rule == "" {
		return unmatchedRule
	}
	return rule
}

// metricsResponseWriter captures the status code and body size.
type metricsResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush keeps streaming responses working through the wrapper.
func (rw *metricsResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
