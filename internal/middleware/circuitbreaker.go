package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/heymind/reproxy/internal/config"
	"github.com/heymind/reproxy/internal/observability"
	"github.com/heymind/reproxy/internal/util"
)

// cbTracer emits spans for breaker state transitions.
var cbTracer = otel.Tracer("reproxy/circuitbreaker")

// CircuitBreakerStateFunc receives breaker transitions as they happen.
// The state value is the integer form of gobreaker.State (0=closed,
// 1=half-open, 2=open).
type CircuitBreakerStateFunc func(name string, state int)

// CircuitBreaker shields the upstream behind a gobreaker instance.
type CircuitBreaker struct {
	cb            *gobreaker.CircuitBreaker
	logger        observability.Logger
	stateCallback CircuitBreakerStateFunc
}

// CircuitBreakerOption adjusts a CircuitBreaker at construction time.
type CircuitBreakerOption func(*CircuitBreaker)

// WithCircuitBreakerLogger routes breaker log output to logger.
func WithCircuitBreakerLogger(logger observability.Logger) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// WithCircuitBreakerStateCallback registers fn to run on every state
// transition.
func WithCircuitBreakerStateCallback(fn CircuitBreakerStateFunc) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.stateCallback = fn
	}
}

// NewCircuitBreaker creates a new circuit breaker. The breaker trips
// once at least threshold requests have been observed in the current
// interval and half of them failed.
func NewCircuitBreaker(
	name string,
	threshold int,
	timeout time.Duration,
	opts ...CircuitBreakerOption,
) *CircuitBreaker {
	cb := &CircuitBreaker{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(cb)
	}

	thresholdU32 := safeIntToUint32(threshold)

	cb.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: thresholdU32,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= thresholdU32 && failureRatio >= 0.5
		},
		OnStateChange: cb.onStateChange,
	})
	return cb
}

// onStateChange logs and records every breaker transition, then hands
// it to the configured callback.
func (cb *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	cb.logger.Info("circuit breaker changed state",
		observability.String("name", name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	GetMiddlewareMetrics().circuitBreakerTransitions.WithLabelValues(
		name, from.String(), to.String(),
	).Inc()

	recordTransitionSpan(name, from, to)

	if cb.stateCallback != nil {
		cb.stateCallback(name, int(to))
	}
}

// recordTransitionSpan emits an OTEL span event for the transition so
// it shows up in distributed traces that trigger the change.
func recordTransitionSpan(name string, from, to gobreaker.State) {
	_, span := cbTracer.Start(context.Background(),
		"circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", name),
		attribute.String("circuitbreaker.from", from.String()),
		attribute.String("circuitbreaker.to", to.String()),
	))
	span.End()
}

// safeIntToUint32 clamps n into the uint32 range.
func safeIntToUint32(n int) uint32 {
	switch {
	case n < 0:
		return 0
	case n > int(^uint32(0)):
		return ^uint32(0)
	default:
		return uint32(n)
	}
}

// Execute runs fn under the breaker's admission policy.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return cb.cb.Execute(fn)
}

// State reports the current breaker state.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.cb.State()
}

// Name returns the breaker name used in logs and metric labels.
func (cb *CircuitBreaker) Name() string {
	return cb.cb.Name()
}

// CircuitBreakerMiddleware returns a middleware that runs requests
// through the circuit breaker. Responses with a 5xx status count as
// failures; while the breaker is open, requests are answered with an
// empty 503 without reaching the forwarder.
func CircuitBreakerMiddleware(cb *CircuitBreaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mm := GetMiddlewareMetrics()
			cbState := cb.State().String()

			rw := util.NewStatusCapturingResponseWriter(w)

			_, err := cb.Execute(func() (interface{}, error) {
				mm.circuitBreakerRequests.WithLabelValues(cb.Name(), cbState).Inc()

				next.ServeHTTP(rw, r)

				if rw.StatusCode >= 500 {
					return nil, util.NewServerError(rw.StatusCode)
				}
				return nil, nil
			})

			if err == nil {
				return
			}

			// A ServerError here means the handler already produced
			// the response; the breaker only counted the failure.
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				mm.circuitBreakerRequests.WithLabelValues(cb.Name(), "open").Inc()

				cb.logger.Warn("open circuit breaker rejected request",
					observability.String("path", r.URL.Path),
					observability.Error(util.NewCircuitOpenError(cb.Name(), cb.State().String())),
				)

				if !rw.HeaderWritten {
					w.WriteHeader(http.StatusServiceUnavailable)
				}
			}
		})
	}
}

// CircuitBreakerFromConfig builds the middleware described by cfg. A
// disabled breaker yields an identity middleware. Additional
// CircuitBreakerOption values are forwarded to NewCircuitBreaker.
func CircuitBreakerFromConfig(
	cfg config.CircuitBreakerConfig,
	logger observability.Logger,
	opts ...CircuitBreakerOption,
) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	allOpts := append(
		[]CircuitBreakerOption{WithCircuitBreakerLogger(logger)},
		opts...,
	)

	cb := NewCircuitBreaker(
		"proxy",
		cfg.Threshold,
		cfg.Timeout.Duration(),
		allOpts...,
	)

	return CircuitBreakerMiddleware(cb)
}
