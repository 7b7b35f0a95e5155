// Package observability bundles the logging, metrics, and tracing
// support for the proxy.
//
// Logging wraps zap behind a small Logger interface so that packages
// depend on an interface rather than a concrete logger:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request forwarded",
//	    observability.String("method", "GET"),
//	    observability.Int("status", 200),
//	)
//
// Metrics are Prometheus collectors on a private registry covering
// requests, loaded rules, and configuration reloads:
//
//	metrics := observability.NewMetrics("reproxy")
//	handler := metrics.Handler()
//
// Tracing is OpenTelemetry with an OTLP/gRPC exporter. It stays
// disabled unless TracerConfig turns it on, in which case spans are
// exported for each proxied request:
//
//	tracer, err := observability.NewTracer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
