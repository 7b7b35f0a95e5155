package main

import (
	"context"
	"net/http"

	"github.com/heymind/reproxy/internal/config"
	"github.com/heymind/reproxy/internal/gateway"
	"github.com/heymind/reproxy/internal/health"
	"github.com/heymind/reproxy/internal/middleware"
	"github.com/heymind/reproxy/internal/observability"
	"github.com/heymind/reproxy/internal/proxy"
	"github.com/heymind/reproxy/internal/router"
)

// application holds all long-lived components.
type application struct {
	gateway       *gateway.Gateway
	admin         *gateway.Listener
	healthChecker *health.Checker
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	config        *config.Config
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	metrics := observability.NewMetrics("reproxy")
	metrics.InitVecMetrics()
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	registerSubsystemMetrics(metrics)

	tracer := initTracer(cfg, logger)

	rt := router.New()

	healthChecker := health.NewChecker(version)
	healthChecker.RegisterCheck("router", health.RouterCheck(rt))

	forwarder := proxy.NewForwarder(rt, cfg.Upstream,
		proxy.WithForwarderLogger(logger),
	)
	handler := buildMiddlewareChain(forwarder, cfg, logger, metrics, tracer)

	gw, err := gateway.New(cfg, rt,
		gateway.WithLogger(logger),
		gateway.WithHandler(handler),
	)
	if err != nil {
		logger.Fatal("failed to create gateway", observability.Error(err))
	}

	var admin *gateway.Listener
	if cfg.Admin.Enabled {
		admin = gateway.NewListener(cfg.Admin.Address(),
			adminMux(metrics, healthChecker),
			gateway.WithListenerLogger(logger),
		)
	}

	return &application{
		gateway:       gw,
		admin:         admin,
		healthChecker: healthChecker,
		metrics:       metrics,
		tracer:        tracer,
		config:        cfg,
	}
}

// initTracer initializes the tracer. Disabled tracing yields no-op
// spans, so the middleware chain stays uniform.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}
	return tracer
}

// registerSubsystemMetrics registers the subsystem metric singletons
// with the custom Prometheus registry. The subsystem packages use
// promauto, which registers with the default global registry; without
// the explicit registration their metrics would be recorded at runtime
// but invisible on the /metrics endpoint.
func registerSubsystemMetrics(metrics *observability.Metrics) {
	registry := metrics.Registry()

	mwMetrics := middleware.GetMiddlewareMetrics()
	mwMetrics.MustRegister(registry)
	mwMetrics.Init()

	healthMetrics := health.GetHealthMetrics()
	healthMetrics.MustRegister(registry)
	healthMetrics.Init()
}

// buildMiddlewareChain wraps the forwarder in the middleware stack.
// The last wrap is the outermost handler.
func buildMiddlewareChain(
	handler http.Handler,
	cfg *config.Config,
	logger observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) http.Handler {
	h := handler

	h = middleware.CircuitBreakerFromConfig(cfg.CircuitBreaker, logger)(h)
	h = observability.MetricsMiddleware(metrics)(h)
	h = observability.TracingMiddleware(tracer)(h)
	h = middleware.RequestID()(h)
	h = middleware.Recovery(logger)(h)

	return h
}

// adminMux serves the operational endpoints.
func adminMux(metrics *observability.Metrics, checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", checker.HealthHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", checker.LivenessHandler())
	return mux
}

// startConfigWatcher starts watching the configuration file. A watcher
// that cannot be created is not fatal; the proxy keeps running with
// the rules it started with.
func startConfigWatcher(
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		if reloadErr := app.gateway.Reload(newCfg); reloadErr != nil {
			logger.Error("failed to reload configuration", observability.Error(reloadErr))
			app.metrics.RecordConfigReload(false)
			return
		}
		app.metrics.RecordConfigReload(true)
		app.metrics.SetRulesLoaded(app.gateway.Router().Snapshot().Len())
	},
		config.WithLogger(logger),
		config.WithErrorCallback(func(error) {
			app.metrics.RecordConfigReload(false)
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	return watcher
}
