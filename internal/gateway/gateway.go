package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/heymind/reproxy/internal/config"
	"github.com/heymind/reproxy/internal/observability"
	"github.com/heymind/reproxy/internal/proxy"
	"github.com/heymind/reproxy/internal/router"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race
// conditions.
var ginModeOnce sync.Once

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway is the main proxy server struct.
type Gateway struct {
	config   *config.Config
	logger   observability.Logger
	router   *router.Router
	handler  http.Handler
	engine   *gin.Engine
	listener *Listener

	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex

	shutdownTimeout time.Duration
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithShutdownTimeout sets the shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownTimeout = timeout
	}
}

// WithHandler sets the request handler, typically the forwarder
// wrapped in middleware. Without it the gateway builds a bare
// forwarder over its router.
func WithHandler(handler http.Handler) Option {
	return func(g *Gateway) {
		g.handler = handler
	}
}

// New creates a new Gateway over the given router. The router is
// shared with the forwarding handler; reloads swap its snapshot.
func New(cfg *config.Config, rt *router.Router, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if rt == nil {
		return nil, fmt.Errorf("router is required")
	}

	g := &Gateway{
		config:          cfg,
		logger:          observability.NopLogger(),
		router:          rt,
		shutdownTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.handler == nil {
		g.handler = proxy.NewForwarder(rt, cfg.Upstream,
			proxy.WithForwarderLogger(g.logger),
		)
	}

	g.state.Store(int32(StateStopped))

	return g, nil
}

// Start compiles the configured rules, installs them, and starts the
// listener.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("gateway is not in stopped state")
	}

	g.logger.Info("starting gateway",
		observability.String("address", g.config.Listen.Address()),
	)

	set, err := router.CompileRules(g.config.Rules)
	if err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to compile rules: %w", err)
	}
	g.router.Swap(set)

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	g.engine = gin.New()
	// Every request goes through the catch-all: routing is done by
	// the rule set, not by the engine's route tree. WriteHeaderNow
	// marks the response written so gin never substitutes its own
	// 404 page for a bodyless response.
	g.engine.NoRoute(func(c *gin.Context) {
		g.handler.ServeHTTP(c.Writer, c.Request)
		c.Writer.WriteHeaderNow()
	})

	g.listener = NewListener(g.config.Listen.Address(), g.engine,
		WithListenerLogger(g.logger),
	)

	if err := g.listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener: %w", err)
	}

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.String("address", g.listener.Addr()),
		observability.Int("rules", set.Len()),
	)

	return nil
}

// Stop stops the gateway gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("gateway is not running")
	}

	g.logger.Info("stopping gateway")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.shutdownTimeout)
		defer cancel()
	}

	if err := g.listener.Stop(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to stop listener: %w", err)
	}

	g.state.Store(int32(StateStopped))

	g.logger.Info("gateway stopped")

	return nil
}

// Reload compiles the rules of the new configuration and swaps them
// in atomically. On a compile failure the active rule set is left
// untouched and the error is returned.
func (g *Gateway) Reload(cfg *config.Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	set, err := router.CompileRules(cfg.Rules)
	if err != nil {
		return fmt.Errorf("failed to compile rules: %w", err)
	}

	if cfg.Listen.Address() != g.config.Listen.Address() {
		g.logger.Warn("listen address changed in configuration; change takes effect on restart",
			observability.String("active", g.config.Listen.Address()),
			observability.String("configured", cfg.Listen.Address()),
		)
	}

	g.router.Swap(set)
	g.config = cfg

	g.logger.Info("rules reloaded",
		observability.Int("rules", set.Len()),
	)

	return nil
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// Addr returns the address the listener is bound to, or the empty
// string before Start.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr()
}

// Config returns the active configuration.
func (g *Gateway) Config() *config.Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// Router returns the router holding the active rule set.
func (g *Gateway) Router() *router.Router {
	return g.router
}
