package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/heymind/reproxy/internal/observability"
)

// Listener represents an HTTP listener.
type Listener struct {
	addr    string
	server  *http.Server
	handler http.Handler
	logger  observability.Logger
	running atomic.Bool

	// actualAddr is the address the socket is bound to, which differs
	// from addr when port 0 is requested.
	actualAddr string
}

// ListenerOption is a functional option for configuring a listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger for the listener.
func WithListenerLogger(logger observability.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// NewListener creates a new listener on the given address.
func NewListener(addr string, handler http.Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		addr:    addr,
		handler: handler,
		logger:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Addr returns the address the listener is bound to. Before Start it
// returns the configured address.
func (l *Listener) Addr() string {
	if l.actualAddr != "" {
		return l.actualAddr
	}
	return l.addr
}

// newServer builds the http.Server. There is no ReadTimeout or
// WriteTimeout: responses are streamed and may legitimately outlive
// any fixed deadline. The upstream timeout bounds each exchange when
// configured.
func (l *Listener) newServer() *http.Server {
	return &http.Server{
		Addr:              l.addr,
		Handler:           l.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
}

// Start binds the socket and starts serving in the background.
func (l *Listener) Start(ctx context.Context) error {
	if l.running.Load() {
		return fmt.Errorf("listener on %s is already running", l.addr)
	}

	l.server = l.newServer()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}

	l.actualAddr = ln.Addr().String()
	l.running.Store(true)

	l.logger.Info("listener started",
		observability.String("address", l.actualAddr),
	)

	go l.serve(ln)

	return nil
}

// serve blocks until the server stops. ErrServerClosed is the normal
// shutdown result, anything else is a real serving failure.
func (l *Listener) serve(ln net.Listener) {
	err := l.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.logger.Error("listener error",
			observability.String("address", l.actualAddr),
			observability.Error(err),
		)
	}
	l.running.Store(false)
}

// Stop drains the listener gracefully until ctx expires; after that
// remaining connections are dropped hard.
func (l *Listener) Stop(ctx context.Context) error {
	if !l.running.Load() {
		return nil
	}

	l.logger.Info("stopping listener",
		observability.String("address", l.actualAddr),
	)

	if err := l.server.Shutdown(ctx); err != nil {
		if closeErr := l.server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close listener: %w", closeErr)
		}
		return fmt.Errorf("failed to shutdown listener gracefully: %w", err)
	}

	l.running.Store(false)

	l.logger.Info("listener stopped",
		observability.String("address", l.actualAddr),
	)

	return nil
}

// Running returns true if the listener is running.
func (l *Listener) Running() bool {
	return l.running.Load()
}
