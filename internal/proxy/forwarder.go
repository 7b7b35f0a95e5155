package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/heymind/reproxy/internal/config"
	"github.com/heymind/reproxy/internal/observability"
	"github.com/heymind/reproxy/internal/router"
	"github.com/heymind/reproxy/internal/util"
)

// defaultBufferSize is the response streaming buffer size. Responses
// of any length relay through this fixed window.
const defaultBufferSize = 32 * 1024

// Forwarder routes, rewrites, and forwards requests according to the
// active rule set. It implements http.Handler.
type Forwarder struct {
	router          *router.Router
	logger          observability.Logger
	transport       http.RoundTripper
	follow          *http.Client
	noFollow        *http.Client
	upstreamTimeout time.Duration
	bufferSize      int
}

// ForwarderOption is a functional option for configuring the forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderLogger sets the logger for the forwarder.
func WithForwarderLogger(logger observability.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithTransport sets the transport shared by both upstream clients.
func WithTransport(transport http.RoundTripper) ForwarderOption {
	return func(f *Forwarder) {
		f.transport = transport
	}
}

// WithUpstreamTimeout bounds each upstream exchange, including the
// body relay. Zero disables the deadline.
func WithUpstreamTimeout(d time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		f.upstreamTimeout = d
	}
}

// WithBufferSize sets the response streaming buffer size in bytes.
func WithBufferSize(n int) ForwarderOption {
	return func(f *Forwarder) {
		if n > 0 {
			f.bufferSize = n
		}
	}
}

// NewForwarder creates a forwarder over the router, with the upstream
// connection pool configured from cfg.
func NewForwarder(r *router.Router, cfg config.UpstreamConfig, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		router:          r,
		logger:          observability.NopLogger(),
		transport:       newTransport(cfg),
		upstreamTimeout: cfg.Timeout.Duration(),
		bufferSize:      defaultBufferSize,
	}

	for _, opt := range opts {
		opt(f)
	}

	// Both clients share one transport so the connection pool is
	// common; they differ only in redirect policy. The follow client
	// keeps the default policy, capped at 10 redirects.
	f.follow = &http.Client{Transport: f.transport}
	f.noFollow = &http.Client{
		Transport: f.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return f
}

// newTransport builds the shared upstream transport from the pool
// configuration.
func newTransport(cfg config.UpstreamConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout.Duration(),
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// ServeHTTP runs the forwarding pipeline: compose the request URL,
// route it, rewrite the target, apply the header policy, dispatch
// upstream, and stream the response back. Each terminal outcome emits
// exactly one log record.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := f.logger.WithContext(r.Context())
	composed := composeURL(r)

	result, ok := f.router.Match(composed)
	if !ok {
		logger.Info("no matching rule",
			observability.String("method", r.Method),
			observability.String("requested", composed),
			observability.Int("status", http.StatusNotFound),
		)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	rule := result.Rule
	util.RecordMatchedRule(r.Context(), rule.Name)

	ctx := r.Context()
	if f.upstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.upstreamTimeout)
		defer cancel()
	}

	outReq, err := f.buildUpstreamRequest(ctx, r, result)
	if err != nil {
		var rejected *HeaderRejectedError
		if errors.As(err, &rejected) {
			logger.Error("header rejected",
				observability.String("method", r.Method),
				observability.String("requested", composed),
				observability.String("matched", rule.Name),
				observability.String("unmatched_header", rejected.Header),
				observability.Int("status", http.StatusBadRequest),
			)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.logUpstreamFailure(logger, r.Method, composed, rule.Name, result.Target, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp, err := f.clientFor(rule).Do(outReq)
	if err != nil {
		f.logUpstreamFailure(logger, r.Method, composed, rule.Name, result.Target,
			NewUpstreamError(rule.Name, result.Target, err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	// The terminal record precedes the body relay: the outcome is
	// settled once upstream status and headers arrived.
	logger.Info("request forwarded",
		observability.String("method", r.Method),
		observability.String("requested", composed),
		observability.String("matched", rule.Name),
		observability.String("forwarded", result.Target),
		observability.Int("status", resp.StatusCode),
	)

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	f.streamResponse(w, resp.Body, logger)
}

// composeURL joins the Host header and the original request-target
// into the URL that rules match against.
func composeURL(r *http.Request) string {
	return r.Host + r.RequestURI
}

// buildUpstreamRequest constructs the outbound request for the
// rewritten target and applies the rule's header policy to it.
func (f *Forwarder) buildUpstreamRequest(ctx context.Context, r *http.Request, result *router.MatchResult) (*http.Request, error) {
	outReq, err := http.NewRequestWithContext(ctx, r.Method, result.Target, r.Body)
	if err != nil {
		return nil, NewUpstreamError(result.Rule.Name, result.Target, err)
	}

	outReq.ContentLength = r.ContentLength
	if r.ContentLength == 0 {
		// A zero length with a non-nil body would be sent chunked;
		// bodyless requests forward with no body instead.
		outReq.Body = nil
	}

	if err := applyHeaderPolicy(outReq, r, result.Rule); err != nil {
		return nil, err
	}

	observability.InjectTraceContext(ctx, outReq)

	return outReq, nil
}

// clientFor selects the upstream client matching the rule's redirect
// policy.
func (f *Forwarder) clientFor(rule *router.Rule) *http.Client {
	if rule.FollowRedirect {
		return f.follow
	}
	return f.noFollow
}

// logUpstreamFailure emits the terminal record for a failed upstream
// exchange.
func (f *Forwarder) logUpstreamFailure(logger observability.Logger, method, composed, rule, target string, err error) {
	logger.Error("upstream request failed",
		observability.String("method", method),
		observability.String("requested", composed),
		observability.String("matched", rule),
		observability.String("forwarded", target),
		observability.Error(err),
		observability.Int("status", http.StatusInternalServerError),
	)
}

// streamResponse relays the upstream body through a fixed-size
// buffer, flushing each chunk so long responses reach the client
// incrementally. The terminal record is already emitted; a failure
// here only gets a diagnostic entry.
func (f *Forwarder) streamResponse(w http.ResponseWriter, body io.Reader, logger observability.Logger) {
	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, f.bufferSize)

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				logger.Warn("response relay aborted by client",
					observability.Error(werr),
				)
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			return
		}
		if rerr != nil {
			logger.Warn("upstream body read failed mid-stream",
				observability.Error(rerr),
			)
			return
		}
	}
}
