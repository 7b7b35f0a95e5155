//go:build functional

// Package functional contains end-to-end tests that run the full
// proxy stack over real sockets: rule routing, header policies,
// redirect handling, and configuration reload.
package functional

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heymind/reproxy/internal/config"
	"github.com/heymind/reproxy/internal/gateway"
	"github.com/heymind/reproxy/internal/middleware"
	"github.com/heymind/reproxy/internal/observability"
	"github.com/heymind/reproxy/internal/proxy"
	"github.com/heymind/reproxy/internal/router"
)

// recordedRequest captures one request as the upstream saw it.
type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// recordingUpstream is a mock upstream server that records every
// request it receives.
type recordingUpstream struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest

	status int
	body   string
}

func newRecordingUpstream() *recordingUpstream {
	u := &recordingUpstream{
		status: http.StatusOK,
		body:   "upstream response",
	}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.requests = append(u.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		u.mu.Unlock()

		w.WriteHeader(u.status)
		fmt.Fprint(w, u.body)
	}))
	return u
}

func (u *recordingUpstream) Close() {
	u.server.Close()
}

func (u *recordingUpstream) URL() string {
	return u.server.URL
}

func (u *recordingUpstream) Requests() []recordedRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]recordedRequest, len(u.requests))
	copy(out, u.requests)
	return out
}

// startProxy builds the middleware chain and gateway from cfg the way
// the entry point does, and starts it on a loopback port.
func startProxy(t *testing.T, cfg *config.Config) *gateway.Gateway {
	t.Helper()

	logger := observability.NopLogger()

	rt := router.New()
	forwarder := proxy.NewForwarder(rt, cfg.Upstream,
		proxy.WithForwarderLogger(logger),
	)

	var h http.Handler = forwarder
	h = middleware.CircuitBreakerFromConfig(cfg.CircuitBreaker, logger)(h)
	h = middleware.RequestID()(h)
	h = middleware.Recovery(logger)(h)

	g, err := gateway.New(cfg, rt,
		gateway.WithLogger(logger),
		gateway.WithHandler(h),
	)
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { _ = g.Stop(context.Background()) })

	return g
}

func loopbackConfig(rules ...config.RuleDefinition) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Listen = config.ListenConfig{Host: "127.0.0.1", Port: 0}
	cfg.Rules = rules
	return cfg
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

func TestFunctional_RuleRouting(t *testing.T) {
	t.Parallel()

	upstream := newRecordingUpstream()
	defer upstream.Close()

	g := startProxy(t, loopbackConfig(
		config.RuleDefinition{
			Name:   "api",
			Match:  `^[^/]+/api/(.*)$`,
			Target: upstream.URL() + "/backend/$1",
		},
	))

	resp, body := get(t, "http://"+g.Addr()+"/api/users?id=7")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upstream response", body)

	requests := upstream.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodGet, requests[0].Method)
	assert.Equal(t, "/backend/users?id=7", requests[0].Path)

	// No rule matches: 404, empty body, upstream untouched.
	resp, body = get(t, "http://"+g.Addr()+"/other")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, body)
	assert.Len(t, upstream.Requests(), 1)
}

func TestFunctional_FirstMatchWins(t *testing.T) {
	t.Parallel()

	first := newRecordingUpstream()
	defer first.Close()
	second := newRecordingUpstream()
	defer second.Close()

	g := startProxy(t, loopbackConfig(
		config.RuleDefinition{
			Name:   "specific",
			Match:  `^[^/]+/api/admin/.*$`,
			Target: first.URL() + "/admin",
		},
		config.RuleDefinition{
			Name:   "general",
			Match:  `^[^/]+/api/.*$`,
			Target: second.URL() + "/general",
		},
	))

	resp, _ := get(t, "http://"+g.Addr()+"/api/admin/settings")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, first.Requests(), 1)
	assert.Empty(t, second.Requests())

	resp, _ = get(t, "http://"+g.Addr()+"/api/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, first.Requests(), 1)
	assert.Len(t, second.Requests(), 1)
}

func TestFunctional_HeaderPolicies(t *testing.T) {
	t.Parallel()

	upstream := newRecordingUpstream()
	defer upstream.Close()

	g := startProxy(t, loopbackConfig(
		config.RuleDefinition{
			Name:   "api",
			Match:  `^[^/]+/api/.*$`,
			Target: upstream.URL() + "/",
			Headers: map[string]config.HeaderActionDefinition{
				"x-api-key": {Type: config.HeaderActionPassthrough},
				"authorization": {
					Type:    config.HeaderActionReplace,
					Match:   "Bearer (.+)",
					Replace: "Token $1",
				},
			},
		},
	))

	req, err := http.NewRequest(http.MethodGet, "http://"+g.Addr()+"/api/users", nil)
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "k-123")
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("X-Internal-Secret", "do-not-forward")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	requests := upstream.Requests()
	require.Len(t, requests, 1)
	seen := requests[0].Header
	assert.Equal(t, "k-123", seen.Get("X-Api-Key"))
	assert.Equal(t, "Token abc", seen.Get("Authorization"))
	assert.Empty(t, seen.Get("X-Internal-Secret"))

	// A replace-policy header that does not match rejects the request
	// before any upstream contact.
	req, err = http.NewRequest(http.MethodGet, "http://"+g.Addr()+"/api/users", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic dXNlcg==")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, body)
	assert.Len(t, upstream.Requests(), 1)
}

func TestFunctional_RedirectPolicies(t *testing.T) {
	t.Parallel()

	final := newRecordingUpstream()
	defer final.Close()

	hopping := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL()+"/landed", http.StatusFound)
	}))
	defer hopping.Close()

	g := startProxy(t, loopbackConfig(
		config.RuleDefinition{
			Name:           "follow",
			Match:          `^[^/]+/follow$`,
			Target:         hopping.URL + "/",
			FollowRedirect: true,
		},
		config.RuleDefinition{
			Name:   "surface",
			Match:  `^[^/]+/surface$`,
			Target: hopping.URL + "/",
		},
	))

	// followRedirect: the proxy chases the redirect and relays the
	// final response.
	resp, body := get(t, "http://"+g.Addr()+"/follow")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upstream response", body)
	assert.Len(t, final.Requests(), 1)

	// Without followRedirect the first redirect is relayed as-is.
	resp, _ = get(t, "http://"+g.Addr()+"/surface")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, final.URL()+"/landed", resp.Header.Get("Location"))
	assert.Len(t, final.Requests(), 1)
}

const reloadConfigTemplate = `
listen:
  host: 127.0.0.1
  port: 3333
rules:
  api:
    match: "^[^/]+/api/.*$"
    target: "%s/"
`

func TestFunctional_ConfigReload(t *testing.T) {
	t.Parallel()

	oldUpstream := newRecordingUpstream()
	defer oldUpstream.Close()
	newUpstream := newRecordingUpstream()
	defer newUpstream.Close()

	path := filepath.Join(t.TempDir(), "reproxy.yaml")
	write := func(target string) {
		require.NoError(t, os.WriteFile(path,
			[]byte(fmt.Sprintf(reloadConfigTemplate, target)), 0o600))
	}
	write(oldUpstream.URL())

	cfg, err := config.Load(path)
	require.NoError(t, err)

	// The file's fixed port only has to satisfy validation; the test
	// binds an ephemeral one.
	cfg.Listen.Port = 0

	g := startProxy(t, cfg)

	watcher, err := config.NewWatcher(path, func(newCfg *config.Config) {
		_ = g.Reload(newCfg)
	}, config.WithLogger(observability.NopLogger()))
	require.NoError(t, err)

	resp, _ := get(t, "http://"+g.Addr()+"/api/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, oldUpstream.Requests(), 1)

	// Point the rule at the new upstream and reload.
	write(newUpstream.URL())
	require.NoError(t, watcher.ForceReload())

	resp, _ = get(t, "http://"+g.Addr()+"/api/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, oldUpstream.Requests(), 1)
	assert.Len(t, newUpstream.Requests(), 1)

	// A broken configuration fails the reload and keeps the active
	// rules serving.
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(
		fmt.Sprintf(reloadConfigTemplate, newUpstream.URL()),
		`"^[^/]+/api/.*$"`, `"("`, 1)), 0o600))
	assert.Error(t, watcher.ForceReload())

	resp, _ = get(t, "http://"+g.Addr()+"/api/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, newUpstream.Requests(), 2)
}

func TestFunctional_UpstreamDown(t *testing.T) {
	t.Parallel()

	upstream := newRecordingUpstream()
	upstream.Close() // nothing listens anymore

	g := startProxy(t, loopbackConfig(
		config.RuleDefinition{
			Name:   "dead",
			Match:  `^[^/]+/.*$`,
			Target: upstream.URL() + "/",
		},
	))

	resp, body := get(t, "http://"+g.Addr()+"/anything")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, body)
}
