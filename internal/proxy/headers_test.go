package proxy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heymind/reproxy/internal/config"
	"github.com/heymind/reproxy/internal/router"
)

// compileTestRule compiles a single rule definition for policy tests.
func compileTestRule(t *testing.T, def config.RuleDefinition) *router.Rule {
	t.Helper()

	if def.Match == "" {
		def.Match = `^svc\.test/.*$`
	}
	if def.Target == "" {
		def.Target = "http://backend.local:8080/"
	}

	set, err := router.CompileRules(config.RuleList{def})
	require.NoError(t, err)
	return set.Rules()[0]
}

// newPolicyRequests builds an inbound request and an empty outbound
// request for applyHeaderPolicy tests.
func newPolicyRequests(t *testing.T) (out, in *http.Request) {
	t.Helper()

	in = httptest.NewRequest(http.MethodGet, "/users", nil)
	in.Host = "svc.test"

	out, err := http.NewRequest(http.MethodGet, "http://backend.local:8080/users", nil)
	require.NoError(t, err)
	return out, in
}

func TestApplyHeaderPolicy_Passthrough(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			"x-api-key": {Type: config.HeaderActionPassthrough},
		},
	})

	out, in := newPolicyRequests(t)
	in.Header.Add("X-Api-Key", "k1")
	in.Header.Add("X-Api-Key", "k2")

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, out.Header.Values("X-Api-Key"))
}

func TestApplyHeaderPolicy_UnnamedHeadersDropped(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			"x-api-key": {Type: config.HeaderActionPassthrough},
		},
	})

	out, in := newPolicyRequests(t)
	in.Header.Set("X-Api-Key", "k1")
	in.Header.Set("X-Secret", "hidden")
	in.Header.Set("Cookie", "sid=abc")

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	assert.Equal(t, "k1", out.Header.Get("X-Api-Key"))
	assert.Empty(t, out.Header.Values("X-Secret"))
	assert.Empty(t, out.Header.Values("Cookie"))
}

func TestApplyHeaderPolicy_DefaultPassthrough(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			config.DefaultHeaderKey: {Type: config.HeaderActionPassthrough},
			"cookie":                {Type: config.HeaderActionIgnore},
		},
	})

	out, in := newPolicyRequests(t)
	in.Header.Set("X-Anything", "v")
	in.Header.Set("Cookie", "sid=abc")

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	assert.Equal(t, "v", out.Header.Get("X-Anything"))
	assert.Empty(t, out.Header.Values("Cookie"))
}

func TestApplyHeaderPolicy_Replace(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			"authorization": {
				Type:    config.HeaderActionReplace,
				Match:   "^Bearer (.+)$",
				Replace: "Token $1",
			},
		},
	})

	out, in := newPolicyRequests(t)
	in.Header.Set("Authorization", "Bearer abc123")

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	assert.Equal(t, "Token abc123", out.Header.Get("Authorization"))
}

func TestApplyHeaderPolicy_ReplaceKeepsSurroundingText(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			"cookie": {
				Type:    config.HeaderActionReplace,
				Match:   `sid=(\w+)`,
				Replace: "sid=redacted",
			},
		},
	})

	out, in := newPolicyRequests(t)
	in.Header.Set("Cookie", "lang=en; sid=abc123; theme=dark")

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	assert.Equal(t, "lang=en; sid=redacted; theme=dark", out.Header.Get("Cookie"))
}

func TestApplyHeaderPolicy_ReplaceMismatchRejects(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			"authorization": {
				Type:    config.HeaderActionReplace,
				Match:   "^Bearer (.+)$",
				Replace: "Token $1",
			},
		},
	})

	out, in := newPolicyRequests(t)
	in.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	err := applyHeaderPolicy(out, in, rule)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHeaderRejected))

	var rejected *HeaderRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "api", rejected.Rule)
	assert.Equal(t, "authorization", rejected.Header)
}

func TestApplyHeaderPolicy_HostPassthrough(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			"host": {Type: config.HeaderActionPassthrough},
		},
	})

	out, in := newPolicyRequests(t)

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	assert.Equal(t, "svc.test", out.Host)
}

func TestApplyHeaderPolicy_HostIgnoredUsesTargetHost(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{Name: "api"})

	out, in := newPolicyRequests(t)

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	// An empty Host field makes the transport use the target URL host.
	assert.Empty(t, out.Host)
}

func TestApplyHeaderPolicy_HostReplace(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			"host": {
				Type:    config.HeaderActionReplace,
				Match:   `^(\w+)\.test$`,
				Replace: "$1.internal",
			},
		},
	})

	out, in := newPolicyRequests(t)

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	assert.Equal(t, "svc.internal", out.Host)
}

func TestApplyHeaderPolicy_HostReplaceMismatchRejects(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			"host": {
				Type:    config.HeaderActionReplace,
				Match:   `^api\.`,
				Replace: "backend.",
			},
		},
	})

	out, in := newPolicyRequests(t)

	err := applyHeaderPolicy(out, in, rule)

	require.Error(t, err)

	var rejected *HeaderRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "host", rejected.Header)
}

func TestApplyHeaderPolicy_HopHeadersStripped(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			config.DefaultHeaderKey: {Type: config.HeaderActionPassthrough},
		},
	})

	out, in := newPolicyRequests(t)
	in.Header.Set("Connection", "keep-alive")
	in.Header.Set("Keep-Alive", "timeout=5")
	in.Header.Set("Transfer-Encoding", "chunked")
	in.Header.Set("Upgrade", "websocket")
	in.Header.Set("X-Kept", "yes")

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	assert.Equal(t, "yes", out.Header.Get("X-Kept"))
	for _, name := range hopHeaders {
		assert.Empty(t, out.Header.Values(name), "hop header %s should be stripped", name)
	}
}

func TestApplyHeaderPolicy_SuppressesDefaultUserAgent(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{Name: "api"})

	out, in := newPolicyRequests(t)
	in.Header.Set("User-Agent", "curl/8.0")

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	// The empty entry keeps the transport from inserting its own
	// default user agent for a header the policy dropped.
	assert.Equal(t, []string{""}, out.Header["User-Agent"])
}

func TestApplyHeaderPolicy_UserAgentPassthrough(t *testing.T) {
	rule := compileTestRule(t, config.RuleDefinition{
		Name: "api",
		Headers: map[string]config.HeaderActionDefinition{
			"user-agent": {Type: config.HeaderActionPassthrough},
		},
	})

	out, in := newPolicyRequests(t)
	in.Header.Set("User-Agent", "curl/8.0")

	err := applyHeaderPolicy(out, in, rule)

	require.NoError(t, err)
	assert.Equal(t, "curl/8.0", out.Header.Get("User-Agent"))
}

func TestCopyResponseHeaders(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Type", "application/json")
	src.Add("Set-Cookie", "a=1")
	src.Add("Set-Cookie", "b=2")
	src.Set("Connection", "close")
	src.Set("Transfer-Encoding", "chunked")

	dst := http.Header{}
	copyResponseHeaders(dst, src)

	assert.Equal(t, "application/json", dst.Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, dst.Values("Set-Cookie"))
	assert.Empty(t, dst.Values("Connection"))
	assert.Empty(t, dst.Values("Transfer-Encoding"))
}
