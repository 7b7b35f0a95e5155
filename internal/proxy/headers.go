package proxy

import (
	"net/http"
	"strings"

	"github.com/heymind/reproxy/internal/router"
)

// hopHeaders are connection-scoped and never forwarded, regardless of
// the rule's header policy.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// applyHeaderPolicy fills the upstream request headers from the
// inbound request according to the rule's per-header actions. The
// upstream request starts with no headers, so a rule forwards exactly
// what its policy names.
func applyHeaderPolicy(out, in *http.Request, rule *router.Rule) error {
	for name, values := range in.Header {
		action := rule.ActionFor(name)
		switch action.Kind {
		case router.ActionPassthrough:
			for _, value := range values {
				out.Header.Add(name, value)
			}
		case router.ActionReplace:
			for _, value := range values {
				rewritten, ok := action.Rewrite(value)
				if !ok {
					return NewHeaderRejectedError(rule.Name, strings.ToLower(name))
				}
				out.Header.Add(name, rewritten)
			}
		case router.ActionIgnore:
		}
	}

	if err := applyHostPolicy(out, in, rule); err != nil {
		return err
	}

	for _, name := range hopHeaders {
		out.Header.Del(name)
	}

	// Without an entry the transport would insert Go's default user
	// agent; an empty one suppresses it.
	if _, ok := out.Header["User-Agent"]; !ok {
		out.Header.Set("User-Agent", "")
	}

	return nil
}

// applyHostPolicy applies the rule's action for the Host header.
// net/http promotes Host out of Request.Header into Request.Host, so
// the policy is applied to that field. Ignoring the header leaves the
// host of the target URL in place.
func applyHostPolicy(out, in *http.Request, rule *router.Rule) error {
	action := rule.ActionFor("host")
	switch action.Kind {
	case router.ActionPassthrough:
		out.Host = in.Host
	case router.ActionReplace:
		rewritten, ok := action.Rewrite(in.Host)
		if !ok {
			return NewHeaderRejectedError(rule.Name, "host")
		}
		out.Host = rewritten
	case router.ActionIgnore:
	}
	return nil
}

// copyResponseHeaders copies upstream response headers to the client
// response, dropping connection-scoped ones.
func copyResponseHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
	for _, name := range hopHeaders {
		dst.Del(name)
	}
}
