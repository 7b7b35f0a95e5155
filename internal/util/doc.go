// Package util provides shared utilities for the reverse proxy.
//
// This package contains helpers used across the proxy including
// context accessors, error types, HTTP response writer wrappers, and
// configuration validation primitives.
//
// # Context Helpers
//
// Context utilities for request-scoped data:
//
//	ctx = util.ContextWithRuleRecorder(ctx)
//	util.RecordMatchedRule(ctx, "api")
//	rule := util.RuleFromContext(ctx)
//
// # Error Types
//
// Structured error types for consistent error handling:
//
//   - ConfigError: configuration loading and validation errors
//   - ServerError: upstream 5xx signalling for circuit breaking
//   - Common sentinel errors: ErrConfigInvalid, ErrUpstreamUnavail, etc.
//
// # HTTP Utilities
//
// Response writer wrappers for status code capture:
//
//	w := util.NewStatusCapturingResponseWriter(responseWriter)
//	handler.ServeHTTP(w, r)
//	statusCode := w.StatusCode
package util
