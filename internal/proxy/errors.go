package proxy

import (
	"errors"
	"fmt"

	"github.com/heymind/reproxy/internal/util"
)

// Sentinel errors for forwarding operations.
var (
	// ErrHeaderRejected indicates that a header value failed its
	// replace pattern, rejecting the request before any upstream call.
	ErrHeaderRejected = errors.New("header rejected")

	// ErrUpstreamFailed indicates that the upstream exchange could not
	// be completed.
	ErrUpstreamFailed = errors.New("upstream request failed")
)

// HeaderRejectedError reports the header whose value did not match
// the rule's replace pattern.
type HeaderRejectedError struct {
	Rule   string
	Header string
}

// Error implements the error interface.
func (e *HeaderRejectedError) Error() string {
	return fmt.Sprintf("rule %q: header %q does not match its replace pattern", e.Rule, e.Header)
}

// Is checks if the error matches the target.
func (e *HeaderRejectedError) Is(target error) bool {
	if target == ErrHeaderRejected || target == util.ErrInvalidInput {
		return true
	}
	_, ok := target.(*HeaderRejectedError)
	return ok
}

// NewHeaderRejectedError creates a new HeaderRejectedError.
func NewHeaderRejectedError(rule, header string) *HeaderRejectedError {
	return &HeaderRejectedError{Rule: rule, Header: header}
}

// UpstreamError reports a failed upstream exchange, including
// failures to construct the outbound request.
type UpstreamError struct {
	Rule   string
	Target string
	Cause  error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("rule %q: upstream request to %s failed: %v", e.Rule, e.Target, e.Cause)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *UpstreamError) Is(target error) bool {
	if target == ErrUpstreamFailed || target == util.ErrUpstreamUnavail {
		return true
	}
	_, ok := target.(*UpstreamError)
	return ok || errors.Is(e.Cause, target)
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(rule, target string, cause error) *UpstreamError {
	return &UpstreamError{Rule: rule, Target: target, Cause: cause}
}

// IsHeaderRejected checks if an error is a header policy rejection.
func IsHeaderRejected(err error) bool {
	return errors.Is(err, ErrHeaderRejected)
}

// IsUpstreamError checks if an error is an upstream failure.
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstreamFailed)
}
