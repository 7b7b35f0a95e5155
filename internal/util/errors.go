package util

import (
	"errors"
	"fmt"
)

// Sentinel errors callers match with errors.Is. The structured types
// below report themselves as the corresponding sentinel so call sites
// never need the concrete type.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrUpstreamUnavail = errors.New("upstream unavailable")
	ErrConfigInvalid   = errors.New("invalid configuration")
)

// ConfigError is a configuration loading or validation failure. Field
// holds the dotted path of the offending setting ("rules.api.match");
// it may be empty for document-level problems.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is matches ErrConfigInvalid, any other *ConfigError, and anything
// the cause chain matches.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	return errors.Is(e.Cause, target)
}

// NewConfigError builds a ConfigError for the given field path.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause builds a ConfigError wrapping an underlying
// error, typically a YAML or regex compile failure.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// CircuitOpenError reports a request rejected by an open or exhausted
// circuit breaker. State carries the breaker state name as reported by
// the breaker itself.
type CircuitOpenError struct {
	Name  string
	State string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is %s", e.Name, e.State)
}

// Is matches ErrCircuitOpen and any other *CircuitOpenError.
func (e *CircuitOpenError) Is(target error) bool {
	if target == ErrCircuitOpen {
		return true
	}
	_, ok := target.(*CircuitOpenError)
	return ok
}

// NewCircuitOpenError builds a CircuitOpenError.
func NewCircuitOpenError(name, state string) *CircuitOpenError {
	return &CircuitOpenError{Name: name, State: state}
}

// WrapError prefixes err with message, preserving the chain for
// errors.Is and errors.As. A nil err stays nil.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
