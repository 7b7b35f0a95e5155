package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/heymind/reproxy/internal/util"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

// Is reports a match for util.ErrConfigInvalid so callers can classify
// validation failures with errors.Is.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates a configuration tree, accumulating every error
// rather than stopping at the first.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the full configuration. It returns nil when the
// configuration is valid, or the accumulated ValidationErrors.
func (c *Config) Validate() error {
	return NewValidator().ValidateConfig(c)
}

// ValidateConfig validates a complete configuration.
func (v *Validator) ValidateConfig(cfg *Config) error {
	v.validateListen(cfg.Listen)
	v.validateLog(cfg.Log)
	v.validateAdmin(cfg.Admin)
	v.validateUpstream(cfg.Upstream)
	v.validateCircuitBreaker(cfg.CircuitBreaker)
	v.validateTracing(cfg.Tracing)
	v.validateRules(cfg.Rules)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateListen(listen ListenConfig) {
	if err := util.ValidateNonEmpty(listen.Host, "host"); err != nil {
		v.addError("listen.host", err.Error())
	}
	if err := util.ValidatePort(listen.Port); err != nil {
		v.addError("listen.port", err.Error())
	}
}

func (v *Validator) validateLog(log LogConfig) {
	switch log.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", fmt.Sprintf("unknown log level %q (want debug, info, warn, or error)", log.Level))
	}
	switch log.Format {
	case "json", "console":
	default:
		v.addError("log.format", fmt.Sprintf("unknown log format %q (want json or console)", log.Format))
	}
	if err := util.ValidateNonEmpty(log.Output, "output"); err != nil {
		v.addError("log.output", err.Error())
	}
}

func (v *Validator) validateAdmin(admin AdminConfig) {
	if !admin.Enabled {
		return
	}
	if err := util.ValidateNonEmpty(admin.Host, "host"); err != nil {
		v.addError("admin.host", err.Error())
	}
	if err := util.ValidatePort(admin.Port); err != nil {
		v.addError("admin.port", err.Error())
	}
}

func (v *Validator) validateUpstream(upstream UpstreamConfig) {
	if upstream.Timeout < 0 {
		v.addError("upstream.timeout", "timeout cannot be negative")
	}
	if upstream.IdleConnTimeout < 0 {
		v.addError("upstream.idleConnTimeout", "timeout cannot be negative")
	}
	if upstream.MaxIdleConns < 0 {
		v.addError("upstream.maxIdleConns", "cannot be negative")
	}
	if upstream.MaxIdleConnsPerHost < 0 {
		v.addError("upstream.maxIdleConnsPerHost", "cannot be negative")
	}
}

func (v *Validator) validateCircuitBreaker(cb CircuitBreakerConfig) {
	if !cb.Enabled {
		return
	}
	if cb.Threshold < 1 {
		v.addError("circuitBreaker.threshold", "threshold must be at least 1")
	}
	if cb.Timeout <= 0 {
		v.addError("circuitBreaker.timeout", "timeout must be positive")
	}
}

func (v *Validator) validateTracing(tracing TracingConfig) {
	if !tracing.Enabled {
		return
	}
	if err := util.ValidateNonEmpty(tracing.ServiceName, "service name"); err != nil {
		v.addError("tracing.serviceName", err.Error())
	}
	if err := util.ValidateNonEmpty(tracing.OTLPEndpoint, "endpoint"); err != nil {
		v.addError("tracing.otlpEndpoint", err.Error())
	}
	if err := util.ValidateSamplingRate(tracing.SamplingRate); err != nil {
		v.addError("tracing.samplingRate", err.Error())
	}
}

// validateRules checks every rule so a single run reports all broken
// patterns. An empty rule list is valid: the proxy starts and answers
// every request with 404.
func (v *Validator) validateRules(rules RuleList) {
	for _, rule := range rules {
		path := fmt.Sprintf("rules.%s", rule.Name)

		if rule.Match == "" {
			v.addError(path+".match", "match pattern cannot be empty")
		} else if err := util.ValidateRegex(rule.Match); err != nil {
			v.addError(path+".match", err.Error())
		}

		if rule.Target == "" {
			v.addError(path+".target", "target template cannot be empty")
		}

		v.validateHeaders(path, rule.Headers)
	}
}

func (v *Validator) validateHeaders(rulePath string, headers map[string]HeaderActionDefinition) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := fmt.Sprintf("%s.headers.%s", rulePath, name)
		if name != DefaultHeaderKey {
			if err := util.ValidateHeaderName(name); err != nil {
				v.addError(path, err.Error())
			}
		}

		action := headers[name]
		switch action.Type {
		case HeaderActionPassthrough, HeaderActionIgnore:
		case HeaderActionReplace:
			if action.Match == "" {
				v.addError(path+".match", "match pattern cannot be empty")
			} else if err := util.ValidateRegex(action.Match); err != nil {
				v.addError(path+".match", err.Error())
			}
		default:
			v.addError(path, fmt.Sprintf("unknown header action %q", string(action.Type)))
		}
	}
}
