package util

import (
	"fmt"
	"regexp"
	"strings"
)

// tokenRE matches the RFC 7230 token production, the set of characters
// allowed in an HTTP header field name.
var tokenRE = regexp.MustCompile(`^[!#$%&'*+\-.^_` + "`" + `|~0-9A-Za-z]+$`)

// ValidateHeaderName reports whether name is a legal HTTP header field
// name.
func ValidateHeaderName(name string) error {
	if name == "" {
		return fmt.Errorf("header name cannot be empty")
	}
	if !tokenRE.MatchString(name) {
		return fmt.Errorf("invalid header name: %s", name)
	}
	return nil
}

// ValidatePort rejects ports outside the usable TCP range. Port 0 is
// rejected too; the proxy never asks the kernel to pick one.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", port)
	}
	return nil
}

// ValidateRegex checks that pattern compiles. The empty pattern is
// accepted so optional fields can stay blank.
func ValidateRegex(pattern string) error {
	if pattern == "" {
		return nil
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	return nil
}

// ValidateSamplingRate checks that rate lies in [0.0, 1.0].
func ValidateSamplingRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("sampling rate must be between 0.0 and 1.0, got: %f", rate)
	}
	return nil
}

// ValidateNonEmpty rejects values that are empty or whitespace-only.
// name identifies the field in the error message.
func ValidateNonEmpty(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}
