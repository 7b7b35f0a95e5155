// Package config provides configuration structures, loading, validation,
// and hot-reload support for the reverse proxy.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root configuration for the proxy.
type Config struct {
	Listen         ListenConfig         `yaml:"listen"`
	Log            LogConfig            `yaml:"log"`
	Admin          AdminConfig          `yaml:"admin"`
	Upstream       UpstreamConfig       `yaml:"upstream"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Rules          RuleList             `yaml:"rules"`
}

// ListenConfig configures the proxy listener.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the host:port address string for the listener.
func (l ListenConfig) Address() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AdminConfig configures the admin endpoint serving metrics and health
// checks. It is disabled unless explicitly enabled.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Address returns the host:port address string for the admin endpoint.
func (a AdminConfig) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// UpstreamConfig configures the shared transport used for upstream
// requests. A zero Timeout means no per-request deadline.
type UpstreamConfig struct {
	Timeout             Duration `yaml:"timeout"`
	MaxIdleConns        int      `yaml:"maxIdleConns"`
	MaxIdleConnsPerHost int      `yaml:"maxIdleConnsPerHost"`
	IdleConnTimeout     Duration `yaml:"idleConnTimeout"`
}

// CircuitBreakerConfig configures the optional circuit breaker in front
// of the forwarder.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold"`
	Timeout   Duration `yaml:"timeout"`
}

// TracingConfig configures optional OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// DefaultConfig returns a configuration with default values. Loading
// decodes on top of these defaults, so absent keys keep them.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Host: "127.0.0.1",
			Port: 3333,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Admin: AdminConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    9090,
		},
		Upstream: UpstreamConfig{
			Timeout:             0,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     Duration(90 * time.Second),
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:   false,
			Threshold: 5,
			Timeout:   Duration(30 * time.Second),
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "reproxy",
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
