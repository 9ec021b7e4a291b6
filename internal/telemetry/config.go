// Package telemetry provides OpenTelemetry instrumentation for queryd.
package telemetry

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/kestrelworks/queryd/internal/config"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled         bool            `koanf:"enabled"`
	Endpoint        string          `koanf:"endpoint"`
	ServiceName     string          `koanf:"service_name"`
	ServiceVersion  string          `koanf:"service_version"`
	Protocol        string          `koanf:"protocol"` // "grpc" (default) or "http/protobuf"
	Insecure        bool            `koanf:"insecure"`
	SampleRatio     float64         `koanf:"sample_ratio"`
	ExportInterval  config.Duration `koanf:"export_interval"`
	ShutdownTimeout config.Duration `koanf:"shutdown_timeout"`
}

// NewDefaultConfig returns telemetry defaults.
// Telemetry is disabled by default for users without an OTEL collector.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		ServiceName:     "queryd",
		ServiceVersion:  "0.1.0",
		Protocol:        "grpc",
		Insecure:        true,
		SampleRatio:     1.0,
		ExportInterval:  config.Duration(15 * time.Second),
		ShutdownTimeout: config.Duration(5 * time.Second),
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("protocol must be 'grpc' or 'http/protobuf', got %q", c.Protocol)
	}
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be between 0 and 1, got %f", c.SampleRatio)
	}
	if c.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("export_interval must be positive")
	}
	return nil
}

// isLocalEndpoint reports whether the endpoint targets localhost.
func (c *Config) isLocalEndpoint() bool {
	endpoint := strings.TrimPrefix(c.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	host := endpoint
	if h, _, err := net.SplitHostPort(endpoint); err == nil {
		host = h
	}
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
