// Package config provides configuration loading for queryd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the queryd daemon.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Cache     CacheConfig     `koanf:"cache"`
	Pool      PoolConfig      `koanf:"pool"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Events    EventsConfig    `koanf:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RateLimit       float64  `koanf:"rate_limit"`
	RateBurst       int      `koanf:"rate_burst"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // "grpc" or "http"
	Insecure    bool    `koanf:"insecure"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	DefaultTTL    Duration `koanf:"default_ttl"`
	SweepInterval Duration `koanf:"sweep_interval"`
}

// PoolConfig holds agent pool configuration.
type PoolConfig struct {
	IdleThreshold   Duration `koanf:"idle_threshold"`
	CleanupInterval Duration `koanf:"cleanup_interval"`
	MaxPerType      int      `koanf:"max_per_type"`
}

// PipelineConfig holds pipeline execution configuration.
type PipelineConfig struct {
	StageTimeout    Duration `koanf:"stage_timeout"`
	ExternalTimeout Duration `koanf:"external_timeout"`

	// RetrievalServiceURL and SynthesisServiceURL point at the external
	// microservices; empty leaves the corresponding stage on local
	// agents only.
	RetrievalServiceURL string `koanf:"retrieval_service_url"`
	SynthesisServiceURL string `koanf:"synthesis_service_url"`

	// PreferExternal selects the primary path for retrieval and synthesis;
	// the other path is the one fallback attempt. Requires at least one
	// service URL.
	PreferExternal  bool `koanf:"prefer_external"`
	MaxAlternatives int  `koanf:"max_alternatives"`
}

// KnowledgeConfig holds the embedded knowledge store configuration.
type KnowledgeConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// EventsConfig holds the query lifecycle event publisher configuration.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server rate_limit cannot be negative")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("telemetry protocol must be 'grpc' or 'http', got %q", c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
			return fmt.Errorf("telemetry sample_ratio must be in [0,1], got %f", c.Telemetry.SampleRatio)
		}
	}
	if c.Cache.DefaultTTL.Duration() <= 0 {
		return fmt.Errorf("cache default_ttl must be > 0")
	}
	if c.Pool.IdleThreshold.Duration() <= 0 {
		return fmt.Errorf("pool idle_threshold must be > 0")
	}
	if c.Pool.MaxPerType < 1 {
		return fmt.Errorf("pool max_per_type must be >= 1, got %d", c.Pool.MaxPerType)
	}
	if c.Pipeline.StageTimeout.Duration() <= 0 {
		return fmt.Errorf("pipeline stage_timeout must be > 0")
	}
	if c.Pipeline.MaxAlternatives < 0 {
		return fmt.Errorf("pipeline max_alternatives cannot be negative")
	}
	if c.Pipeline.PreferExternal &&
		c.Pipeline.RetrievalServiceURL == "" && c.Pipeline.SynthesisServiceURL == "" {
		return fmt.Errorf("pipeline prefer_external requires retrieval_service_url or synthesis_service_url")
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events url is required when events are enabled")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8480
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 50
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "queryd"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1.0
	}

	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = Duration(5 * time.Minute)
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = Duration(time.Minute)
	}

	if cfg.Pool.IdleThreshold == 0 {
		cfg.Pool.IdleThreshold = Duration(15 * time.Minute)
	}
	if cfg.Pool.CleanupInterval == 0 {
		cfg.Pool.CleanupInterval = Duration(time.Minute)
	}
	if cfg.Pool.MaxPerType == 0 {
		cfg.Pool.MaxPerType = 16
	}

	if cfg.Pipeline.StageTimeout == 0 {
		cfg.Pipeline.StageTimeout = Duration(30 * time.Second)
	}
	if cfg.Pipeline.ExternalTimeout == 0 {
		cfg.Pipeline.ExternalTimeout = Duration(10 * time.Second)
	}
	if cfg.Pipeline.MaxAlternatives == 0 {
		cfg.Pipeline.MaxAlternatives = 3
	}

	if cfg.Knowledge.Path == "" {
		cfg.Knowledge.Path = "~/.config/queryd/knowledge"
	}
	if cfg.Knowledge.Collection == "" {
		cfg.Knowledge.Collection = "queryd_default"
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "queryd"
	}
}
