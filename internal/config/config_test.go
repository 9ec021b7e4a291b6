package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFile_Defaults(t *testing.T) {
	// Point at a path that does not exist so only defaults apply.
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8480, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL.Duration())
	assert.Equal(t, 15*time.Minute, cfg.Pool.IdleThreshold.Duration())
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StageTimeout.Duration())
	assert.Equal(t, 3, cfg.Pipeline.MaxAlternatives)
	assert.Equal(t, "queryd", cfg.Telemetry.ServiceName)
}

func TestLoadWithFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9999
cache:
  default_ttl: 90s
pool:
  idle_threshold: 2m
  max_per_type: 4
pipeline:
  prefer_external: true
  retrieval_service_url: http://retrieval.internal:8080
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL.Duration())
	assert.Equal(t, 2*time.Minute, cfg.Pool.IdleThreshold.Duration())
	assert.Equal(t, 4, cfg.Pool.MaxPerType)
	assert.True(t, cfg.Pipeline.PreferExternal)
	assert.Equal(t, "http://retrieval.internal:8080", cfg.Pipeline.RetrievalServiceURL)
}

func TestLoadWithFile_EnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("CACHE_DEFAULT_TTL", "45s")

	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Cache.DefaultTTL.Duration())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server port",
		},
		{
			name:    "bad format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name:    "zero ttl",
			mutate:  func(c *Config) { c.Cache.DefaultTTL = 0 },
			wantErr: "default_ttl",
		},
		{
			name:    "zero idle threshold",
			mutate:  func(c *Config) { c.Pool.IdleThreshold = 0 },
			wantErr: "idle_threshold",
		},
		{
			name:    "events enabled without url",
			mutate:  func(c *Config) { c.Events.Enabled = true; c.Events.URL = "" },
			wantErr: "events url",
		},
		{
			name:    "prefer external without service url",
			mutate:  func(c *Config) { c.Pipeline.PreferExternal = true },
			wantErr: "prefer_external",
		},
		{
			name:    "bad sample ratio",
			mutate:  func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.SampleRatio = 2 },
			wantErr: "sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			applyDefaults(&cfg)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.Error(t, d.UnmarshalText([]byte("-5s")))
	require.Error(t, d.UnmarshalText([]byte("bogus")))
}
