// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/stompd/internal/broker"
	"github.com/holomush/stompd/pkg/errutil"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 55664, cfg.Port)
	assert.Equal(t, 1024, cfg.MaxFrameSize)
	assert.Equal(t, 10, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.RedeliveryTimeout)
	assert.Equal(t, time.Second, cfg.DistributorPeriod)
	assert.Equal(t, time.Second, cfg.GCPeriod)
	assert.Equal(t, ":55664", cfg.ListenAddr())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port too large", func(c *Config) { c.Port = 70000 }, "port"},
		{"negative port", func(c *Config) { c.Port = -1 }, "port"},
		{"tiny frame", func(c *Config) { c.MaxFrameSize = 8 }, "max_frame_size"},
		{"negative write timeout", func(c *Config) { c.WriteTimeout = -time.Second }, "write_timeout"},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "max_attempts"},
		{"negative redelivery", func(c *Config) { c.RedeliveryTimeout = -time.Second }, "redelivery_timeout"},
		{"zero redelivery", func(c *Config) { c.RedeliveryTimeout = 0 }, "redelivery_timeout"},
		{"zero distributor period", func(c *Config) { c.DistributorPeriod = 0 }, "distributor_period"},
		{"zero gc period", func(c *Config) { c.GCPeriod = 0 }, "gc_period"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, CodeInvalidConfig)
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestPolicy(t *testing.T) {
	cfg := Default()
	cfg.MaxAttempts = 4
	cfg.GCPeriod = 3 * time.Second

	assert.Equal(t, broker.Policy{
		MaxAttempts:       4,
		RedeliveryTimeout: 2 * time.Second,
		DistributorPeriod: time.Second,
		CollectorPeriod:   3 * time.Second,
	}, cfg.Policy())
	assert.Len(t, cfg.ConnOptions(), 2)
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stompd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FlagDefaults(t *testing.T) {
	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load("", newFlags(t, "--port=6000", "--redelivery-timeout=5s", "--log-level=debug"))
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.RedeliveryTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10, cfg.MaxAttempts)
}

func TestLoad_FileOverridesDefaultsFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, `
port: 7000
max_attempts: 3
gc_period: 500ms
log_format: text
`)

	cfg, err := Load(path, newFlags(t, "--port=8000"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port, "explicit flag wins over file")
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.GCPeriod)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, DefaultMetricsAddr, cfg.MetricsAddr, "unset keys keep defaults")
}

func TestLoad_WithoutFlags(t *testing.T) {
	path := writeFile(t, "control_addr: 127.0.0.1:9165\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9165", cfg.ControlAddr)
	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, CodeUnreadableInput)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeFile(t, "colour: blue\n"), nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, CodeInvalidConfig)
	})

	t.Run("fails validation", func(t *testing.T) {
		_, err := Load(writeFile(t, "log_level: verbose\n"), nil)
		require.Error(t, err)
	})

	t.Run("invalid flag value", func(t *testing.T) {
		_, err := Load("", newFlags(t, "--max-attempts=0"))
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "field", "max_attempts")
	})
}
