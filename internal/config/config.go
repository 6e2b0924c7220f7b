// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config defines the broker configuration and loads it from flags
// and an optional YAML file.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/stompd/internal/broker"
	"github.com/holomush/stompd/internal/conn"
)

// Defaults.
const (
	DefaultPort         = 55664
	DefaultMetricsAddr  = "127.0.0.1:9164"
	DefaultLogFormat    = "json"
	DefaultLogLevel     = "info"
	minFrameSize        = 16
	CodeInvalidConfig   = "CONFIG_INVALID"
	CodeUnreadableInput = "CONFIG_UNREADABLE"
)

// Config is the complete broker configuration. Keys are the same in YAML,
// JSON and koanf.
type Config struct {
	Host              string        `koanf:"host" json:"host,omitempty" yaml:"host" jsonschema:"description=Listen host; empty means all interfaces"`
	Port              int           `koanf:"port" json:"port,omitempty" yaml:"port" jsonschema:"minimum=0,maximum=65535,description=Listen port"`
	MaxFrameSize      int           `koanf:"max_frame_size" json:"max_frame_size,omitempty" yaml:"max_frame_size" jsonschema:"minimum=16,description=Largest accepted frame in bytes including the terminator"`
	WriteTimeout      time.Duration `koanf:"write_timeout" json:"write_timeout,omitempty" yaml:"write_timeout" jsonschema:"description=Deadline for writing one frame; 0 disables"`
	MaxAttempts       int           `koanf:"max_attempts" json:"max_attempts,omitempty" yaml:"max_attempts" jsonschema:"minimum=1,description=Delivery attempts per subscriber per message"`
	RedeliveryTimeout time.Duration `koanf:"redelivery_timeout" json:"redelivery_timeout,omitempty" yaml:"redelivery_timeout" jsonschema:"description=Wait after a failed delivery before retrying"`
	DistributorPeriod time.Duration `koanf:"distributor_period" json:"distributor_period,omitempty" yaml:"distributor_period" jsonschema:"description=Interval between distributor passes"`
	GCPeriod          time.Duration `koanf:"gc_period" json:"gc_period,omitempty" yaml:"gc_period" jsonschema:"description=Interval between collector passes"`
	MetricsAddr       string        `koanf:"metrics_addr" json:"metrics_addr,omitempty" yaml:"metrics_addr" jsonschema:"description=Metrics and health HTTP address; empty disables"`
	ControlAddr       string        `koanf:"control_addr" json:"control_addr,omitempty" yaml:"control_addr" jsonschema:"description=gRPC health address; empty disables"`
	LogFormat         string        `koanf:"log_format" json:"log_format,omitempty" yaml:"log_format" jsonschema:"enum=json,enum=text"`
	LogLevel          string        `koanf:"log_level" json:"log_level,omitempty" yaml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Port:              DefaultPort,
		MaxFrameSize:      conn.DefaultMaxFrameSize,
		WriteTimeout:      conn.DefaultWriteTimeout,
		MaxAttempts:       broker.DefaultMaxAttempts,
		RedeliveryTimeout: broker.DefaultRedeliveryTimeout,
		DistributorPeriod: broker.DefaultDistributorPeriod,
		GCPeriod:          broker.DefaultCollectorPeriod,
		MetricsAddr:       DefaultMetricsAddr,
		LogFormat:         DefaultLogFormat,
		LogLevel:          DefaultLogLevel,
	}
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return invalid("port", "must be between 0 and 65535, got %d", c.Port)
	case c.MaxFrameSize < minFrameSize:
		return invalid("max_frame_size", "must be at least %d, got %d", minFrameSize, c.MaxFrameSize)
	case c.WriteTimeout < 0:
		return invalid("write_timeout", "must not be negative, got %s", c.WriteTimeout)
	case c.MaxAttempts <= 0:
		return invalid("max_attempts", "must be positive, got %d", c.MaxAttempts)
	case c.RedeliveryTimeout <= 0:
		return invalid("redelivery_timeout", "must be positive, got %s", c.RedeliveryTimeout)
	case c.DistributorPeriod <= 0:
		return invalid("distributor_period", "must be positive, got %s", c.DistributorPeriod)
	case c.GCPeriod <= 0:
		return invalid("gc_period", "must be positive, got %s", c.GCPeriod)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return invalid("log_format", "must be 'json' or 'text', got %q", c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level", "must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return oops.Code(CodeInvalidConfig).With("field", field).Errorf(field+" "+format, args...)
}

// ListenAddr joins Host and Port.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Policy returns the broker policy described by c.
func (c Config) Policy() broker.Policy {
	return broker.Policy{
		MaxAttempts:       c.MaxAttempts,
		RedeliveryTimeout: c.RedeliveryTimeout,
		DistributorPeriod: c.DistributorPeriod,
		CollectorPeriod:   c.GCPeriod,
	}
}

// ConnOptions returns the per-connection options described by c.
func (c Config) ConnOptions() []conn.Option {
	return []conn.Option{
		conn.WithMaxFrameSize(c.MaxFrameSize),
		conn.WithWriteTimeout(c.WriteTimeout),
	}
}
