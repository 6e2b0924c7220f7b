// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// RegisterFlags adds one flag per Config key to fs, using the values of
// Default as flag defaults. Flag names use dashes where keys use
// underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("host", d.Host, "listen host (empty = all interfaces)")
	fs.Int("port", d.Port, "listen port")
	fs.Int("max-frame-size", d.MaxFrameSize, "largest accepted frame in bytes, terminator included")
	fs.Duration("write-timeout", d.WriteTimeout, "deadline for writing one frame (0 = none)")
	fs.Int("max-attempts", d.MaxAttempts, "delivery attempts per subscriber per message")
	fs.Duration("redelivery-timeout", d.RedeliveryTimeout, "wait after a failed delivery before retrying")
	fs.Duration("distributor-period", d.DistributorPeriod, "interval between distributor passes")
	fs.Duration("gc-period", d.GCPeriod, "interval between collector passes")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("control-addr", d.ControlAddr, "gRPC health address (empty = disabled)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
}

// Load builds a Config from flag defaults, then the YAML file at path (if
// path is not empty), then flags set explicitly on fs. The file is checked
// against the generated schema before it is merged. The result is
// validated.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return Config{}, oops.Code(CodeUnreadableInput).With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return Config{}, oops.Code(CodeInvalidConfig).With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code(CodeUnreadableInput).With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code(CodeUnreadableInput).Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code(CodeInvalidConfig).Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
