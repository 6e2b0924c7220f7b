// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/stompd/internal/config"
	"github.com/holomush/stompd/internal/xdg"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and check configuration files",
	}
	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return oops.Code("SCHEMA_GENERATION_FAILED").Wrap(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a config file against the schema and value ranges",
		Long: `Check a config file. The file is taken from the argument, then
--config, then $XDG_CONFIG_HOME/stompd/config.yaml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := configPath(cmd)
			if len(args) == 1 {
				explicit = args[0]
			}
			path, err := xdg.ResolveConfig(explicit)
			if err != nil {
				return err
			}
			if path == "" {
				return oops.Code("CONFIG_REQUIRED").Errorf("no config file given")
			}

			if err := config.ValidateFile(path); err != nil {
				cmd.PrintErrf("%s: %s\n", path, config.FormatSchemaError(err))
				return oops.Code(config.CodeInvalidConfig).With("path", path).Wrap(err)
			}
			if _, err := config.Load(path, nil); err != nil {
				cmd.PrintErrf("%s: %v\n", path, err)
				return err
			}
			cmd.Printf("%s: ok\n", path)
			return nil
		},
	}
}
