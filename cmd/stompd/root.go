// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/stompd/internal/xdg"
)

// NewRootCmd creates the root command for the stompd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stompd",
		Short: "stompd - a small topic-based STOMP message broker",
		Long: `stompd accepts STOMP-style clients over TCP, fans each SEND out to
the topic's current subscribers and retries failed deliveries with a
bounded number of attempts.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default $XDG_CONFIG_HOME/stompd/config.yaml if present)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newSubscribeCmd())
	cmd.AddCommand(newBenchCmd())

	return cmd
}

// configPath returns the --config value inherited from the root command.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

// resolveConfig falls back to the XDG config file when --config is unset.
func resolveConfig(cmd *cobra.Command) (string, error) {
	return xdg.ResolveConfig(configPath(cmd))
}
