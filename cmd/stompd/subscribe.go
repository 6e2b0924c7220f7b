// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holomush/stompd/internal/client"
	"github.com/holomush/stompd/internal/stomp"
)

type subscribeConfig struct {
	clientFlags
	count int
}

func newSubscribeCmd() *cobra.Command {
	cfg := &subscribeConfig{}

	cmd := &cobra.Command{
		Use:   "subscribe TOPIC...",
		Short: "Print messages published to one or more topics",
		Long: `Subscribe to the given topics and print "topic: body" for every
MESSAGE until interrupted, or until --count messages have arrived.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, cfg, args)
		},
	}

	cfg.register(cmd, "subscriber")
	cmd.Flags().IntVar(&cfg.count, "count", 0, "exit after this many messages (0 = run until interrupted)")

	return cmd
}

func runSubscribe(cmd *cobra.Command, cfg *subscribeConfig, topics []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	c, err := client.Dial(ctx, cfg.addr, cfg.login, cfg.options()...)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for _, topic := range topics {
		if err := c.Subscribe(topic); err != nil {
			c.Close()
			return err
		}
	}

	received := 0
	for cfg.count == 0 || received < cfg.count {
		f, err := c.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch f.Command {
		case stomp.CommandMessage:
			received++
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", f.Header(stomp.HeaderDestination), f.Body)
		case stomp.CommandError:
			cmd.PrintErrf("error: %s\n", f.Header(stomp.HeaderMessage))
		}
	}

	_, err = c.Disconnect()
	return err
}
