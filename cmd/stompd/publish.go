// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/stompd/internal/client"
	"github.com/holomush/stompd/internal/config"
	"github.com/holomush/stompd/internal/stomp"
)

// clientFlags are shared by the commands that talk to a running broker.
type clientFlags struct {
	addr    string
	login   string
	retries uint64
}

func (f *clientFlags) register(cmd *cobra.Command, defaultLogin string) {
	cmd.Flags().StringVar(&f.addr, "addr", net.JoinHostPort("127.0.0.1", strconv.Itoa(config.DefaultPort)), "broker address")
	cmd.Flags().StringVar(&f.login, "login", defaultLogin, "login name sent with CONNECT")
	cmd.Flags().Uint64Var(&f.retries, "retries", client.DefaultRetries, "dial retries")
}

func (f *clientFlags) options() []client.Option {
	return []client.Option{client.WithRetries(f.retries)}
}

type publishConfig struct {
	clientFlags
	topic string
}

func newPublishCmd() *cobra.Command {
	cfg := &publishConfig{}

	cmd := &cobra.Command{
		Use:   "publish --topic TOPIC CONTENT...",
		Short: "Send one message to a topic",
		Long: `Send one message to a topic and wait for the broker to acknowledge the
disconnect. Fails if the broker rejects the message, for example because
the topic has no live subscribers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, cfg, strings.Join(args, " "))
		},
	}

	cfg.register(cmd, "publisher")
	cmd.Flags().StringVar(&cfg.topic, "topic", "", "destination topic")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

func runPublish(cmd *cobra.Command, cfg *publishConfig, content string) error {
	ctx := cmd.Context()
	c, err := client.Dial(ctx, cfg.addr, cfg.login, cfg.options()...)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := c.Send(cfg.topic, content); err != nil {
		c.Close()
		return err
	}
	// The broker handles frames in order, so any rejection arrives before
	// the receipt.
	pending, err := c.Disconnect()
	if err != nil {
		return err
	}
	for _, f := range pending {
		if f.Command == stomp.CommandError {
			return oops.Code("PUBLISH_REJECTED").
				With("topic", cfg.topic).
				With("reason", f.Header(stomp.HeaderMessage)).
				Errorf("broker rejected message: %s", f.Header(stomp.HeaderMessage))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published to %s in %s\n", cfg.topic, time.Since(start).Round(time.Millisecond))
	return nil
}
