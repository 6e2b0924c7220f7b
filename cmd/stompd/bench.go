// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/stompd/internal/client"
	"github.com/holomush/stompd/internal/stomp"
)

var benchTopics = []string{"stocks", "news"}

const probeBody = "bench: ready"

type benchConfig struct {
	clientFlags
	senders  int
	messages int
	timeout  time.Duration
}

// benchResult summarizes one bench run.
type benchResult struct {
	Sent     int
	Rejected int
	Received int
	Elapsed  time.Duration
}

func (r benchResult) String() string {
	rate := 0.0
	if r.Elapsed > 0 {
		rate = float64(r.Received) / r.Elapsed.Seconds()
	}
	return fmt.Sprintf("sent %d, rejected %d, received %d/%d in %s (%.0f msg/s)",
		r.Sent, r.Rejected, r.Received, r.Sent-r.Rejected, r.Elapsed.Round(time.Millisecond), rate)
}

func newBenchCmd() *cobra.Command {
	cfg := &benchConfig{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure end-to-end delivery throughput",
		Long: `Subscribe one client to "stocks" and "news", then run --senders
clients that each publish --messages messages alternating between the two
topics. Reports how many messages the subscriber received and how fast.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := runBench(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cfg.register(cmd, "bench")
	cmd.Flags().IntVar(&cfg.senders, "senders", 4, "concurrent publishing clients")
	cmd.Flags().IntVar(&cfg.messages, "messages", 1000, "messages per sender")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 30*time.Second, "give up after this long")

	return cmd
}

func runBench(ctx context.Context, cfg *benchConfig) (benchResult, error) {
	if cfg.senders < 1 || cfg.messages < 1 {
		return benchResult{}, oops.Code("INVALID_BENCH").
			With("senders", cfg.senders).
			With("messages", cfg.messages).
			Errorf("senders and messages must be positive")
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.timeout)
	defer cancelTimeout()

	sub, err := client.Dial(ctx, cfg.addr, cfg.login, cfg.options()...)
	if err != nil {
		return benchResult{}, err
	}
	defer sub.Close()
	stop := context.AfterFunc(ctx, sub.Close)
	defer stop()

	if err := awaitSubscribed(sub, benchTopics); err != nil {
		return benchResult{}, err
	}

	var received atomic.Int64
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		for {
			f, err := sub.Receive()
			if err != nil {
				return
			}
			if f.Command == stomp.CommandMessage {
				received.Add(1)
			}
		}
	}()

	start := time.Now()
	var rejected atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.senders {
		g.Go(func() error {
			n, err := benchSender(gctx, cfg, i)
			rejected.Add(int64(n))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return benchResult{}, err
	}

	res := benchResult{Sent: cfg.senders * cfg.messages, Rejected: int(rejected.Load())}
	want := int64(res.Sent - res.Rejected)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for received.Load() < want && ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-recvDone:
			cancel()
		case <-ticker.C:
		}
	}
	res.Elapsed = time.Since(start)

	sub.Close()
	<-recvDone
	res.Received = int(received.Load())

	if int64(res.Received) < want {
		return res, oops.Code("BENCH_INCOMPLETE").
			With("received", res.Received).
			With("expected", want).
			Errorf("bench stopped early: %s", res)
	}
	return res, nil
}

// awaitSubscribed publishes a probe to each topic and waits for it to come
// back. SUBSCRIBE has no acknowledgement; the probe proves the
// subscription is in place before senders start.
func awaitSubscribed(c *client.Client, topics []string) error {
	for _, topic := range topics {
		if err := c.Subscribe(topic); err != nil {
			return err
		}
		if err := c.Send(topic, probeBody); err != nil {
			return err
		}
		for {
			f, err := c.Receive()
			if err != nil {
				return err
			}
			if f.Command == stomp.CommandError {
				return oops.Code("PROBE_REJECTED").
					With("topic", topic).
					Errorf("probe rejected: %s", f.Header(stomp.HeaderMessage))
			}
			if f.Command == stomp.CommandMessage && f.Header(stomp.HeaderDestination) == topic {
				break
			}
		}
	}
	return nil
}

// benchSender publishes cfg.messages messages and returns how many the
// broker rejected.
func benchSender(ctx context.Context, cfg *benchConfig, n int) (int, error) {
	c, err := client.Dial(ctx, cfg.addr, fmt.Sprintf("%s-sender-%d", cfg.login, n), cfg.options()...)
	if err != nil {
		return 0, err
	}
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for j := range cfg.messages {
		topic := benchTopics[j%len(benchTopics)]
		if err := c.Send(topic, fmt.Sprintf("price: 22.%d", j)); err != nil {
			c.Close()
			return 0, err
		}
	}

	pending, err := c.Disconnect()
	if err != nil {
		return 0, err
	}
	rejected := 0
	for _, f := range pending {
		if f.Command == stomp.CommandError {
			rejected++
		}
	}
	return rejected, nil
}
