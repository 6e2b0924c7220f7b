// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/stompd/internal/broker"
	"github.com/holomush/stompd/internal/config"
	"github.com/holomush/stompd/internal/control"
	"github.com/holomush/stompd/internal/logging"
	"github.com/holomush/stompd/internal/observability"
	"github.com/holomush/stompd/internal/server"
	"github.com/holomush/stompd/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [port]",
		Short: "Run the broker",
		Long: `Run the broker until SIGINT or SIGTERM. The listen port may be given
as an argument, in the config file or with --port; the argument wins.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("port", args[0]); err != nil {
					return oops.Code("INVALID_PORT").With("port", args[0]).Wrap(err)
				}
			}
			path, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServe wires the broker, its background loops and the optional
// observability and control listeners, then blocks until ctx is cancelled
// or a component fails.
func runServe(ctx context.Context, cfg config.Config) error {
	if err := logging.SetDefault("stompd", version, cfg.LogFormat, cfg.LogLevel); err != nil {
		return err
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	slog.Info("starting stompd",
		"addr", cfg.ListenAddr(),
		"max_attempts", cfg.MaxAttempts,
		"redelivery_timeout", cfg.RedeliveryTimeout,
	)

	var srv *server.Server
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool { return srv.Ready() })
		metrics = obsServer.Metrics()
	}

	brokerOpts := []broker.Option{broker.WithPolicy(cfg.Policy())}
	if metrics != nil {
		brokerOpts = append(brokerOpts, broker.WithObserver(metrics))
	}
	b := broker.New(brokerOpts...)

	srv = server.NewServer(cfg.ListenAddr(), b,
		server.WithMetrics(metrics),
		server.WithConnOptions(cfg.ConnOptions()...),
	)

	g, gctx := errgroup.WithContext(ctx)

	if obsServer != nil {
		obsServer.AttachBroker(b)
		obsErr, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		defer shutdown("observability", obsServer.Stop)
		g.Go(func() error { return watch(gctx, obsErr) })
	}

	if cfg.ControlAddr != "" {
		ctrl, err := control.NewGRPCServer("stompd")
		if err != nil {
			return err
		}
		ctrlErr, err := ctrl.Start(cfg.ControlAddr)
		if err != nil {
			return err
		}
		defer shutdown("control", ctrl.Stop)
		g.Go(func() error { return watch(gctx, ctrlErr) })
		g.Go(func() error {
			if waitReady(gctx, srv) {
				ctrl.SetServing(true)
			}
			<-gctx.Done()
			ctrl.SetServing(false)
			return nil
		})
	}

	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return b.RunDistributor(gctx) })
	g.Go(func() error { return b.RunCollector(gctx) })

	err := g.Wait()
	if err != nil {
		errutil.LogErrorContext(ctx, slog.Default(), "stompd stopped with error", err)
		return err
	}
	slog.Info("stompd stopped")
	return nil
}

// watch forwards the first non-nil error from a listener's error channel.
func watch(ctx context.Context, errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// waitReady polls until srv is bound or ctx ends.
func waitReady(ctx context.Context, srv *server.Server) bool {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !srv.Ready() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

func shutdown(name string, stopFn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stopFn(ctx); err != nil {
		slog.Warn("shutdown failed", "component", name, "error", err)
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
