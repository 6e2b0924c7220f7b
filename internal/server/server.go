// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package server accepts client connections and runs one Session per
// connection against a shared broker.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/stompd/internal/broker"
	"github.com/holomush/stompd/internal/conn"
	"github.com/holomush/stompd/internal/observability"
)

// Server is the client-facing TCP listener.
type Server struct {
	addr     string
	broker   *broker.Broker
	metrics  *observability.Metrics
	connOpts []conn.Option

	mu       sync.RWMutex
	listener net.Listener
	sessions sync.WaitGroup
}

// Option configures a Server during construction.
type Option func(*Server)

// WithMetrics records connection and frame counts.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithConnOptions applies opts to every accepted connection.
func WithConnOptions(opts ...conn.Option) Option {
	return func(s *Server) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// NewServer creates a server that will listen on addr.
func NewServer(addr string, b *broker.Broker, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		broker: b,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the server's listen address, or "" before it is bound.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Ready reports whether the listener is bound.
func (s *Server) Ready() bool {
	return s.Addr() != ""
}

// Run listens and serves until ctx is cancelled. On return every session
// has terminated its connection.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts on listener until ctx is cancelled. The server takes
// ownership of listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("stomp server started", "addr", listener.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil {
			slog.Debug("error closing listener", "error", err)
		}
	})
	defer stop()

	defer func() {
		s.sessions.Wait()
		s.mu.Lock()
		s.listener = nil
		s.mu.Unlock()
		slog.Info("stomp server stopped")
	}()

	for {
		nc, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				slog.Warn("accept timed out", "error", err)
				continue
			}
			return oops.Code("ACCEPT_FAILED").With("addr", listener.Addr().String()).Wrap(err)
		}

		c := conn.New(nc, s.connOpts...)
		s.metrics.ConnectionOpened()
		session := NewSession(c, s.broker, s.metrics)
		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			session.Run(ctx)
		}()
	}
}
