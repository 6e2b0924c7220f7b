// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package control provides the gRPC control listener used by process
// supervisors: the standard health service plus server reflection.
package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer serves grpc.health.v1.Health for the overall server ("") and
// for the named component. Both start NOT_SERVING.
type GRPCServer struct {
	component  string
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	running    atomic.Bool
}

// NewGRPCServer creates a control server reporting health for component.
func NewGRPCServer(component string) (*GRPCServer, error) {
	if component == "" {
		return nil, oops.Code("INVALID_COMPONENT").Errorf("component name cannot be empty")
	}
	s := &GRPCServer{
		component: component,
		health:    health.NewServer(),
	}
	s.SetServing(false)
	return s, nil
}

// Start listens on addr. The returned channel receives the serve error, or
// nil after a graceful stop, and is then closed.
func (s *GRPCServer) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("ALREADY_RUNNING").Errorf("control server is already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		err := s.grpcServer.Serve(listener)
		if errors.Is(err, grpc.ErrServerStopped) {
			// Stop won the race against Serve.
			err = nil
		}
		if err != nil {
			slog.Error("control gRPC server error", "component", s.component, "error", err)
		}
		errCh <- err
	}()

	slog.Info("control server started", "component", s.component, "addr", listener.Addr().String())
	return errCh, nil
}

// Addr returns the bound address, or "" before Start.
func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetServing flips the reported status of both the server and the component.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.component, status)
}

// Stop reports NOT_SERVING to every watcher and shuts down gracefully,
// forcing the stop if ctx expires first.
func (s *GRPCServer) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}

	slog.Info("control server stopped", "component", s.component)
	return nil
}
