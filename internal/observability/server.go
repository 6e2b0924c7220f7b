// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability provides HTTP endpoints for metrics, health checks
// and broker state snapshots.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobwas/glob"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/holomush/stompd/internal/broker"
)

// ReadinessChecker returns whether the service is ready to accept connections.
type ReadinessChecker func() bool

// Server provides HTTP endpoints for observability (metrics and health checks).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	state      BrokerState
	running    atomic.Bool
}

// NewServer creates a new observability server.
// addr: listen address in "host:port" format (e.g., "127.0.0.1:9164", ":9164" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Own registry so tests and embedders don't collide on the global one
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the broker metrics registered with this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// AttachBroker enables the broker gauges and the /debug endpoints. Call it
// once, before Start.
func (s *Server) AttachBroker(state BrokerState) {
	s.state = state
	s.metrics.TrackBroker(state)
}

// Handler returns the HTTP routes served by Start.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// Kubernetes-style health checks
	r.Get("/healthz/liveness", s.handleLiveness)
	r.Get("/healthz/readiness", s.handleReadiness)

	r.Route("/debug", func(r chi.Router) {
		r.Get("/topics", s.handleTopics)
		r.Get("/messages", s.handleMessages)
	})
	return r
}

// Start begins serving observability endpoints.
// It returns an error channel that will receive any errors from the HTTP server
// after it starts. The channel is closed when the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state on failure so the server can be stopped again
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 if the process is running.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 if the service is ready to accept connections,
// or 503 if not ready.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}

// handleTopics lists topics, optionally filtered by ?match=<glob>.
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if s.state == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "broker not attached"})
		return
	}
	match, ok := topicMatcher(w, r)
	if !ok {
		return
	}
	topics := make([]broker.TopicInfo, 0)
	for _, t := range s.state.Topics() {
		if match(t.Name) {
			topics = append(topics, t)
		}
	}
	writeJSON(w, http.StatusOK, topics)
}

// handleMessages lists in-flight messages, optionally filtered by
// ?match=<glob> on the topic name.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.state == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "broker not attached"})
		return
	}
	match, ok := topicMatcher(w, r)
	if !ok {
		return
	}
	msgs := make([]broker.MessageInfo, 0)
	for _, m := range s.state.Messages() {
		if match(m.Topic) {
			msgs = append(msgs, m)
		}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type errorBody struct {
	Error string `json:"error"`
}

// topicMatcher compiles ?match with '.' as the segment separator, so
// "stocks.*" matches "stocks.eu" but not "stocks.eu.fr".
func topicMatcher(w http.ResponseWriter, r *http.Request) (func(string) bool, bool) {
	pattern := r.URL.Query().Get("match")
	if pattern == "" {
		return func(string) bool { return true }, true
	}
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid match pattern: " + err.Error()})
		return nil, false
	}
	return g.Match, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("debug endpoint write failed", "error", err)
	}
}
