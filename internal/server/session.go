// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/holomush/stompd/internal/broker"
	"github.com/holomush/stompd/internal/conn"
	"github.com/holomush/stompd/internal/observability"
	"github.com/holomush/stompd/internal/stomp"
	"github.com/holomush/stompd/pkg/errutil"
)

// Reasons carried by ERROR frames.
const (
	ReasonExpectedConnect   = "Expected CONNECT"
	ReasonUnexpectedCommand = "Unexpected command"
	ReasonFailedToParse     = "Failed to parse"
	ReasonFailedToAdd       = "Failed to add message"
)

// State is the protocol state of a Session.
type State int

// Session states. Terminated is final.
const (
	StateUnconnected State = iota
	StateConnected
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session drives one client connection through
// Unconnected -> Connected -> Terminated.
type Session struct {
	conn       *conn.Conn
	broker     *broker.Broker
	metrics    *observability.Metrics
	logger     *slog.Logger
	state      State
	subscriber *broker.Subscriber
}

// NewSession binds c to b. metrics may be nil.
func NewSession(c *conn.Conn, b *broker.Broker, metrics *observability.Metrics) *Session {
	return &Session{
		conn:    c,
		broker:  b,
		metrics: metrics,
		logger:  slog.Default().With("conn_id", c.ID().String(), "remote", c.RemoteAddr()),
		state:   StateUnconnected,
	}
}

// State returns the current state. Only meaningful once Run has returned
// or from the goroutine running it.
func (s *Session) State() State { return s.state }

// Run serves frames until the session terminates or ctx is cancelled, then
// terminates the connection.
func (s *Session) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, s.conn.Terminate)
	defer stop()
	defer s.conn.Terminate()

	s.logger.Debug("session started")
	for s.state != StateTerminated {
		f, err := s.conn.ReadFrame()
		if err != nil {
			s.handleReadError(err)
			continue
		}
		s.metrics.FrameReceived(string(f.Command))
		s.handleFrame(f)
	}
	s.logger.Debug("session ended")
}

func (s *Session) handleReadError(err error) {
	switch {
	case errors.Is(err, conn.ErrClientGone), errors.Is(err, conn.ErrNecromancy):
		s.logger.Debug("client gone", "error", err)
		s.state = StateTerminated
	case errors.Is(err, conn.ErrTooMuch):
		errutil.LogError(s.logger, "frame too large, closing connection", err)
		s.state = StateTerminated
	case errors.Is(err, stomp.ErrUnknownCommand):
		s.metrics.FrameReceived("UNKNOWN")
		if s.state == StateUnconnected {
			s.reply(stomp.Error(ReasonExpectedConnect))
			return
		}
		s.reply(stomp.Error(ReasonUnexpectedCommand))
	default:
		s.metrics.FrameReceived("INVALID")
		s.logger.Debug("unparsable frame", "error", err)
		s.reply(stomp.Error(ReasonFailedToParse))
	}
}

func (s *Session) handleFrame(f stomp.Frame) {
	if s.state == StateUnconnected {
		if f.Command != stomp.CommandConnect {
			s.reply(stomp.Error(ReasonExpectedConnect))
			return
		}
		s.handleConnect(f)
		return
	}

	switch f.Command {
	case stomp.CommandSend:
		s.handleSend(f)
	case stomp.CommandSubscribe:
		s.broker.Subscribe(f.Header(stomp.HeaderDestination), s.subscriber)
	case stomp.CommandDisconnect:
		s.handleDisconnect()
	default:
		s.reply(stomp.Error(ReasonUnexpectedCommand))
	}
}

func (s *Session) handleConnect(f stomp.Frame) {
	login := f.Header(stomp.HeaderLogin)
	s.subscriber = broker.NewSubscriber(login, s.conn)
	s.logger = s.logger.With("login", login)
	if s.reply(stomp.Connected()) {
		s.state = StateConnected
		s.logger.Info("client connected")
	}
}

func (s *Session) handleSend(f stomp.Frame) {
	topic := f.Header(stomp.HeaderTopic)
	if _, err := s.broker.Publish(topic, f.Body); err != nil {
		s.logger.Debug("publish rejected", "topic", topic, "error", err)
		s.reply(stomp.Error(ReasonFailedToAdd))
	}
}

// handleDisconnect withdraws the subscriber, then writes the receipt and
// marks the connection dead in one write section. No delivery can reach
// the client after the receipt.
func (s *Session) handleDisconnect() {
	s.broker.Disconnect(s.subscriber)
	if err := s.conn.SendFinal(stomp.Receipt()); err != nil {
		s.logger.Debug("receipt not delivered", "error", err)
	}
	s.state = StateTerminated
	s.logger.Info("client disconnected")
}

// reply writes f and reports whether the session can continue.
func (s *Session) reply(f stomp.Frame) bool {
	if err := s.conn.Send(f); err != nil {
		s.logger.Debug("reply failed", "command", string(f.Command), "error", err)
		s.state = StateTerminated
		return false
	}
	return true
}
