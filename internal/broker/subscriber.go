// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import (
	"github.com/oklog/ulid/v2"

	"github.com/holomush/stompd/internal/ident"
	"github.com/holomush/stompd/internal/stomp"
)

// Endpoint is the delivery side of a client connection. *conn.Conn
// satisfies it.
type Endpoint interface {
	Send(f stomp.Frame) error
	IsDead() bool
	Terminate()
}

// Subscriber is a named identity bound to one Endpoint. Topics and
// delivery statistics hold references to it; only the collector releases
// it.
type Subscriber struct {
	id       ulid.ULID
	name     string
	endpoint Endpoint
}

// NewSubscriber binds name to ep.
func NewSubscriber(name string, ep Endpoint) *Subscriber {
	if ep == nil {
		panic("broker: subscriber without endpoint")
	}
	return &Subscriber{id: ident.New(), name: name, endpoint: ep}
}

// ID returns the subscriber ID.
func (s *Subscriber) ID() ulid.ULID { return s.id }

// Name returns the login the subscriber connected with.
func (s *Subscriber) Name() string { return s.name }

// Dead reports whether the subscriber's endpoint is dead. Once true it
// stays true.
func (s *Subscriber) Dead() bool { return s.endpoint.IsDead() }

func (s *Subscriber) release() { s.endpoint.Terminate() }
