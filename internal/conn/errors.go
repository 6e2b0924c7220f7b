// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package conn

import (
	"errors"

	"github.com/samber/oops"
)

// Transport failures.
var (
	// ErrClientGone means the peer closed the stream or an I/O call failed.
	// The connection is dead once this is returned.
	ErrClientGone = errors.New("client gone")
	// ErrTooMuch means a frame exceeded the read bound before its terminator.
	ErrTooMuch = errors.New("frame too large")
	// ErrNecromancy means the connection was already dead; the socket was
	// not touched.
	ErrNecromancy = errors.New("connection is dead")
)

// Error codes attached to transport failures.
const (
	CodeClientGone = "CLIENT_GONE"
	CodeTooMuch    = "FRAME_TOO_LARGE"
	CodeNecromancy = "CONNECTION_DEAD"
)

func (c *Conn) clientGone(op string, cause error) error {
	return oops.Code(CodeClientGone).
		With("conn_id", c.id.String()).
		With("op", op).
		With("cause", cause.Error()).
		Wrap(ErrClientGone)
}

func (c *Conn) necromancy(op string) error {
	return oops.Code(CodeNecromancy).
		With("conn_id", c.id.String()).
		With("op", op).
		Wrap(ErrNecromancy)
}

func (c *Conn) tooMuch() error {
	return oops.Code(CodeTooMuch).
		With("conn_id", c.id.String()).
		With("limit", c.maxFrame).
		Wrap(ErrTooMuch)
}
