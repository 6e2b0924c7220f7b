// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package conn wraps a client socket with a one-way dead latch and
// independent read and write sections.
package conn

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/stompd/internal/ident"
	"github.com/holomush/stompd/internal/stomp"
)

// Defaults for Conn options.
const (
	DefaultMaxFrameSize = 1024
	DefaultWriteTimeout = 5 * time.Second
)

// Conn is a per-client transport handle. At most one goroutine reads and
// at most one goroutine writes at any time; a read and a write may overlap.
//
// Once dead, every ReadFrame and Send fails with ErrNecromancy without
// touching the socket.
type Conn struct {
	id           ulid.ULID
	nc           net.Conn
	maxFrame     int
	writeTimeout time.Duration

	readMu sync.Mutex
	reader *bufio.Reader

	writeMu sync.Mutex

	dead      atomic.Bool
	closeOnce sync.Once
}

// Option configures a Conn during construction.
type Option func(*Conn)

// WithMaxFrameSize bounds a single frame, terminator included.
func WithMaxFrameSize(n int) Option {
	return func(c *Conn) {
		if n > 1 {
			c.maxFrame = n
		}
	}
}

// WithWriteTimeout sets the deadline applied to every frame write.
// Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d >= 0 {
			c.writeTimeout = d
		}
	}
}

// New wraps nc. The Conn owns nc from here on and closes it on Terminate.
func New(nc net.Conn, opts ...Option) *Conn {
	c := &Conn{
		id:           ident.New(),
		nc:           nc,
		maxFrame:     DefaultMaxFrameSize,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reader = bufio.NewReaderSize(nc, c.maxFrame)
	return c
}

// ID returns the connection ID.
func (c *Conn) ID() ulid.ULID { return c.id }

// RemoteAddr returns the peer address, or "" when unknown.
func (c *Conn) RemoteAddr() string {
	if addr := c.nc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// IsDead reports whether the dead latch has been set.
func (c *Conn) IsDead() bool { return c.dead.Load() }

// ReadFrame reads and parses the next frame.
//
// A frame longer than the configured bound fails with ErrTooMuch and its
// partial data is discarded; that alone does not kill the connection. A
// parse failure returns the stomp package's error and leaves the
// connection usable.
func (c *Conn) ReadFrame() (stomp.Frame, error) {
	raw, err := c.readRaw()
	if err != nil {
		return stomp.Frame{}, err
	}
	return stomp.Parse(raw)
}

func (c *Conn) readRaw() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.dead.Load() {
		return nil, c.necromancy("read")
	}

	buf := make([]byte, 0, 256)
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			c.Terminate()
			return nil, c.clientGone("read", err)
		}
		if b == stomp.Terminator {
			return buf, nil
		}
		if len(buf) == c.maxFrame-1 {
			return nil, c.tooMuch()
		}
		buf = append(buf, b)
	}
}

// Send writes f. A write failure, including a missed write deadline, kills
// the connection and returns ErrClientGone.
func (c *Conn) Send(f stomp.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(f)
}

// SendFinal writes f and sets the dead latch inside one write section, so
// no frame written by another goroutine can follow f on the wire. The
// socket stays open until Terminate so the peer can drain f.
func (c *Conn) SendFinal(f stomp.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := c.writeLocked(f)
	c.dead.Store(true)
	return err
}

func (c *Conn) writeLocked(f stomp.Frame) error {
	if c.dead.Load() {
		return c.necromancy("write")
	}
	if c.writeTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			c.Terminate()
			return c.clientGone("write", err)
		}
	}
	if _, err := c.nc.Write(stomp.Encode(f)); err != nil {
		c.Terminate()
		return c.clientGone("write", err)
	}
	return nil
}

// Terminate sets the dead latch and closes the socket. It is idempotent
// and unblocks a pending ReadFrame.
func (c *Conn) Terminate() {
	c.dead.Store(true)
	c.close()
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		_ = c.nc.Close()
	})
}
