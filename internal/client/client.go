// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package client is a small client for the broker's wire protocol.
package client

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/stompd/internal/conn"
	"github.com/holomush/stompd/internal/stomp"
)

// Failures reported by Dial and Disconnect.
var (
	// ErrRejected means the broker answered with an ERROR frame.
	ErrRejected = errors.New("rejected by broker")
	// ErrUnexpectedFrame means the broker answered with a frame the client
	// did not expect at that point.
	ErrUnexpectedFrame = errors.New("unexpected frame")
)

// Dial defaults.
const (
	DefaultRetries     = 5
	DefaultBackoffBase = 100 * time.Millisecond
	DefaultBackoffCap  = 2 * time.Second
)

type options struct {
	retries     uint64
	backoffBase time.Duration
	backoffCap  time.Duration
	connOpts    []conn.Option
}

// Option configures Dial.
type Option func(*options)

// WithRetries sets how many times a failed dial is retried.
func WithRetries(n uint64) Option {
	return func(o *options) { o.retries = n }
}

// WithBackoff sets the exponential backoff between dial attempts.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(o *options) {
		if base > 0 {
			o.backoffBase = base
		}
		if maxDelay > 0 {
			o.backoffCap = maxDelay
		}
	}
}

// WithConnOptions applies opts to the underlying connection.
func WithConnOptions(opts ...conn.Option) Option {
	return func(o *options) { o.connOpts = append(o.connOpts, opts...) }
}

// Client is one logged-in connection to a broker. Receive may run in its
// own goroutine alongside the sending methods.
type Client struct {
	conn  *conn.Conn
	login string
}

// Dial connects to addr and logs in. Dialing is retried with exponential
// backoff; a rejected login is not.
func Dial(ctx context.Context, addr, login string, opts ...Option) (*Client, error) {
	o := options{
		retries:     DefaultRetries,
		backoffBase: DefaultBackoffBase,
		backoffCap:  DefaultBackoffCap,
	}
	for _, opt := range opts {
		opt(&o)
	}

	backoff := retry.NewExponential(o.backoffBase)
	backoff = retry.WithCappedDuration(o.backoffCap, backoff)
	backoff = retry.WithMaxRetries(o.retries, backoff)

	var nc net.Conn
	var d net.Dialer
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var dialErr error
		nc, dialErr = d.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			slog.Debug("dial failed, retrying", "addr", addr, "error", dialErr)
			return retry.RetryableError(dialErr)
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("DIAL_FAILED").With("addr", addr).Wrap(err)
	}

	c := &Client{conn: conn.New(nc, o.connOpts...), login: login}
	if err := c.handshake(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.conn.Terminate)
	defer stop()

	if err := c.conn.Send(stomp.Connect(c.login)); err != nil {
		return err
	}
	f, err := c.conn.ReadFrame()
	if err != nil {
		return err
	}
	switch f.Command {
	case stomp.CommandConnected:
		return nil
	case stomp.CommandError:
		return oops.Code("CONNECT_REJECTED").
			With("reason", f.Header(stomp.HeaderMessage)).
			Wrap(ErrRejected)
	default:
		return oops.Code("UNEXPECTED_FRAME").
			With("command", string(f.Command)).
			Wrap(ErrUnexpectedFrame)
	}
}

// Login returns the name the client logged in with.
func (c *Client) Login() string { return c.login }

// Subscribe joins topic. The broker sends no acknowledgement.
func (c *Client) Subscribe(topic string) error {
	return c.conn.Send(stomp.Subscribe(topic))
}

// Send publishes body to topic. A rejection arrives later as an ERROR
// frame through Receive.
func (c *Client) Send(topic, body string) error {
	return c.conn.Send(stomp.Send(topic, body))
}

// Receive blocks for the next frame from the broker.
func (c *Client) Receive() (stomp.Frame, error) {
	return c.conn.ReadFrame()
}

// Disconnect asks the broker to end the session and waits for its receipt.
// Frames that arrive before the receipt are returned in order. The
// connection is closed either way. Receive must not be running.
func (c *Client) Disconnect() ([]stomp.Frame, error) {
	defer c.Close()

	if err := c.conn.Send(stomp.Disconnect()); err != nil {
		return nil, err
	}
	var pending []stomp.Frame
	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			return pending, err
		}
		if f.Command == stomp.CommandReceipt {
			return pending, nil
		}
		pending = append(pending, f)
	}
}

// Close drops the connection without a DISCONNECT.
func (c *Client) Close() {
	c.conn.Terminate()
}
