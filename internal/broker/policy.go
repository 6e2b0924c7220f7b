// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import (
	"sync"
	"time"
)

// Delivery and collection defaults.
const (
	DefaultMaxAttempts       = 10
	DefaultRedeliveryTimeout = 2 * time.Second
	DefaultDistributorPeriod = time.Second
	DefaultCollectorPeriod   = time.Second
)

// Policy bounds redelivery and paces the background loops.
type Policy struct {
	// MaxAttempts caps delivery attempts per subscriber per message.
	MaxAttempts int
	// RedeliveryTimeout is how long a failed delivery waits before the
	// next attempt. The wait must be strictly exceeded.
	RedeliveryTimeout time.Duration
	DistributorPeriod time.Duration
	CollectorPeriod   time.Duration
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       DefaultMaxAttempts,
		RedeliveryTimeout: DefaultRedeliveryTimeout,
		DistributorPeriod: DefaultDistributorPeriod,
		CollectorPeriod:   DefaultCollectorPeriod,
	}
}

// withDefaults fills non-positive fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.RedeliveryTimeout <= 0 {
		p.RedeliveryTimeout = d.RedeliveryTimeout
	}
	if p.DistributorPeriod <= 0 {
		p.DistributorPeriod = d.DistributorPeriod
	}
	if p.CollectorPeriod <= 0 {
		p.CollectorPeriod = d.CollectorPeriod
	}
	return p
}

// Clock supplies the current time for backoff decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock set to start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
