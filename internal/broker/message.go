// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/stompd/internal/ident"
)

// Statistics records delivery of one message to one subscriber.
//
// attempts only grows. lastFail is the time of the latest failed attempt,
// or zero if the latest attempt succeeded or none was made. Once
// attempts > 0 with a zero lastFail the entry is delivered and never
// changes again.
type Statistics struct {
	subscriber *Subscriber

	mu       sync.RWMutex
	attempts int
	lastFail time.Time
}

// Subscriber returns the target of this entry.
func (s *Statistics) Subscriber() *Subscriber { return s.subscriber }

// Attempts returns the number of delivery attempts so far.
func (s *Statistics) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// LastFail returns the time of the latest failed attempt, or zero.
func (s *Statistics) LastFail() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFail
}

// Delivered reports whether the latest attempt succeeded.
func (s *Statistics) Delivered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deliveredLocked()
}

func (s *Statistics) deliveredLocked() bool {
	return s.attempts > 0 && s.lastFail.IsZero()
}

// deliverableLocked reports whether a delivery attempt may be made now.
// The caller holds s.mu in either mode.
func (s *Statistics) deliverableLocked(now time.Time, p Policy) bool {
	if s.deliveredLocked() {
		return false
	}
	if s.attempts >= p.MaxAttempts {
		return false
	}
	if !s.lastFail.IsZero() && now.Sub(s.lastFail) <= p.RedeliveryTimeout {
		return false
	}
	return !s.subscriber.Dead()
}

// collectable reports whether the entry can be discarded: delivered,
// exhausted, or aimed at a dead subscriber.
func (s *Statistics) collectable(p Policy) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deliveredLocked() || s.attempts >= p.MaxAttempts || s.subscriber.Dead()
}

// record applies the outcome of one attempt. The caller holds s.mu.
func (s *Statistics) recordLocked(now time.Time, err error) {
	s.attempts++
	if err != nil {
		s.lastFail = now
		return
	}
	s.lastFail = time.Time{}
}

// Message is one published payload plus its per-subscriber statistics.
// Topic and content never change after creation.
type Message struct {
	id      ulid.ULID
	topic   string
	content string
	created time.Time

	mu    sync.RWMutex
	stats []*Statistics
}

func newMessage(topic, content string, subscribers []*Subscriber, now time.Time) *Message {
	if len(subscribers) == 0 {
		panic("broker: message created without subscribers")
	}
	stats := make([]*Statistics, len(subscribers))
	for i, s := range subscribers {
		stats[i] = &Statistics{subscriber: s}
	}
	return &Message{
		id:      ident.New(),
		topic:   topic,
		content: content,
		created: now,
		stats:   stats,
	}
}

// ID returns the message ID.
func (m *Message) ID() ulid.ULID { return m.id }

// Topic returns the destination topic.
func (m *Message) Topic() string { return m.topic }

// Content returns the payload.
func (m *Message) Content() string { return m.content }

// Stats returns a snapshot of the remaining statistics entries.
func (m *Message) Stats() []*Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Statistics, len(m.stats))
	copy(out, m.stats)
	return out
}

func (m *Message) statsLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stats)
}

// removeWhere replaces the statistics list with one lacking the matching
// entries. The old slice is never modified, so scans over a snapshot stay
// valid.
func (m *Message) removeWhere(match func(*Statistics) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]*Statistics, 0, len(m.stats))
	for _, st := range m.stats {
		if !match(st) {
			kept = append(kept, st)
		}
	}
	removed := len(m.stats) - len(kept)
	if removed > 0 {
		m.stats = kept
	}
	return removed
}
