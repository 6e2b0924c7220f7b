// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package broker holds the shared topic, message and subscriber state and
// the two background loops that work on it.
//
// Sessions publish and subscribe through a Broker. The distributor pushes
// each in-flight message to every subscriber that was live when it was
// published, retrying failed attempts after a cooldown up to a cap. The
// collector discards delivery records, messages and subscribers once they
// can no longer matter, always in that order.
package broker

import (
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Observer receives broker events. Implementations must be safe for
// concurrent use.
type Observer interface {
	TopicCreated(topic string)
	PublishAccepted(topic string, subscribers int)
	PublishRejected(topic string, err error)
	DeliveryAttempted(topic string, err error)
	Collected(report CollectReport)
}

type nopObserver struct{}

func (nopObserver) TopicCreated(string)             {}
func (nopObserver) PublishAccepted(string, int)     {}
func (nopObserver) PublishRejected(string, error)   {}
func (nopObserver) DeliveryAttempted(string, error) {}
func (nopObserver) Collected(CollectReport)         {}

// Broker is the process-wide context owning the registry and the store.
type Broker struct {
	registry *Registry
	store    *Store
	policy   Policy
	clock    Clock
	observer Observer
	logger   *slog.Logger
}

// Option configures a Broker during construction.
type Option func(*Broker)

// WithPolicy overrides DefaultPolicy. Non-positive fields keep their defaults.
func WithPolicy(p Policy) Option {
	return func(b *Broker) {
		b.policy = p.withDefaults()
	}
}

// WithClock sets the clock used for backoff decisions.
func WithClock(c Clock) Option {
	return func(b *Broker) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(b *Broker) {
		if o != nil {
			b.observer = o
		}
	}
}

// WithLogger sets the logger for background loops.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates an empty broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		registry: NewRegistry(),
		store:    NewStore(),
		policy:   DefaultPolicy(),
		clock:    SystemClock{},
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry returns the topic table.
func (b *Broker) Registry() *Registry { return b.registry }

// Store returns the in-flight message store.
func (b *Broker) Store() *Store { return b.store }

// Policy returns the effective policy.
func (b *Broker) Policy() Policy { return b.policy }

// Subscribe adds s to topic, creating the topic on first use.
func (b *Broker) Subscribe(topic string, s *Subscriber) {
	if b.registry.Subscribe(topic, s) {
		b.observer.TopicCreated(topic)
	}
}

// Publish creates a message for every live subscriber of topic. It fails
// with ErrTopicNotFound if the topic was never created and with
// ErrNoSubscribers if no subscriber is live. Subscribers that join later
// never see this message.
func (b *Broker) Publish(topic, content string) (ulid.ULID, error) {
	live, err := b.registry.LiveSubscribers(topic)
	if err == nil && len(live) == 0 {
		err = noSubscribers(topic)
	}
	if err != nil {
		b.observer.PublishRejected(topic, err)
		return ulid.ULID{}, err
	}
	m := newMessage(topic, content, live, b.clock.Now())
	b.store.Append(m)
	b.observer.PublishAccepted(topic, len(live))
	return m.id, nil
}

// Disconnect withdraws s from every topic and drops its pending deliveries.
// The caller still owns the endpoint.
func (b *Broker) Disconnect(s *Subscriber) {
	topics := b.registry.UnsubscribeEverywhere(s)
	stats := b.store.RemoveSubscriber(s)
	b.logger.Debug("subscriber withdrawn",
		"subscriber_id", s.id.String(),
		"login", s.name,
		"topic_entries", topics,
		"pending", stats)
}

// Topics returns a snapshot of every topic.
func (b *Broker) Topics() []TopicInfo { return b.registry.Topics() }

// TopicCount returns the number of topics ever created.
func (b *Broker) TopicCount() int { return b.registry.Len() }

// InFlight returns the number of messages not yet collected.
func (b *Broker) InFlight() int { return b.store.Len() }

// StatInfo describes one delivery record for diagnostics.
type StatInfo struct {
	SubscriberID string    `json:"subscriber_id"`
	Login        string    `json:"login"`
	Attempts     int       `json:"attempts"`
	LastFail     time.Time `json:"last_fail,omitzero"`
	Delivered    bool      `json:"delivered"`
	Dead         bool      `json:"dead"`
	// Sending is set when a delivery attempt held the record at snapshot
	// time. Attempts, LastFail and Delivered are then left zero.
	Sending      bool      `json:"sending,omitempty"`
}

// MessageInfo describes one in-flight message for diagnostics.
type MessageInfo struct {
	ID      string     `json:"id"`
	Topic   string     `json:"topic"`
	Created time.Time  `json:"created"`
	Stats   []StatInfo `json:"stats"`
}

// Messages returns a snapshot of every in-flight message. It never waits on
// a record whose delivery is blocked in Send; such records are reported
// with Sending set.
func (b *Broker) Messages() []MessageInfo {
	msgs := b.store.Messages()
	out := make([]MessageInfo, 0, len(msgs))
	for _, m := range msgs {
		info := MessageInfo{ID: m.id.String(), Topic: m.topic, Created: m.created}
		for _, st := range m.Stats() {
			info.Stats = append(info.Stats, st.snapshot())
		}
		out = append(out, info)
	}
	return out
}

func (s *Statistics) snapshot() StatInfo {
	info := StatInfo{
		SubscriberID: s.subscriber.id.String(),
		Login:        s.subscriber.name,
		Dead:         s.subscriber.Dead(),
	}
	if !s.mu.TryRLock() {
		info.Sending = true
		return info
	}
	defer s.mu.RUnlock()
	info.Attempts = s.attempts
	info.LastFail = s.lastFail
	info.Delivered = s.deliveredLocked()
	return info
}
