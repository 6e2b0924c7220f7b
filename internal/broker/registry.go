// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import (
	"slices"
	"strings"
	"sync"
)

// Topic is a named subscriber list. Topics are never deleted, even when
// their list becomes empty.
type Topic struct {
	name string

	mu          sync.RWMutex
	subscribers []*Subscriber
}

// Name returns the topic name.
func (t *Topic) Name() string { return t.name }

func (t *Topic) add(s *Subscriber) {
	t.mu.Lock()
	t.subscribers = append(t.subscribers, s)
	t.mu.Unlock()
}

// removeWhere swaps in a new list without the matching entries. Readers
// holding the old slice are unaffected.
func (t *Topic) removeWhere(match func(*Subscriber) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := make([]*Subscriber, 0, len(t.subscribers))
	for _, s := range t.subscribers {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	removed := len(t.subscribers) - len(kept)
	if removed > 0 {
		t.subscribers = kept
	}
	return removed
}

func (t *Topic) snapshot() []*Subscriber {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.subscribers)
}

// Registry is the topic table.
//
// Lock order: the table lock is taken before any topic lock, and a topic
// lock is only taken while the table lock is held in either mode.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]*Topic
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]*Topic)}
}

// Subscribe appends s to the named topic, creating the topic if needed.
// Repeated calls append repeated entries. It reports whether the topic was
// created by this call.
func (r *Registry) Subscribe(topic string, s *Subscriber) (created bool) {
	r.mu.RLock()
	if t, ok := r.topics[topic]; ok {
		t.add(s)
		r.mu.RUnlock()
		return false
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[topic]
	if !ok {
		t = &Topic{name: topic}
		r.topics[topic] = t
		created = true
	}
	t.add(s)
	return created
}

// UnsubscribeEverywhere removes every occurrence of s from every topic.
func (r *Registry) UnsubscribeEverywhere(s *Subscriber) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	removed := 0
	for _, t := range r.topics {
		removed += t.removeWhere(func(other *Subscriber) bool { return other == s })
	}
	return removed
}

// LiveSubscribers returns the subscribers of topic whose endpoints are not
// dead, in subscription order.
func (r *Registry) LiveSubscribers(topic string) ([]*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[topic]
	if !ok {
		return nil, topicNotFound(topic)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	live := make([]*Subscriber, 0, len(t.subscribers))
	for _, s := range t.subscribers {
		if !s.Dead() {
			live = append(live, s)
		}
	}
	return live, nil
}

// Subscribers returns every entry of topic, dead ones included.
func (r *Registry) Subscribers(topic string) ([]*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[topic]
	if !ok {
		return nil, topicNotFound(topic)
	}
	return t.snapshot(), nil
}

// Len returns the number of topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// TopicInfo describes one topic for diagnostics.
type TopicInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
	Live        int    `json:"live"`
}

// Topics returns a snapshot of every topic sorted by name.
func (r *Registry) Topics() []TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TopicInfo, 0, len(r.topics))
	for _, t := range r.topics {
		subs := t.snapshot()
		info := TopicInfo{Name: t.name, Subscribers: len(subs)}
		for _, s := range subs {
			if !s.Dead() {
				info.Live++
			}
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b TopicInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// deadSubscribers returns each distinct subscriber that sits in some topic
// and whose endpoint is dead.
func (r *Registry) deadSubscribers() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*Subscriber]struct{})
	var dead []*Subscriber
	for _, t := range r.topics {
		for _, s := range t.snapshot() {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			if s.Dead() {
				dead = append(dead, s)
			}
		}
	}
	return dead
}

// removeSubscribers drops every entry of the given subscribers from every
// topic.
func (r *Registry) removeSubscribers(set map[*Subscriber]struct{}) {
	if len(set) == 0 {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.topics {
		t.removeWhere(func(s *Subscriber) bool {
			_, ok := set[s]
			return ok
		})
	}
}
