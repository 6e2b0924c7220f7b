// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import "sync"

// Store holds in-flight messages in publish order.
//
// Removal always installs a fresh slice, so a snapshot taken under the
// read lock can be walked after the lock is released.
type Store struct {
	mu       sync.RWMutex
	messages []*Message
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Append adds m at the tail.
func (s *Store) Append(m *Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
}

// Len returns the number of in-flight messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Messages returns the in-flight messages in publish order.
func (s *Store) Messages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// RemoveSubscriber drops every statistics entry aimed at sub.
func (s *Store) RemoveSubscriber(sub *Subscriber) int {
	removed := 0
	for _, m := range s.Messages() {
		removed += m.removeWhere(func(st *Statistics) bool { return st.subscriber == sub })
	}
	return removed
}

func (s *Store) removeMessages(set map[*Message]struct{}) {
	if len(set) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]*Message, 0, len(s.messages))
	for _, m := range s.messages {
		if _, ok := set[m]; !ok {
			kept = append(kept, m)
		}
	}
	s.messages = kept
}
