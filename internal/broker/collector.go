// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import "context"

// CollectReport counts what one collector pass removed.
type CollectReport struct {
	Stats       int
	Messages    int
	Subscribers int
}

// Empty reports whether the pass removed nothing.
func (r CollectReport) Empty() bool {
	return r.Stats == 0 && r.Messages == 0 && r.Subscribers == 0
}

// Collect runs one collector pass: statistics, then messages, then
// subscribers. Each phase gathers candidates first and removes them after.
// This is safe because every criterion is a one-way latch: attempts never
// shrink, dead endpoints never revive, and a message never gains
// statistics.
func (b *Broker) Collect() CollectReport {
	var report CollectReport
	report.Stats = b.collectStats()
	report.Messages = b.collectMessages()
	report.Subscribers = b.collectSubscribers()
	if !report.Empty() {
		b.observer.Collected(report)
	}
	return report
}

func (b *Broker) collectStats() int {
	eligible := make(map[*Message]map[*Statistics]struct{})
	for _, m := range b.store.Messages() {
		for _, st := range m.Stats() {
			if !st.collectable(b.policy) {
				continue
			}
			set, ok := eligible[m]
			if !ok {
				set = make(map[*Statistics]struct{})
				eligible[m] = set
			}
			set[st] = struct{}{}
		}
	}

	removed := 0
	for m, set := range eligible {
		removed += m.removeWhere(func(st *Statistics) bool {
			_, ok := set[st]
			return ok
		})
	}
	return removed
}

func (b *Broker) collectMessages() int {
	eligible := make(map[*Message]struct{})
	for _, m := range b.store.Messages() {
		if m.statsLen() == 0 {
			eligible[m] = struct{}{}
		}
	}
	b.store.removeMessages(eligible)
	return len(eligible)
}

// collectSubscribers removes dead subscribers that no remaining statistics
// entry references, then releases their endpoints.
func (b *Broker) collectSubscribers() int {
	dead := b.registry.deadSubscribers()
	if len(dead) == 0 {
		return 0
	}

	referenced := make(map[*Subscriber]struct{})
	for _, m := range b.store.Messages() {
		for _, st := range m.Stats() {
			referenced[st.subscriber] = struct{}{}
		}
	}

	eligible := make(map[*Subscriber]struct{}, len(dead))
	for _, s := range dead {
		if _, ok := referenced[s]; !ok {
			eligible[s] = struct{}{}
		}
	}
	b.registry.removeSubscribers(eligible)
	for s := range eligible {
		s.release()
		b.logger.Debug("subscriber collected", "subscriber_id", s.id.String(), "login", s.name)
	}
	return len(eligible)
}

// RunCollector calls Collect every CollectorPeriod until ctx is cancelled.
func (b *Broker) RunCollector(ctx context.Context) error {
	return b.every(ctx, b.policy.CollectorPeriod, func() {
		if r := b.Collect(); !r.Empty() {
			b.logger.Debug("collector pass",
				"stats", r.Stats,
				"messages", r.Messages,
				"subscribers", r.Subscribers)
		}
	})
}
