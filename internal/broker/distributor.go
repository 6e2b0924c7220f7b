// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import (
	"context"
	"time"

	"github.com/holomush/stompd/internal/stomp"
)

// DistributeReport summarizes one distributor pass.
type DistributeReport struct {
	Delivered int
	Failed    int
}

// Distribute makes one delivery attempt for every eligible statistics
// entry, oldest message first.
func (b *Broker) Distribute() DistributeReport {
	var report DistributeReport
	for _, m := range b.store.Messages() {
		frame := stomp.Message(m.topic, m.content)
		for _, st := range m.Stats() {
			attempted, err := b.deliver(m, st, frame)
			switch {
			case !attempted:
			case err != nil:
				report.Failed++
			default:
				report.Delivered++
			}
		}
	}
	return report
}

// deliver checks eligibility under the read lock, then again under the
// write lock, and sends while still holding it so one entry is never
// attempted twice at once.
func (b *Broker) deliver(m *Message, st *Statistics, frame stomp.Frame) (bool, error) {
	now := b.clock.Now()

	st.mu.RLock()
	ok := st.deliverableLocked(now, b.policy)
	st.mu.RUnlock()
	if !ok {
		return false, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.deliverableLocked(now, b.policy) {
		return false, nil
	}
	err := st.subscriber.endpoint.Send(frame)
	st.recordLocked(now, err)
	b.observer.DeliveryAttempted(m.topic, err)
	if err != nil {
		b.logger.Debug("delivery failed",
			"message_id", m.id.String(),
			"topic", m.topic,
			"login", st.subscriber.name,
			"attempts", st.attempts,
			"error", err)
	}
	return true, err
}

// RunDistributor calls Distribute every DistributorPeriod until ctx is
// cancelled.
func (b *Broker) RunDistributor(ctx context.Context) error {
	return b.every(ctx, b.policy.DistributorPeriod, func() {
		if r := b.Distribute(); r.Delivered+r.Failed > 0 {
			b.logger.Debug("distributor pass", "delivered", r.Delivered, "failed", r.Failed)
		}
	})
}

func (b *Broker) every(ctx context.Context, period time.Duration, pass func()) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pass()
		}
	}
}
