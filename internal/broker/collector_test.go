// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCollect_DeliveredMessage(t *testing.T) {
	b, _ := newTestBroker(t)
	a, _ := newTestSubscriber("a")
	publishTo(t, b, "stocks", "price: 1", a)

	assert.Equal(t, CollectReport{}, b.Collect(), "undelivered entry stays")
	assert.Equal(t, 1, b.InFlight())

	b.Distribute()
	assert.Equal(t, CollectReport{Stats: 1, Messages: 1}, b.Collect())
	assert.Equal(t, 0, b.InFlight())

	assert.Equal(t, CollectReport{}, b.Collect(), "second pass with no change removes nothing")
}

func TestCollect_PartialDelivery(t *testing.T) {
	b, _ := newTestBroker(t)
	a, _ := newTestSubscriber("a")
	c, epC := newTestSubscriber("c")
	m := publishTo(t, b, "stocks", "price: 1", a, c)
	epC.setFailing(true)

	b.Distribute()

	assert.Equal(t, CollectReport{Stats: 1}, b.Collect())
	stats := m.Stats()
	require.Len(t, stats, 1)
	assert.Same(t, c, stats[0].Subscriber())
	assert.Equal(t, 1, b.InFlight())
}

func TestCollect_ExhaustedEntry(t *testing.T) {
	b, clock := newTestBroker(t, WithPolicy(Policy{MaxAttempts: 2, RedeliveryTimeout: time.Second}))
	a, ep := newTestSubscriber("a")
	publishTo(t, b, "stocks", "price: 1", a)
	ep.setFailing(true)

	b.Distribute()
	assert.Equal(t, CollectReport{}, b.Collect())

	clock.Advance(2 * time.Second)
	b.Distribute()
	assert.Equal(t, CollectReport{Stats: 1, Messages: 1}, b.Collect())

	topics := b.Topics()
	require.Len(t, topics, 1)
	assert.Equal(t, 1, topics[0].Subscribers, "live subscriber is never collected")
	assert.Equal(t, 0, ep.terminations())
}

func TestCollect_DeadSubscriber(t *testing.T) {
	obs := &recordingObserver{}
	b, _ := newTestBroker(t, WithObserver(obs))
	a, epA := newTestSubscriber("a")
	c, _ := newTestSubscriber("c")
	publishTo(t, b, "stocks", "price: 1", a, c)
	b.Subscribe("news", a)
	b.Subscribe("news", a)
	epA.kill()

	report := b.Collect()

	assert.Equal(t, CollectReport{Stats: 1, Subscribers: 1}, report)
	assert.Equal(t, 1, epA.terminations(), "collected subscriber releases its endpoint once")
	stocks, _ := b.Registry().Subscribers("stocks")
	news, _ := b.Registry().Subscribers("news")
	assert.Equal(t, []*Subscriber{c}, stocks)
	assert.Empty(t, news)
	assert.Equal(t, report, obs.collected)

	assert.Equal(t, CollectReport{}, b.Collect())
	assert.Equal(t, 1, epA.terminations())
}

func TestCollect_SubscriberStillReferencedIsKept(t *testing.T) {
	b, _ := newTestBroker(t)
	a, epA := newTestSubscriber("a")
	m := publishTo(t, b, "stocks", "price: 1", a)
	epA.kill()

	assert.Equal(t, 0, b.collectSubscribers())
	assert.Len(t, m.Stats(), 1)
	subs, _ := b.Registry().Subscribers("stocks")
	assert.Len(t, subs, 1)

	assert.Equal(t, CollectReport{Stats: 1, Messages: 1, Subscribers: 1}, b.Collect())
}

func TestCollect_TopicsPersist(t *testing.T) {
	b, _ := newTestBroker(t)
	a, epA := newTestSubscriber("a")
	b.Subscribe("stocks", a)
	epA.kill()

	b.Collect()

	assert.Equal(t, []TopicInfo{{Name: "stocks"}}, b.Topics())
}

func TestRunCollector(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(WithPolicy(Policy{CollectorPeriod: 5 * time.Millisecond}))
	a, ep := newTestSubscriber("a")
	b.Subscribe("stocks", a)
	ep.kill()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.RunCollector(ctx) }()

	require.Eventually(t, func() bool { return ep.terminations() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
