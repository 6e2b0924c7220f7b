// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package broker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holomush/stompd/internal/stomp"
)

var errSendFailed = errors.New("send failed")

// fakeEndpoint records frames and can be told to fail or die.
type fakeEndpoint struct {
	mu         sync.Mutex
	dead       bool
	failing    bool
	frames     []stomp.Frame
	terminated int
}

func (e *fakeEndpoint) Send(f stomp.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead || e.failing {
		return errSendFailed
	}
	e.frames = append(e.frames, f)
	return nil
}

func (e *fakeEndpoint) IsDead() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dead
}

func (e *fakeEndpoint) Terminate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dead = true
	e.terminated++
}

func (e *fakeEndpoint) kill() {
	e.mu.Lock()
	e.dead = true
	e.mu.Unlock()
}

func (e *fakeEndpoint) setFailing(v bool) {
	e.mu.Lock()
	e.failing = v
	e.mu.Unlock()
}

func (e *fakeEndpoint) received() []stomp.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]stomp.Frame, len(e.frames))
	copy(out, e.frames)
	return out
}

func (e *fakeEndpoint) terminations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestBroker(t *testing.T, opts ...Option) (*Broker, *ManualClock) {
	t.Helper()
	clock := NewManualClock(epoch)
	return New(append([]Option{WithClock(clock)}, opts...)...), clock
}

func newTestSubscriber(name string) (*Subscriber, *fakeEndpoint) {
	ep := &fakeEndpoint{}
	return NewSubscriber(name, ep), ep
}

// recordingObserver counts broker events.
type recordingObserver struct {
	mu        sync.Mutex
	created   []string
	accepted  int
	rejected  []error
	delivered int
	failed    int
	collected CollectReport
}

func (o *recordingObserver) TopicCreated(topic string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, topic)
}

func (o *recordingObserver) PublishAccepted(string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accepted++
}

func (o *recordingObserver) PublishRejected(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, err)
}

func (o *recordingObserver) DeliveryAttempted(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed++
		return
	}
	o.delivered++
}

func (o *recordingObserver) Collected(r CollectReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.collected.Stats += r.Stats
	o.collected.Messages += r.Messages
	o.collected.Subscribers += r.Subscribers
}

// stalledEndpoint blocks every Send until release is closed.
type stalledEndpoint struct {
	entered chan struct{}
	release chan struct{}
}

func newStalledEndpoint() *stalledEndpoint {
	return &stalledEndpoint{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (e *stalledEndpoint) Send(stomp.Frame) error {
	e.entered <- struct{}{}
	<-e.release
	return nil
}

func (e *stalledEndpoint) IsDead() bool { return false }
func (e *stalledEndpoint) Terminate()   {}
