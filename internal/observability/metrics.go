// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/stompd/internal/broker"
)

// Label values for stompd_publish_total.
const (
	PublishAccepted      = "accepted"
	PublishTopicNotFound = "topic_not_found"
	PublishNoSubscribers = "no_subscribers"
	PublishOther         = "error"
)

// Metrics holds the broker's Prometheus collectors. All methods are safe on
// a nil *Metrics, which records nothing.
type Metrics struct {
	ConnectionsTotal prometheus.Counter
	FramesTotal      *prometheus.CounterVec
	PublishTotal     *prometheus.CounterVec
	DeliveriesTotal  *prometheus.CounterVec
	CollectedTotal   *prometheus.CounterVec
	TopicsCreated    prometheus.Counter

	reg prometheus.Registerer
}

var _ broker.Observer = (*Metrics)(nil)

// NewMetrics creates and registers the broker metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stompd_connections_total",
			Help: "Total number of accepted client connections",
		}),
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stompd_frames_total",
				Help: "Total number of frames read from clients by command",
			},
			[]string{"command"},
		),
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stompd_publish_total",
				Help: "Total number of SEND requests by result",
			},
			[]string{"result"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stompd_deliveries_total",
				Help: "Total number of delivery attempts by result",
			},
			[]string{"result"},
		),
		CollectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stompd_collected_total",
				Help: "Total number of records reclaimed by the collector by kind",
			},
			[]string{"kind"},
		),
		TopicsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stompd_topics_created_total",
			Help: "Total number of topics created",
		}),
		reg: reg,
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.FramesTotal,
		m.PublishTotal,
		m.DeliveriesTotal,
		m.CollectedTotal,
		m.TopicsCreated,
	)
	return m
}

// BrokerState is the read side of a broker used for gauges and debug pages.
type BrokerState interface {
	TopicCount() int
	InFlight() int
	Topics() []broker.TopicInfo
	Messages() []broker.MessageInfo
}

// TrackBroker registers gauges sampled from state at scrape time.
func (m *Metrics) TrackBroker(state BrokerState) {
	if m == nil || state == nil {
		return
	}
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stompd_messages_inflight",
			Help: "Messages published but not yet collected",
		}, func() float64 { return float64(state.InFlight()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stompd_topics",
			Help: "Topics currently known to the broker",
		}, func() float64 { return float64(state.TopicCount()) }),
	)
}

// ConnectionOpened counts an accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
}

// FrameReceived counts one frame read from a client.
func (m *Metrics) FrameReceived(command string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(command).Inc()
}

// TopicCreated implements broker.Observer.
func (m *Metrics) TopicCreated(string) {
	if m == nil {
		return
	}
	m.TopicsCreated.Inc()
}

// PublishAccepted implements broker.Observer.
func (m *Metrics) PublishAccepted(string, int) {
	if m == nil {
		return
	}
	m.PublishTotal.WithLabelValues(PublishAccepted).Inc()
}

// PublishRejected implements broker.Observer.
func (m *Metrics) PublishRejected(_ string, err error) {
	if m == nil {
		return
	}
	result := PublishOther
	switch {
	case errors.Is(err, broker.ErrTopicNotFound):
		result = PublishTopicNotFound
	case errors.Is(err, broker.ErrNoSubscribers):
		result = PublishNoSubscribers
	}
	m.PublishTotal.WithLabelValues(result).Inc()
}

// DeliveryAttempted implements broker.Observer.
func (m *Metrics) DeliveryAttempted(_ string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.DeliveriesTotal.WithLabelValues("failed").Inc()
		return
	}
	m.DeliveriesTotal.WithLabelValues("ok").Inc()
}

// Collected implements broker.Observer.
func (m *Metrics) Collected(r broker.CollectReport) {
	if m == nil {
		return
	}
	m.CollectedTotal.WithLabelValues("stats").Add(float64(r.Stats))
	m.CollectedTotal.WithLabelValues("messages").Add(float64(r.Messages))
	m.CollectedTotal.WithLabelValues("subscribers").Add(float64(r.Subscribers))
}
