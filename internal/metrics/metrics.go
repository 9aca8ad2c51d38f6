// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ScopeGroup   = "group"
	ScopePrivate = "private"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent       *prometheus.CounterVec
	messagesSuppressed prometheus.Counter
	filterDegraded     prometheus.Counter
	retentionDeleted   *prometheus.CounterVec
	retentionFailures  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted and fanned out, by scope.",
		}, []string{"scope"}),
		messagesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_suppressed_total",
			Help: "Private messages dropped because of a block relation.",
		}),
		filterDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_filter_degraded_total",
			Help: "Sends delivered unfiltered because the filter policy could not be read.",
		}),
		retentionDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_retention_deleted_total",
			Help: "Messages removed by the retention sweeper, by scope.",
		}, []string{"scope"}),
		retentionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_retention_failures_total",
			Help: "Retention sweeps that failed and were deferred to the next tick.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.messagesSent,
		m.messagesSuppressed,
		m.filterDegraded,
		m.retentionDeleted,
		m.retentionFailures,
	)
	return m
}

// TrackLive registers gauges sampled from the live connection table.
func (m *Metrics) TrackLive(connections, rooms func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Open realtime connections.",
		}, func() float64 { return float64(connections()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chat_rooms_active",
			Help: "Rooms and private channels with at least one member.",
		}, func() float64 { return float64(rooms()) }),
	)
}

func (m *Metrics) MessageSent(scope string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(scope).Inc()
}

func (m *Metrics) MessageSuppressed() {
	if m == nil {
		return
	}
	m.messagesSuppressed.Inc()
}

func (m *Metrics) FilterDegraded() {
	if m == nil {
		return
	}
	m.filterDegraded.Inc()
}

func (m *Metrics) RetentionDeleted(scope string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionDeleted.WithLabelValues(scope).Add(float64(n))
}

func (m *Metrics) RetentionFailed() {
	if m == nil {
		return
	}
	m.retentionFailures.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
