// Package metrics exposes Prometheus collectors for the realtime gateway and
// the message dispatcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server collectors on a dedicated registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections         prometheus.Gauge
	broadcastDeliveries *prometheus.CounterVec
	dropped             prometheus.Counter
	messagesSent        *prometheus.CounterVec
	dispatchErrors      *prometheus.CounterVec
}

// New registers the teamchat collectors together with the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teamchat_gateway_connections",
			Help: "Number of live websocket connections.",
		}),
		broadcastDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamchat_gateway_broadcast_deliveries_total",
			Help: "Events queued to connections, by event name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamchat_gateway_dropped_total",
			Help: "Connections dropped because their send buffer was full.",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamchat_messages_sent_total",
			Help: "Messages persisted and broadcast, by origin (socket or upload).",
		}, []string{"origin"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamchat_dispatch_errors_total",
			Help: "Rejected or failed dispatcher operations, by error kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.broadcastDeliveries,
		m.dropped,
		m.messagesSent,
		m.dispatchErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// Delivered counts n queued deliveries of event.
func (m *Metrics) Delivered(event string, n int) {
	if m != nil && n > 0 {
		m.broadcastDeliveries.WithLabelValues(event).Add(float64(n))
	}
}

func (m *Metrics) Dropped(n int) {
	if m != nil && n > 0 {
		m.dropped.Add(float64(n))
	}
}

func (m *Metrics) MessageSent(origin string) {
	if m != nil {
		m.messagesSent.WithLabelValues(origin).Inc()
	}
}

func (m *Metrics) DispatchError(kind string) {
	if m != nil {
		m.dispatchErrors.WithLabelValues(kind).Inc()
	}
}
