package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry
// ARCHITECTURAL DISCOVERY: a registry per instance keeps tests and multiple
// applications in one process from colliding on the default registerer
type Metrics struct {
	Registry *prometheus.Registry

	MessagesRouted    prometheus.Counter
	MessagesRejected  *prometheus.CounterVec
	EventsBroadcast   prometheus.Counter
	ActiveConnections prometheus.Gauge
	LoginDecisions    *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connected",
			Name:      "messages_routed_total",
			Help:      "Messages persisted and published to subscribers.",
		}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connected",
			Name:      "messages_rejected_total",
			Help:      "Messages refused before persistence, by reason.",
		}, []string{"reason"}),
		EventsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "connected",
			Name:      "realtime_events_delivered_total",
			Help:      "Realtime insert events written to subscriber connections.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "connected",
			Name:      "realtime_connections",
			Help:      "Open realtime websocket connections.",
		}),
		LoginDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connected",
			Name:      "session_decisions_total",
			Help:      "Session router outcomes, by destination screen.",
		}, []string{"next"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "connected",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "connected",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesRouted,
		m.MessagesRejected,
		m.EventsBroadcast,
		m.ActiveConnections,
		m.LoginDecisions,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
