// Package metrics exposes the Prometheus counters and gauges for both
// binaries, grounded on the reference stack's own prometheus/client_golang
// usage across its prototype servers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds every metric the manager process exposes.
type Manager struct {
	ChannelsTotal        prometheus.Gauge
	WorkersTotal         prometheus.Gauge
	ListenRequestsTotal  *prometheus.CounterVec // labels: result
	ReportStreamDuration prometheus.Histogram
	RateLimitedTotal     prometheus.Counter
}

// NewManager registers and returns the manager's metrics on reg. Passing
// a dedicated registry (rather than the global default) keeps tests
// hermetic and lets a process run more than one Manager concurrently.
func NewManager(reg prometheus.Registerer) *Manager {
	m := &Manager{
		ChannelsTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "chatmesh",
			Subsystem: "manager",
			Name:      "channels_total",
			Help:      "Number of channels currently registered with the manager.",
		}),
		WorkersTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "chatmesh",
			Subsystem: "manager",
			Name:      "workers_total",
			Help:      "Number of chat workers currently reporting to the manager.",
		}),
		ListenRequestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatmesh",
			Subsystem: "manager",
			Name:      "listen_requests_total",
			Help:      "Listen RPCs handled, partitioned by result.",
		}, []string{"result"}),
		ReportStreamDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatmesh",
			Subsystem: "manager",
			Name:      "report_stream_duration_seconds",
			Help:      "Lifetime of a worker's Report stream, from open to close.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		RateLimitedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "chatmesh",
			Subsystem: "manager",
			Name:      "rate_limited_total",
			Help:      "Listen calls rejected by the fixed-window rate limiter.",
		}),
	}
	return m
}

// Worker holds every metric a chat worker process exposes.
type Worker struct {
	ConnectTotal         *prometheus.CounterVec // labels: result
	ActiveConnections    prometheus.Gauge
	BroadcastMessages    prometheus.Counter
	BroadcastDroppedTotal *prometheus.CounterVec // labels: reason
	ChannelCoresTotal    prometheus.Gauge
}

// NewWorker registers and returns a worker's metrics on reg.
func NewWorker(reg prometheus.Registerer) *Worker {
	return &Worker{
		ConnectTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatmesh",
			Subsystem: "worker",
			Name:      "connect_total",
			Help:      "Connect RPC attempts, partitioned by result.",
		}, []string{"result"}),
		ActiveConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "chatmesh",
			Subsystem: "worker",
			Name:      "active_connections",
			Help:      "Client Connect streams currently open on this worker.",
		}),
		BroadcastMessages: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "chatmesh",
			Subsystem: "worker",
			Name:      "broadcast_messages_total",
			Help:      "Messages published to any channel's broadcast topic.",
		}),
		BroadcastDroppedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatmesh",
			Subsystem: "worker",
			Name:      "broadcast_dropped_total",
			Help:      "Broadcast deliveries dropped, partitioned by reason.",
		}, []string{"reason"}),
		ChannelCoresTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "chatmesh",
			Subsystem: "worker",
			Name:      "channel_cores_total",
			Help:      "Channels currently held locally by this worker.",
		}),
	}
}
