package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Connection metrics
	connectionsTotal    prometheus.Counter
	connectionsActive   prometheus.Gauge
	connectionsRejected prometheus.Counter

	// Authentication metrics
	authAttemptsTotal *prometheus.CounterVec

	// Frame metrics
	framesTotal *prometheus.CounterVec

	// Messaging metrics
	messagesSentTotal     *prometheus.CounterVec
	offlineQueuedTotal    *prometheus.CounterVec
	offlineDeliveredTotal prometheus.Counter

	// Session lifecycle metrics
	sessionsEvictedTotal *prometheus.CounterVec

	// Archive metrics
	archiveRunsTotal      *prometheus.CounterVec
	messagesArchivedTotal *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_connections_total",
			Help: "Total number of client connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatd_connections_active",
			Help: "Number of currently active client connections.",
		}),
		connectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_connections_rejected_total",
			Help: "Total number of connections rejected at the connection cap.",
		}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_auth_attempts_total",
			Help: "Total number of authentication attempts.",
		}, []string{"result"}),

		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_frames_total",
			Help: "Total number of protocol frames processed.",
		}, []string{"type"}),

		messagesSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_messages_sent_total",
			Help: "Total number of chat messages accepted for delivery.",
		}, []string{"kind"}),
		offlineQueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_offline_queued_total",
			Help: "Total number of messages parked in offline queues.",
		}, []string{"kind"}),
		offlineDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatd_offline_delivered_total",
			Help: "Total number of offline messages flushed at login.",
		}),

		sessionsEvictedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_sessions_evicted_total",
			Help: "Total number of sessions evicted.",
		}, []string{"reason"}),

		archiveRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_archive_runs_total",
			Help: "Total number of archive worker ticks.",
		}, []string{"result"}),
		messagesArchivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatd_messages_archived_total",
			Help: "Total number of messages moved to cold storage.",
		}, []string{"kind"}),
	}

	// Register all metrics
	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.connectionsRejected,
		c.authAttemptsTotal,
		c.framesTotal,
		c.messagesSentTotal,
		c.offlineQueuedTotal,
		c.offlineDeliveredTotal,
		c.sessionsEvictedTotal,
		c.archiveRunsTotal,
		c.messagesArchivedTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// ConnectionRejected increments the rejected connections counter.
func (c *PrometheusCollector) ConnectionRejected() {
	c.connectionsRejected.Inc()
}

// AuthAttempt increments the authentication attempts counter.
func (c *PrometheusCollector) AuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(result).Inc()
}

// FrameProcessed increments the frame counter.
func (c *PrometheusCollector) FrameProcessed(frameType string) {
	c.framesTotal.WithLabelValues(frameType).Inc()
}

// MessageSent increments the sent-message counter.
func (c *PrometheusCollector) MessageSent(kind string) {
	c.messagesSentTotal.WithLabelValues(kind).Inc()
}

// OfflineQueued increments the offline-queue counter.
func (c *PrometheusCollector) OfflineQueued(kind string) {
	c.offlineQueuedTotal.WithLabelValues(kind).Inc()
}

// OfflineDelivered adds to the offline-delivery counter.
func (c *PrometheusCollector) OfflineDelivered(count int) {
	c.offlineDeliveredTotal.Add(float64(count))
}

// SessionEvicted increments the eviction counter.
func (c *PrometheusCollector) SessionEvicted(reason string) {
	c.sessionsEvictedTotal.WithLabelValues(reason).Inc()
}

// ArchiveRun increments the archive tick counter.
func (c *PrometheusCollector) ArchiveRun(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.archiveRunsTotal.WithLabelValues(result).Inc()
}

// MessagesArchived adds to the archived-message counter.
func (c *PrometheusCollector) MessagesArchived(kind string, count int) {
	c.messagesArchivedTotal.WithLabelValues(kind).Add(float64(count))
}
