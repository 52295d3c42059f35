// Package metrics provides Prometheus metrics for the boxing game server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus metric the server exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Classification pipeline
	framesProcessed prometheus.Counter
	framesRejected  prometheus.Counter
	classifyLatency prometheus.Histogram
	moveCandidates  *prometheus.CounterVec

	// Combat outcomes
	movesAccepted   *prometheus.CounterVec
	movesRejected   prometheus.Counter
	knockouts       prometheus.Counter
	roundsCompleted prometheus.Counter

	// Sync fanout
	broadcasts        *prometheus.CounterVec
	broadcastsDropped prometheus.Counter
	connectionsActive prometheus.Gauge
	connectionsEvict  *prometheus.CounterVec
	playersRegistered prometheus.Gauge

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "punchcam",
		subsystem:        "game",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.framesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_processed_total",
		Help:      "Total number of pose frames accepted for classification",
	})

	m.framesRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_rejected_total",
		Help:      "Total number of pose frames rejected as malformed",
	})

	m.classifyLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "classify_latency_milliseconds",
		Help:      "Histogram of per-frame classification latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.moveCandidates = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "move_candidates_total",
			Help:      "Total number of move candidates emitted by the classifier",
		},
		[]string{"move"},
	)

	m.movesAccepted = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "moves_accepted_total",
			Help:      "Total number of moves the arbiter applied to the session",
		},
		[]string{"move"},
	)

	m.movesRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "moves_rejected_total",
		Help:      "Total number of candidate sets discarded by cooldown or thresholds",
	})

	m.knockouts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "knockouts_total",
		Help:      "Total number of knockouts",
	})

	m.roundsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rounds_completed_total",
		Help:      "Total number of rounds that ran to the bell",
	})

	m.broadcasts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast messages by kind",
		},
		[]string{"kind"},
	)

	m.broadcastsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcasts_dropped_total",
		Help:      "Total number of connections dropped for not draining their outbox",
	})

	m.connectionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "connections_active",
		Help:      "Current number of live websocket connections",
	})

	m.connectionsEvict = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "connections_evicted_total",
			Help:      "Total number of connections evicted by reason",
		},
		[]string{"reason"},
	)

	m.playersRegistered = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "players_registered",
		Help:      "Current number of registered players",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordFrameProcessed increments the processed frame counter.
func RecordFrameProcessed() {
	globalManager.framesProcessed.Inc()
}

// RecordFrameRejected increments the malformed frame counter.
func RecordFrameRejected() {
	globalManager.framesRejected.Inc()
}

// RecordClassifyLatency records per-frame classification latency in milliseconds.
func RecordClassifyLatency(latencyMs float64) {
	globalManager.classifyLatency.Observe(latencyMs)
}

// RecordMoveCandidate counts a classifier-emitted candidate by move name.
func RecordMoveCandidate(move string) {
	globalManager.moveCandidates.WithLabelValues(move).Inc()
}

// RecordMoveAccepted counts an arbiter-accepted move by move name.
func RecordMoveAccepted(move string) {
	globalManager.movesAccepted.WithLabelValues(move).Inc()
}

// RecordMoveRejected counts a candidate set the arbiter discarded.
func RecordMoveRejected() {
	globalManager.movesRejected.Inc()
}

// RecordKnockout increments the knockout counter.
func RecordKnockout() {
	globalManager.knockouts.Inc()
}

// RecordRoundCompleted increments the completed round counter.
func RecordRoundCompleted() {
	globalManager.roundsCompleted.Inc()
}

// RecordBroadcast counts one broadcast message by kind.
func RecordBroadcast(kind string) {
	globalManager.broadcasts.WithLabelValues(kind).Inc()
}

// RecordBroadcastDropped counts a connection dropped for a full outbox.
func RecordBroadcastDropped() {
	globalManager.broadcastsDropped.Inc()
}

// UpdateConnectionCount sets the live connection gauge.
func UpdateConnectionCount(count int) {
	globalManager.connectionsActive.Set(float64(count))
}

// RecordEviction counts an evicted connection by reason.
func RecordEviction(reason string) {
	globalManager.connectionsEvict.WithLabelValues(reason).Inc()
}

// UpdatePlayerCount sets the registered player gauge.
func UpdatePlayerCount(count int) {
	globalManager.playersRegistered.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
