// Package metrics provides Prometheus metrics for the evhist lookup service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the evhist service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Lookup metrics - the core business numbers
	lookupsTotal   *prometheus.CounterVec
	lookupLatency  prometheus.Histogram
	staleOffsets   prometheus.Counter
	oversizeRows   prometheus.Counter
	lookupRejected prometheus.Counter

	// Index metrics - load/rebuild/persist health
	indexRebuilds        prometheus.Counter
	indexRebuildDuration prometheus.Histogram
	indexEntries         prometheus.Gauge
	indexLoadErrors      prometheus.Counter
	indexPersistErrors   prometheus.Counter
	indexLastRebuildUnix prometheus.Gauge
	recordParseErrors    prometheus.Counter

	// Memo metrics - result cache behaviour
	memoHits      prometheus.Counter
	memoMisses    prometheus.Counter
	memoEvictions prometheus.Counter
	memoSize      prometheus.Gauge

	// Refresh pipeline metrics - queue and workers
	refreshQueueSize     prometheus.Gauge
	refreshQueueCapacity prometheus.Gauge
	refreshEnqueued      prometheus.Counter
	refreshDropped       prometheus.Counter
	refreshRuns          prometheus.Counter
	refreshSkipped       prometheus.Counter
	refreshErrors        prometheus.Counter
	refreshWorkerCount   prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "evhist",
		subsystem:        "history",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.lookupsTotal = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "lookups_total",
			Help:      "Total number of lookups by resolution path (index, fallback, miss, memo)",
		},
		[]string{"path"},
	)

	m.lookupLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "lookup_latency_milliseconds",
		Help:      "Histogram of end-to-end lookup latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.staleOffsets = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stale_offsets_total",
		Help:      "Total number of index offsets that failed record identity verification",
	})

	m.oversizeRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "oversize_point_rows_total",
		Help:      "Total number of point rows longer than any known log generation",
	})

	m.lookupRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "lookups_rejected_total",
		Help:      "Total number of lookup requests rejected for blank currency or event name",
	})

	m.indexRebuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "index_rebuilds_total",
		Help:      "Total number of offset index rebuilds from the log",
	})

	m.indexRebuildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "index_rebuild_duration_milliseconds",
		Help:      "Offset index rebuild duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.indexEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "index_entries",
		Help:      "Number of key variants in the in-memory offset index after the last rebuild or load",
	})

	m.indexLoadErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "index_load_errors_total",
		Help:      "Total number of persisted index files discarded as missing or corrupt",
	})

	m.indexPersistErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "index_persist_errors_total",
		Help:      "Total number of best-effort index persist failures (logged and swallowed)",
	})

	m.indexLastRebuildUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "index_last_rebuild_unix",
		Help:      "Unix timestamp of the last offset index rebuild",
	})

	m.recordParseErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "record_parse_errors_total",
		Help:      "Total number of log lines skipped during rebuild because they failed to parse",
	})

	m.memoHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "memo_hits_total",
		Help:      "Total number of lookups answered from the result memo",
	})

	m.memoMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "memo_misses_total",
		Help:      "Total number of memo probes that missed",
	})

	m.memoEvictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "memo_evictions_total",
		Help:      "Total number of results evicted from the memo",
	})

	m.memoSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "memo_size",
		Help:      "Current number of results in the memo",
	})

	m.refreshQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_size",
		Help:      "Current number of pending refresh jobs",
	})

	m.refreshQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_capacity",
		Help:      "Maximum refresh queue capacity",
	})

	m.refreshEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_enqueued_total",
		Help:      "Total number of refresh jobs enqueued",
	})

	m.refreshDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_dropped_total",
		Help:      "Total number of refresh jobs dropped because the queue was full or closed",
	})

	m.refreshRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_runs_total",
		Help:      "Total number of refresh jobs that rebuilt the index",
	})

	m.refreshSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_skipped_total",
		Help:      "Total number of refresh jobs skipped because the sources were unchanged",
	})

	m.refreshErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_errors_total",
		Help:      "Total number of refresh jobs that failed",
	})

	m.refreshWorkerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_worker_count",
		Help:      "Number of refresh workers",
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

	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
}

// Lookup metrics.

// RecordLookup counts one lookup resolved via the given path
// (index, fallback, miss, or memo).
func RecordLookup(path string) {
	globalManager.lookupsTotal.WithLabelValues(path).Inc()
}

// RecordLookupLatency records end-to-end lookup latency.
func RecordLookupLatency(latencyMs float64) {
	globalManager.lookupLatency.Observe(latencyMs)
}

// RecordStaleOffset counts an index offset that failed identity verification.
func RecordStaleOffset() {
	globalManager.staleOffsets.Inc()
}

// RecordOversizePointRow counts a point row longer than any known layout.
func RecordOversizePointRow() {
	globalManager.oversizeRows.Inc()
}

// RecordLookupRejected counts a request rejected for blank fields.
func RecordLookupRejected() {
	globalManager.lookupRejected.Inc()
}

// Index metrics.

// RecordIndexRebuild counts one rebuild of the offset index.
func RecordIndexRebuild() {
	globalManager.indexRebuilds.Inc()
}

// RecordIndexRebuildDuration records how long a rebuild took.
func RecordIndexRebuildDuration(latencyMs float64) {
	globalManager.indexRebuildDuration.Observe(latencyMs)
}

// UpdateIndexEntries sets the size of the in-memory index.
func UpdateIndexEntries(count int) {
	globalManager.indexEntries.Set(float64(count))
}

// RecordIndexLoadError counts a discarded persisted index.
func RecordIndexLoadError() {
	globalManager.indexLoadErrors.Inc()
}

// RecordIndexPersistError counts a swallowed persist failure.
func RecordIndexPersistError() {
	globalManager.indexPersistErrors.Inc()
}

// UpdateLastRebuildUnix records when the index was last rebuilt.
func UpdateLastRebuildUnix(ts int64) {
	globalManager.indexLastRebuildUnix.Set(float64(ts))
}

// RecordRecordParseError counts a malformed log line skipped during rebuild.
func RecordRecordParseError() {
	globalManager.recordParseErrors.Inc()
}

// Memo metrics.

// RecordMemoHit counts a memo hit.
func RecordMemoHit() {
	globalManager.memoHits.Inc()
}

// RecordMemoMiss counts a memo miss.
func RecordMemoMiss() {
	globalManager.memoMisses.Inc()
}

// RecordMemoEviction counts an LRU eviction.
func RecordMemoEviction() {
	globalManager.memoEvictions.Inc()
}

// UpdateMemoSize sets the memo entry count.
func UpdateMemoSize(size int) {
	globalManager.memoSize.Set(float64(size))
}

// Refresh pipeline metrics.

// UpdateRefreshQueueSize sets the pending refresh job count.
func UpdateRefreshQueueSize(size int) {
	globalManager.refreshQueueSize.Set(float64(size))
}

// UpdateRefreshQueueCapacity sets the refresh queue capacity.
func UpdateRefreshQueueCapacity(capacity int) {
	globalManager.refreshQueueCapacity.Set(float64(capacity))
}

// RecordRefreshEnqueued counts an accepted refresh job.
func RecordRefreshEnqueued() {
	globalManager.refreshEnqueued.Inc()
}

// RecordRefreshDropped counts a dropped refresh job.
func RecordRefreshDropped() {
	globalManager.refreshDropped.Inc()
}

// RecordRefreshRun counts a refresh job that rebuilt the index.
func RecordRefreshRun() {
	globalManager.refreshRuns.Inc()
}

// RecordRefreshSkipped counts a refresh job skipped as a no-op.
func RecordRefreshSkipped() {
	globalManager.refreshSkipped.Inc()
}

// RecordRefreshError counts a failed refresh job.
func RecordRefreshError() {
	globalManager.refreshErrors.Inc()
}

// UpdateRefreshWorkerCount sets the refresh worker count.
func UpdateRefreshWorkerCount(count int) {
	globalManager.refreshWorkerCount.Set(float64(count))
}

// HTTP metrics.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Error tracking.

// RecordErrorByComponent counts an error attributed to a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom registry serving /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
