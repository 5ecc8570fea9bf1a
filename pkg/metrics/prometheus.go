// Package metrics provides Prometheus metrics for the gavel assignment service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// defaultDistanceBuckets cover the locality bands that earn a bonus plus a tail.
var defaultDistanceBuckets = []float64{0, 1, 2, 3, 5, 10, 25, 50} //nolint:gochecknoglobals // static bucket layout

// Manager manages all Prometheus metrics for the gavel service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	distanceBuckets  []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Assignment decisions
	assignmentsCreated   prometheus.Counter
	assignmentsReused    prometheus.Counter
	assignmentFailures   *prometheus.CounterVec
	assignmentLatency    prometheus.Histogram
	candidatePoolSize    prometheus.Histogram
	selectedDistance     prometheus.Histogram
	coverageBonusChosen  prometheus.Counter
	idempotentReplays    prometheus.Counter
	storeTxLatency       *prometheus.HistogramVec
	activeSubmissions    prometheus.Gauge
	pendingAssignments   prometheus.Gauge
	underRatedSubmission prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Shard queue metrics
	queueSize              *prometheus.GaugeVec
	queueCapacity          prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "gavel",
		subsystem:        "assigner",
		histogramBuckets: prometheus.DefBuckets,
		distanceBuckets:  defaultDistanceBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// A disabled manager still hands out working collectors, just on a
	// registry nobody scrapes.
	if !m.enabled {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval returns how often gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Assignment decisions
	m.assignmentsCreated = auto.NewCounter(m.counterOpts("assignments_created_total",
		"Total number of rating assignments created"))
	m.assignmentsReused = auto.NewCounter(m.counterOpts("assignments_reused_total",
		"Total number of next-assignment requests answered with an already pending assignment"))
	m.assignmentFailures = auto.NewCounterVec(m.counterOpts("assignment_failures_total",
		"Total number of failed assignment attempts by failure kind"), []string{"kind"})
	m.assignmentLatency = auto.NewHistogram(m.histogramOpts("assignment_latency_milliseconds",
		"Latency of one read-decide-write assignment transaction in milliseconds", m.histogramBuckets))
	m.candidatePoolSize = auto.NewHistogram(m.histogramOpts("candidate_pool_size",
		"Number of plausible submissions scored per decision",
		[]float64{0, 1, 2, 5, 10, 25, 50, 100, 250}))
	m.selectedDistance = auto.NewHistogram(m.histogramOpts("selected_forward_distance",
		"Forward distance of the selected submission when locality was known", m.distanceBuckets))
	m.coverageBonusChosen = auto.NewCounter(m.counterOpts("coverage_bonus_selected_total",
		"Total number of selections that went to an under-rated submission"))
	m.idempotentReplays = auto.NewCounter(m.counterOpts("idempotent_replays_total",
		"Total number of requests answered from the idempotency cache"))
	m.storeTxLatency = auto.NewHistogramVec(m.histogramOpts("store_tx_latency_milliseconds",
		"Store transaction latency in milliseconds", m.histogramBuckets), []string{"driver"})
	m.activeSubmissions = auto.NewGauge(m.gaugeOpts("active_submissions",
		"Number of active submissions in the venue"))
	m.pendingAssignments = auto.NewGauge(m.gaugeOpts("pending_assignments",
		"Number of assignments waiting for a rating"))
	m.underRatedSubmission = auto.NewGauge(m.gaugeOpts("under_rated_submissions",
		"Number of active submissions below the coverage threshold"))

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	// Shard queue metrics
	m.queueSize = auto.NewGaugeVec(m.gaugeOpts("queue_size",
		"Current number of queued assignment requests per shard"), []string{"shard"})
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum capacity of one shard queue"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total",
		"Total number of requests enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total",
		"Total number of requests dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Total number of rejected enqueues"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds",
		"Enqueue latency in milliseconds", m.histogramBuckets))

	// Worker Metrics
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count",
		"Number of shard workers"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gaugeOpts("worker_messages_per_second",
		"Average requests processed per second by workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds", m.histogramBuckets))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Total number of requests that finished with an error"))

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total",
		"Total number of errors by type"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds",
		"Latency of operations that resulted in errors", m.histogramBuckets), []string{"component", "error_type"})

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Assignment Metrics Functions.

// RecordAssignmentCreated increments the created assignments counter.
func RecordAssignmentCreated() {
	globalManager.assignmentsCreated.Inc()
}

// RecordAssignmentReused counts a next-assignment request served by a pending assignment.
func RecordAssignmentReused() {
	globalManager.assignmentsReused.Inc()
}

// RecordAssignmentFailure counts a failed attempt by kind.
func RecordAssignmentFailure(kind string) {
	globalManager.assignmentFailures.WithLabelValues(kind).Inc()
}

// RecordAssignmentLatency records the latency of one assignment transaction.
func RecordAssignmentLatency(latencyMs float64) {
	globalManager.assignmentLatency.Observe(latencyMs)
}

// RecordCandidatePool records how many candidates were scored.
func RecordCandidatePool(size int) {
	globalManager.candidatePoolSize.Observe(float64(size))
}

// RecordSelectedDistance records the forward distance of a selection.
func RecordSelectedDistance(distance int) {
	globalManager.selectedDistance.Observe(float64(distance))
}

// RecordCoverageBonusSelected counts a selection of an under-rated submission.
func RecordCoverageBonusSelected() {
	globalManager.coverageBonusChosen.Inc()
}

// RecordIdempotentReplay counts a request answered from the idempotency cache.
func RecordIdempotentReplay() {
	globalManager.idempotentReplays.Inc()
}

// RecordStoreTxLatency records a store transaction latency for a driver.
func RecordStoreTxLatency(driver string, latencyMs float64) {
	globalManager.storeTxLatency.WithLabelValues(driver).Observe(latencyMs)
}

// UpdateActiveSubmissions sets the active submissions gauge.
func UpdateActiveSubmissions(count int) {
	globalManager.activeSubmissions.Set(float64(count))
}

// UpdatePendingAssignments sets the pending assignments gauge.
func UpdatePendingAssignments(count int) {
	globalManager.pendingAssignments.Set(float64(count))
}

// UpdateUnderRatedSubmissions sets the under-rated submissions gauge.
func UpdateUnderRatedSubmissions(count int) {
	globalManager.underRatedSubmission.Set(float64(count))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current size of one shard queue.
func UpdateQueueSize(shard, size int) {
	globalManager.queueSize.WithLabelValues(strconv.Itoa(shard)).Set(float64(size))
}

// UpdateQueueCapacity sets the maximum shard queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average messages processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
