// Package metrics provides Prometheus metrics for the salesgrid server and client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Save outcomes used as the "outcome" label of cell save metrics.
const (
	OutcomeSynced    = "synced"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeOK        = "ok"
)

// Manager owns every Prometheus collector used by salesgrid.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Sync client
	cellSaves        *prometheus.CounterVec
	cellSaveLatency  prometheus.Histogram
	cellSaveRetries  prometheus.Counter
	pendingCells     prometheus.Gauge
	refreshes        *prometheus.CounterVec
	refreshLatency   prometheus.Histogram
	tableEntities    *prometheus.GaugeVec
	membershipEvents *prometheus.CounterVec

	// Server
	cellWrites      *prometheus.CounterVec
	logins          *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	archiveRuns     prometheus.Counter
	dailySnapshots  prometheus.Counter
	duplicateSaves  prometheus.Counter
	repositoryQuery *prometheus.HistogramVec

	// Save queue
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueUtilization  prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDequeued     prometheus.Counter
	queueEnqueueError prometheus.Counter

	// Save workers
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the Record*/Update* helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out of /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "salesgrid",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// RefreshInterval is how often gauge updaters should run.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status code", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.cellSaves = m.counterVec("cell_saves_total", "Client cell saves by outcome", "table", "outcome")
	m.cellSaveLatency = m.histogram("cell_save_latency_milliseconds", "Round trip of a single cell save")
	m.cellSaveRetries = m.counter("cell_save_retries_total", "Cell save attempts repeated after a transport error")
	m.pendingCells = m.gauge("pending_cells", "Cells edited locally and not yet confirmed by the server")
	m.refreshes = m.counterVec("refreshes_total", "Table refreshes by outcome", "table", "outcome")
	m.refreshLatency = m.histogram("refresh_latency_milliseconds", "Duration of a full table fetch")
	m.tableEntities = m.gaugeVec("table_entities", "Rows in the client's display order", "table")
	m.membershipEvents = m.counterVec("membership_events_total", "Entity add/remove operations", "op", "outcome")

	m.cellWrites = m.counterVec("cell_writes_total", "Cells written by the server", "table", "source")
	m.logins = m.counterVec("logins_total", "Login attempts by result", "result")
	m.activeSessions = m.gauge("active_sessions", "Sessions currently stored")
	m.archiveRuns = m.counter("weekly_archive_runs_total", "Weekly archive executions")
	m.dailySnapshots = m.counter("daily_snapshots_total", "Daily sales snapshots taken")
	m.duplicateSaves = m.counter("duplicate_saves_total", "Cell saves acknowledged without re-applying")
	m.repositoryQuery = m.histogramVec("repository_query_milliseconds", "Repository operation latency", "op")

	m.queueSize = m.gauge("save_queue_size", "Cell saves waiting for a worker")
	m.queueCapacity = m.gauge("save_queue_capacity", "Capacity of the cell save queue")
	m.queueUtilization = m.gauge("save_queue_utilization_ratio", "Save queue size divided by capacity")
	m.queueEnqueued = m.counter("save_queue_enqueued_total", "Cell saves enqueued")
	m.queueDequeued = m.counter("save_queue_dequeued_total", "Cell saves handed to workers")
	m.queueEnqueueError = m.counter("save_queue_enqueue_errors_total", "Cell saves rejected by the queue")

	m.workerActiveCount = m.gauge("save_workers_active", "Save workers running")
	m.workerMessagesPerSecond = m.gauge("save_workers_messages_per_second", "Saves processed per second")
	m.workerProcessingLatency = m.histogram("save_worker_processing_milliseconds", "Time a worker spends on one save, retries included")
	m.workerErrors = m.counter("save_worker_errors_total", "Saves that ended in failure")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

func on() bool { return globalManager != nil && globalManager.enabled }

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration observes one HTTP request duration in ms.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordCellSave counts a settled client save.
func RecordCellSave(table, outcome string) {
	if on() {
		globalManager.cellSaves.WithLabelValues(table, outcome).Inc()
	}
}

// RecordCellSaveLatency observes one save round trip in ms.
func RecordCellSaveLatency(latencyMs float64) {
	if on() {
		globalManager.cellSaveLatency.Observe(latencyMs)
	}
}

// RecordCellSaveRetry counts one retried save attempt.
func RecordCellSaveRetry() {
	if on() {
		globalManager.cellSaveRetries.Inc()
	}
}

// UpdatePendingCells sets the number of unconfirmed cells.
func UpdatePendingCells(n int) {
	if on() {
		globalManager.pendingCells.Set(float64(n))
	}
}

// RecordRefresh counts a table refresh by outcome.
func RecordRefresh(table, outcome string) {
	if on() {
		globalManager.refreshes.WithLabelValues(table, outcome).Inc()
	}
}

// RecordRefreshLatency observes one table fetch in ms.
func RecordRefreshLatency(latencyMs float64) {
	if on() {
		globalManager.refreshLatency.Observe(latencyMs)
	}
}

// UpdateTableEntities sets the number of rows displayed for table.
func UpdateTableEntities(table string, n int) {
	if on() {
		globalManager.tableEntities.WithLabelValues(table).Set(float64(n))
	}
}

// RecordMembershipEvent counts an add or remove of an entity.
func RecordMembershipEvent(op, outcome string) {
	if on() {
		globalManager.membershipEvents.WithLabelValues(op, outcome).Inc()
	}
}

// RecordCellWrites counts cells persisted by the server; source is "cell" or "bulk".
func RecordCellWrites(table, source string, n int) {
	if on() {
		globalManager.cellWrites.WithLabelValues(table, source).Add(float64(n))
	}
}

// RecordLogin counts a login attempt; result is "ok" or "denied".
func RecordLogin(result string) {
	if on() {
		globalManager.logins.WithLabelValues(result).Inc()
	}
}

// UpdateActiveSessions sets the number of stored sessions.
func UpdateActiveSessions(n int) {
	if on() {
		globalManager.activeSessions.Set(float64(n))
	}
}

// RecordArchiveRun counts a weekly archive.
func RecordArchiveRun() {
	if on() {
		globalManager.archiveRuns.Inc()
	}
}

// RecordDailySnapshot counts a daily sales snapshot.
func RecordDailySnapshot() {
	if on() {
		globalManager.dailySnapshots.Inc()
	}
}

// RecordDuplicateSave counts a save acknowledged as a duplicate.
func RecordDuplicateSave() {
	if on() {
		globalManager.duplicateSaves.Inc()
	}
}

// RecordRepositoryQuery observes a repository operation in ms.
func RecordRepositoryQuery(op string, latencyMs float64) {
	if on() {
		globalManager.repositoryQuery.WithLabelValues(op).Observe(latencyMs)
	}
}

// UpdateQueueSize sets the save queue length.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the save queue capacity.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets size/capacity of the save queue.
func UpdateQueueUtilization(utilization float64) {
	if on() {
		globalManager.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue counts an accepted save.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue counts a save handed to a worker.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError counts a save the queue refused.
func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueError.Inc()
	}
}

// UpdateWorkerActiveCount sets the number of running save workers.
func UpdateWorkerActiveCount(count int) {
	if on() {
		globalManager.workerActiveCount.Set(float64(count))
	}
}

// UpdateWorkerMessagesPerSecond sets the save throughput.
func UpdateWorkerMessagesPerSecond(rate float64) {
	if on() {
		globalManager.workerMessagesPerSecond.Set(rate)
	}
}

// RecordWorkerProcessingLatency observes how long a worker spent on a save.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError counts a save that ended in failure.
func RecordWorkerError() {
	if on() {
		globalManager.workerErrors.Inc()
	}
}

// RecordErrorByComponent counts an error attributed to a component.
func RecordErrorByComponent(component, errorType string) {
	if on() {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint counts an HTTP error for an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if on() {
		globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Global returns the process-wide manager.
func Global() *Manager {
	return globalManager
}
