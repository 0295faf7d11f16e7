// Package metrics provides Prometheus metrics for the rampart scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring
	recomputeTotal   *prometheus.CounterVec
	recomputeLatency prometheus.Histogram
	roundsRecomputed prometheus.Counter
	snapshotLoads    prometheus.Counter
	settingFallbacks *prometheus.CounterVec
	settingsCache    *prometheus.CounterVec
	slaViolations    prometheus.Gauge
	blueTeams        prometheus.Gauge
	summaryLatency   prometheus.Histogram
	repositoryQuery  prometheus.Histogram
	repositoryUpdate prometheus.Histogram

	// Recompute queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueCoalesced         prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActive            prometheus.Gauge
	workerIdle              prometheus.Gauge
	jobsProcessed           prometheus.Counter
	jobsFailed              prometheus.Counter
	workerProcessingLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors and runtime
	errorsByComponent    *prometheus.CounterVec
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global manager from opts on a fresh registry, which
// GetRegistry then returns. It must run before anything records metrics.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(customRegistry))...)
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rampart",
		subsystem:        "scoring",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	m.recomputeTotal = m.counterVec("recompute_total", "Score recomputations by outcome", "outcome")
	m.recomputeLatency = m.histogram("recompute_latency_milliseconds", "Duration of one team score recomputation")
	m.roundsRecomputed = m.counter("rounds_recomputed_total", "Team rounds whose cumulative score was recomputed")
	m.snapshotLoads = m.counter("snapshot_loads_total", "Configuration snapshots built from settings")
	m.settingFallbacks = m.counterVec("setting_fallbacks_total", "Stored settings rejected in favour of their default", "key")
	m.settingsCache = m.counterVec("settings_cache_total", "Settings cache lookups by result", "result")
	m.slaViolations = m.gauge("sla_violations", "Services at or above the penalty threshold in the last summary")
	m.blueTeams = m.gauge("blue_teams", "Defending teams included in the last summary")
	m.summaryLatency = m.histogram("summary_latency_milliseconds", "Time to build SLA summaries")
	m.repositoryQuery = m.histogram("repository_query_latency_milliseconds", "Repository read latency")
	m.repositoryUpdate = m.histogram("repository_update_latency_milliseconds", "Repository write latency")

	m.queueSize = m.gauge("queue_size", "Pending recompute jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum pending recompute jobs")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Recompute jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Recompute jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Recompute jobs rejected by the queue")
	m.queueCoalesced = m.counter("queue_coalesced_total", "Recompute requests merged into an already pending job")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Time from enqueue to dequeue")

	m.workerCount = m.gauge("worker_count", "Configured recompute workers")
	m.workerActive = m.gauge("worker_active_count", "Workers currently recomputing")
	m.workerIdle = m.gauge("worker_idle_count", "Workers waiting for jobs")
	m.jobsProcessed = m.counter("jobs_processed_total", "Recompute jobs completed")
	m.jobsFailed = m.counter("jobs_failed_total", "Recompute jobs that returned an error")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spends on one job")

	auto := promauto.With(m.registry)
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// Scoring.

// RecordRecompute records one recomputation with its outcome ("ok", "error", "precondition").
func RecordRecompute(outcome string, latencyMs float64) {
	globalManager.recomputeTotal.WithLabelValues(outcome).Inc()
	globalManager.recomputeLatency.Observe(latencyMs)
}

// RecordRoundsRecomputed adds n recomputed team rounds.
func RecordRoundsRecomputed(n int) {
	globalManager.roundsRecomputed.Add(float64(n))
}

// RecordSnapshotLoad increments the snapshot load counter.
func RecordSnapshotLoad() {
	globalManager.snapshotLoads.Inc()
}

// RecordSettingFallback counts a stored value for key that was replaced by its default.
func RecordSettingFallback(key string) {
	globalManager.settingFallbacks.WithLabelValues(key).Inc()
}

// RecordSettingsCacheHit counts a settings cache hit.
func RecordSettingsCacheHit() {
	globalManager.settingsCache.WithLabelValues("hit").Inc()
}

// RecordSettingsCacheMiss counts a settings cache miss.
func RecordSettingsCacheMiss() {
	globalManager.settingsCache.WithLabelValues("miss").Inc()
}

// UpdateSLAViolations sets the number of violating services.
func UpdateSLAViolations(count int) {
	globalManager.slaViolations.Set(float64(count))
}

// UpdateBlueTeams sets the number of summarized defending teams.
func UpdateBlueTeams(count int) {
	globalManager.blueTeams.Set(float64(count))
}

// RecordSummaryLatency records how long building summaries took.
func RecordSummaryLatency(latencyMs float64) {
	globalManager.summaryLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQuery.Observe(latencyMs)
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdate.Observe(latencyMs)
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueCoalesced increments the coalesced request counter.
func RecordQueueCoalesced() {
	globalManager.queueCoalesced.Inc()
}

// RecordQueueProcessingLatency records the wait between enqueue and dequeue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Workers.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdle.Set(float64(count))
}

// RecordJobProcessed increments the processed jobs counter.
func RecordJobProcessed() {
	globalManager.jobsProcessed.Inc()
}

// RecordJobFailed increments the failed jobs counter.
func RecordJobFailed() {
	globalManager.jobsFailed.Inc()
}

// RecordWorkerProcessingLatency records the time spent on one job.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors and runtime.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
