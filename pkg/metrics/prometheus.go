// Package metrics provides Prometheus metrics for the enigma game service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultLatencyBuckets spans a local index hit to a slow knowledge graph call.
var DefaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000} //nolint:gochecknoglobals // read-only defaults

// Manager owns every collector the service exports.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	constLabels    map[string]string
	metricPrefix   string
	registry       prometheus.Registerer

	// Guess resolution
	guesses          *prometheus.CounterVec
	guessRateLimited prometheus.Counter
	resolveLatency   prometheus.Histogram

	// Synthesis
	synthEntriesCreated prometheus.Counter
	synthAliasesCreated prometheus.Counter
	synthFailures       *prometheus.CounterVec

	// Gateway
	gatewayRequests         *prometheus.CounterVec
	gatewayLatency          prometheus.Histogram
	gatewayCacheHits        prometheus.Counter
	gatewayCacheMisses      prometheus.Counter
	gatewayRateLimitedUntil prometheus.Gauge

	// Gateway queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	queueWaitLatency   prometheus.Histogram

	// Game state
	dailySelections *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	tallyEntries    prometheus.Counter
	refreshEntries  prometheus.Counter

	// Repository
	repositoryQueryLatency  *prometheus.HistogramVec
	repositoryUpdateLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps default Go collectors out of the exposition.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "enigma",
		subsystem:      "game",
		latencyBuckets: DefaultLatencyBuckets,
		constLabels:    make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: m.latencyBuckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.guesses = m.counterVec("guesses_total", "Guesses resolved, by matching stage (miss for no match)", "stage")
	m.guessRateLimited = m.counter("guesses_rate_limited_total", "Guesses whose live lookup hit the upstream rate limit")
	m.resolveLatency = m.histogram("resolve_latency_milliseconds", "End-to-end guess resolution latency", m.latencyBuckets)

	m.synthEntriesCreated = m.counter("synth_entries_created_total", "Entries materialized from live lookups")
	m.synthAliasesCreated = m.counter("synth_aliases_created_total", "Aliases materialized from live lookups")
	m.synthFailures = m.counterVec("synth_failures_total", "Live lookups that could not produce a match", "reason")

	m.gatewayRequests = m.counterVec("gateway_requests_total", "Outbound knowledge graph requests by outcome", "outcome")
	m.gatewayLatency = m.histogram("gateway_request_latency_milliseconds", "Outbound knowledge graph request latency", m.latencyBuckets)
	m.gatewayCacheHits = m.counter("gateway_cache_hits_total", "Queries answered from the gateway cache")
	m.gatewayCacheMisses = m.counter("gateway_cache_misses_total", "Queries that had to be dispatched upstream")
	m.gatewayRateLimitedUntil = m.gauge("gateway_rate_limited_until_unix", "Unix time until which the gateway holds dispatch")

	m.queueSize = m.gauge("gateway_queue_size", "Requests waiting for the gateway dispatcher")
	m.queueCapacity = m.gauge("gateway_queue_capacity", "Maximum gateway queue capacity")
	m.queueUtilization = m.gauge("gateway_queue_utilization_ratio", "Gateway queue utilization (size / capacity)")
	m.queueEnqueueRate = m.counter("gateway_queue_enqueue_total", "Requests enqueued")
	m.queueDequeueRate = m.counter("gateway_queue_dequeue_total", "Requests dequeued")
	m.queueEnqueueErrors = m.counter("gateway_queue_enqueue_errors_total", "Requests rejected by the queue")
	m.queueWaitLatency = m.histogram("gateway_queue_wait_milliseconds", "Time a request spent queued before dispatch", m.latencyBuckets)

	m.dailySelections = m.counterVec("daily_selections_total", "Daily selector invocations by result", "result")
	m.sessionsActive = m.gauge("sessions_active", "Game sessions currently held in memory")
	m.tallyEntries = m.counter("tally_entries_total", "Entries incremented through tally")
	m.refreshEntries = m.counter("refresh_entries_total", "Entries upserted by category refresh")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds", "Repository read latency", "op")
	m.repositoryUpdateLatency = m.histogramVec("repository_update_latency_milliseconds", "Repository write latency", "op")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Guess resolution.

// RecordGuess counts a resolved guess. An empty stage counts as a miss.
func RecordGuess(stage string) {
	if stage == "" {
		stage = "miss"
	}
	globalManager.guesses.WithLabelValues(stage).Inc()
}

// RecordGuessRateLimited counts a guess whose live lookup was rate limited.
func RecordGuessRateLimited() {
	globalManager.guessRateLimited.Inc()
}

// RecordResolveLatency records guess resolution latency in milliseconds.
func RecordResolveLatency(latencyMs float64) {
	globalManager.resolveLatency.Observe(latencyMs)
}

// Synthesis.

// RecordSynthEntryCreated counts an entry created from a live lookup.
func RecordSynthEntryCreated() {
	globalManager.synthEntriesCreated.Inc()
}

// RecordSynthAliasCreated counts an alias created from a live lookup.
func RecordSynthAliasCreated() {
	globalManager.synthAliasesCreated.Inc()
}

// RecordSynthFailure counts a live lookup that ended in a miss for reason.
func RecordSynthFailure(reason string) {
	globalManager.synthFailures.WithLabelValues(reason).Inc()
}

// Gateway.

// RecordGatewayRequest counts an outbound request outcome.
func RecordGatewayRequest(outcome string) {
	globalManager.gatewayRequests.WithLabelValues(outcome).Inc()
}

// RecordGatewayLatency records outbound request latency in milliseconds.
func RecordGatewayLatency(latencyMs float64) {
	globalManager.gatewayLatency.Observe(latencyMs)
}

// RecordGatewayCacheHit counts a cache hit.
func RecordGatewayCacheHit() {
	globalManager.gatewayCacheHits.Inc()
}

// RecordGatewayCacheMiss counts a cache miss.
func RecordGatewayCacheMiss() {
	globalManager.gatewayCacheMisses.Inc()
}

// UpdateGatewayRateLimitedUntil publishes the current backoff deadline.
func UpdateGatewayRateLimitedUntil(until time.Time) {
	if until.IsZero() {
		globalManager.gatewayRateLimitedUntil.Set(0)
		return
	}
	globalManager.gatewayRateLimitedUntil.Set(float64(until.Unix()))
}

// Gateway queue.

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

// RecordQueueWaitLatency records how long a request waited before dispatch.
func RecordQueueWaitLatency(latencyMs float64) {
	globalManager.queueWaitLatency.Observe(latencyMs)
}

// Game state.

// RecordDailySelection counts a daily selector result: existing, claimed, lost or reset.
func RecordDailySelection(result string) {
	globalManager.dailySelections.WithLabelValues(result).Inc()
}

// UpdateSessionsActive sets the number of live game sessions.
func UpdateSessionsActive(count int) {
	globalManager.sessionsActive.Set(float64(count))
}

// RecordTallyEntries counts entries incremented through tally.
func RecordTallyEntries(n int) {
	globalManager.tallyEntries.Add(float64(n))
}

// RecordRefreshEntries counts entries upserted by refresh.
func RecordRefreshEntries(n int) {
	globalManager.refreshEntries.Add(float64(n))
}

// Repository.

// RecordRepositoryQueryLatency records a repository read latency.
func RecordRepositoryQueryLatency(op string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordRepositoryUpdateLatency records a repository write latency.
func RecordRepositoryUpdateLatency(op string, latencyMs float64) {
	globalManager.repositoryUpdateLatency.WithLabelValues(op).Observe(latencyMs)
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

// Errors.

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

// System.

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
