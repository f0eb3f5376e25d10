package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "beach_query"

// Metrics holds the Prometheus collectors for the query service.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Request metrics.
	Requests        *prometheus.CounterVec   // labels: request_type, code={SUCCESS,ERROR}
	RequestErrors   *prometheus.CounterVec   // labels: error_type
	RequestDuration *prometheus.HistogramVec // labels: request_type

	// Query cache metrics.
	CacheLookups     *prometheus.CounterVec // labels: result={hit,miss}
	CacheEvictions   prometheus.Counter
	CacheResets      prometheus.Counter
	CacheLockWait    prometheus.Histogram
	CacheLockTimeout prometheus.Counter

	// Upstream collaborator metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: service, outcome={success,error,open}
	UpstreamDuration *prometheus.HistogramVec // labels: service
	PointCache       *prometheus.CounterVec   // labels: result={hit,miss}

	// Watch scheduler metrics.
	WatchChecks           *prometheus.CounterVec // labels: action={notify,none,error}
	NotificationsProduced prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      help("Total requests read from the request topic."),
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      help("Total responses written to the response topic."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the request pipeline is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of requests per batch extracted from Kafka."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete extract-handle-load cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      help("Dispatched requests by type and response code."),
		}, []string{"request_type", "code"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      help("Error responses by error type."),
		}, []string{"error_type"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      help("Time to answer a request, by request type."),
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"request_type"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      help("Search cache lookups by result."),
		}, []string{"result"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      help("Entries evicted from the search cache."),
		}),
		CacheResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_corruption_resets_total",
			Help:      help("Times an unreadable cache document was replaced with an empty one."),
		}),
		CacheLockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_lock_wait_seconds",
			Help:      help("Time spent waiting for the shared cache lock."),
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		CacheLockTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lock_timeouts_total",
			Help:      help("Cache operations abandoned because the lock was not acquired in time."),
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      help("Upstream API requests by service and outcome."),
		}, []string{"service", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      help("Upstream API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"service"}),
		PointCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "point_cache_total",
			Help:      help("Forecast grid point cache lookups by result."),
		}, []string{"result"}),
		WatchChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_checks_total",
			Help:      help("Scheduled event checks by outcome."),
		}, []string{"action"}),
		NotificationsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_produced_total",
			Help:      help("Notifications written to the notification topic."),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.MessagesProduced,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.Requests,
		m.RequestErrors,
		m.RequestDuration,
		m.CacheLookups,
		m.CacheEvictions,
		m.CacheResets,
		m.CacheLockWait,
		m.CacheLockTimeout,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.PointCache,
		m.WatchChecks,
		m.NotificationsProduced,
	}
}
