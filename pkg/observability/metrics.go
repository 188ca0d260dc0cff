package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access-control metrics
	AccessChecksTotal     *prometheus.CounterVec
	AccessCheckDuration   *prometheus.HistogramVec
	GrantMutationsTotal   *prometheus.CounterVec
	DirectoryLookupsTotal *prometheus.CounterVec

	// Cache metrics
	AccessCacheHitsTotal   prometheus.Counter
	AccessCacheMissesTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rcbudget_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rcbudget_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AccessChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rcbudget_access_checks_total",
				Help: "Total number of effective-access computations by result level",
			},
			[]string{"result"},
		),
		AccessCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rcbudget_access_check_duration_seconds",
				Help:    "Effective-access computation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"cached"},
		),
		GrantMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rcbudget_grant_mutations_total",
				Help: "Total number of grant mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		DirectoryLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rcbudget_directory_lookups_total",
				Help: "Total number of directory searches by outcome",
			},
			[]string{"outcome"},
		),
		AccessCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rcbudget_access_cache_hits_total",
				Help: "Total number of effective-access cache hits",
			},
		),
		AccessCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rcbudget_access_cache_misses_total",
				Help: "Total number of effective-access cache misses",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rcbudget_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rcbudget_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AccessChecksTotal,
		m.AccessCheckDuration,
		m.GrantMutationsTotal,
		m.DirectoryLookupsTotal,
		m.AccessCacheHitsTotal,
		m.AccessCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDBStats records connection pool gauges from sql.DBStats
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// HTTPMiddleware instruments an HTTP handler with request metrics.
// The path label uses the route template supplied by the router, not the
// raw URL, to keep cardinality bounded.
func (m *Metrics) HTTPMiddleware(routeTemplate func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			path := routeTemplate(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
