package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
//
// The Record* helpers are safe to call on a nil *Metrics so components can be
// constructed without a registry in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Counter buffer metrics
	CounterIncrementsTotal *prometheus.CounterVec

	// Flush metrics
	FlushRunsTotal    *prometheus.CounterVec
	FlushDuration     prometheus.Histogram
	FlushRecordsTotal *prometheus.CounterVec

	// Ranking metrics
	RankingUnitsTotal     *prometheus.CounterVec
	RankingUnitDuration   *prometheus.HistogramVec
	RankingEntriesWritten *prometheus.CounterVec
	RankingQueriesTotal   *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsTotal prometheus.Gauge
	RedisConnectionsIdle  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrank_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookrank_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookrank_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		CounterIncrementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrank_counter_increments_total",
				Help: "Total number of counter increments by field",
			},
			[]string{"field", "status"},
		),

		FlushRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrank_flush_runs_total",
				Help: "Total number of counter flush runs",
			},
			[]string{"status"},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bookrank_flush_duration_seconds",
				Help:    "Counter flush duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300},
			},
		),
		FlushRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrank_flush_records_total",
				Help: "Records handled by counter flushes by outcome",
			},
			[]string{"outcome"},
		),

		RankingUnitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrank_ranking_units_total",
				Help: "Ranking generation units by type and status",
			},
			[]string{"rank_type", "stat_type", "status"},
		),
		RankingUnitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookrank_ranking_unit_duration_seconds",
				Help:    "Ranking generation unit duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"rank_type"},
		),
		RankingEntriesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrank_ranking_entries_written_total",
				Help: "Ranking entries persisted by type",
			},
			[]string{"rank_type", "stat_type"},
		),
		RankingQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrank_ranking_queries_total",
				Help: "Ranking queries served by type and status",
			},
			[]string{"rank_type", "status"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrank_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrank_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookrank_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookrank_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookrank_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookrank_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Redis metrics
		RedisConnectionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookrank_redis_connections_total",
				Help: "Number of Redis connections in the pool",
			},
		),
		RedisConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookrank_redis_connections_idle",
				Help: "Number of idle Redis connections in the pool",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.CounterIncrementsTotal,
		m.FlushRunsTotal,
		m.FlushDuration,
		m.FlushRecordsTotal,
		m.RankingUnitsTotal,
		m.RankingUnitDuration,
		m.RankingEntriesWritten,
		m.RankingQueriesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsTotal,
		m.RedisConnectionsIdle,
	)

	return m
}

// RecordIncrement counts a counter increment attempt
func (m *Metrics) RecordIncrement(field, status string) {
	if m == nil {
		return
	}
	m.CounterIncrementsTotal.WithLabelValues(field, status).Inc()
}

// RecordFlush records the outcome of one flush run
func (m *Metrics) RecordFlush(status string, duration time.Duration, persisted, skipped, cumulativeFailed, deleted int) {
	if m == nil {
		return
	}
	m.FlushRunsTotal.WithLabelValues(status).Inc()
	m.FlushDuration.Observe(duration.Seconds())
	m.FlushRecordsTotal.WithLabelValues("persisted").Add(float64(persisted))
	m.FlushRecordsTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.FlushRecordsTotal.WithLabelValues("cumulative_failed").Add(float64(cumulativeFailed))
	m.FlushRecordsTotal.WithLabelValues("deleted").Add(float64(deleted))
}

// RecordRankingUnit records one ranking generation unit
func (m *Metrics) RecordRankingUnit(rankType, statType, status string, entries int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RankingUnitsTotal.WithLabelValues(rankType, statType, status).Inc()
	m.RankingUnitDuration.WithLabelValues(rankType).Observe(duration.Seconds())
	if entries > 0 {
		m.RankingEntriesWritten.WithLabelValues(rankType, statType).Add(float64(entries))
	}
}

// RecordRankingQuery counts a served ranking query
func (m *Metrics) RecordRankingQuery(rankType, status string) {
	if m == nil {
		return
	}
	m.RankingQueriesTotal.WithLabelValues(rankType, status).Inc()
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
}

// UpdateDBStats copies connection pool statistics into the database gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// UpdateRedisStats copies connection pool statistics into the Redis gauges
func (m *Metrics) UpdateRedisStats(stats *redis.PoolStats) {
	if m == nil || stats == nil {
		return
	}
	m.RedisConnectionsTotal.Set(float64(stats.TotalConns))
	m.RedisConnectionsIdle.Set(float64(stats.IdleConns))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// routeOf maps a request to a low-cardinality route label; nil uses the raw path.
func HTTPMetricsMiddleware(metrics *Metrics, routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if routeOf != nil {
				route = routeOf(r)
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler returns the /metrics handler for a registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
