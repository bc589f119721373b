package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes request, query and security counters in the Prometheus
// format. All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	queries         *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	queryRows       prometheus.Histogram
	truncated       prometheus.Counter
	csrfRejections  *prometheus.CounterVec
	auditEvents     *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	poolsCreated    prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iqp_http_requests_total",
				Help: "Total number of HTTP requests by method and status",
			},
			[]string{"method", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iqp_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		queries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iqp_queries_total",
				Help: "Total number of query executions by outcome",
			},
			[]string{"outcome"},
		),
		queryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iqp_query_duration_seconds",
				Help:    "Duration of query executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"outcome"},
		),
		queryRows: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "iqp_query_rows",
				Help:    "Rows returned per successful query",
				Buckets: prometheus.ExponentialBuckets(1, 10, 6),
			},
		),
		truncated: f.NewCounter(
			prometheus.CounterOpts{
				Name: "iqp_query_truncated_total",
				Help: "Total number of results cut at the row limit",
			},
		),
		csrfRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iqp_csrf_rejections_total",
				Help: "Total number of requests rejected by the CSRF gate",
			},
			[]string{"code"},
		),
		auditEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iqp_audit_events_total",
				Help: "Total number of audit events by type",
			},
			[]string{"event"},
		),
		rateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iqp_rate_limited_total",
				Help: "Total number of requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),
		poolsCreated: f.NewCounter(
			prometheus.CounterOpts{
				Name: "iqp_db_pools_created_total",
				Help: "Total number of tenant connection pools created",
			},
		),
	}
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackPools exposes the live pool count reported by count.
func (m *Metrics) TrackPools(count func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "iqp_db_pools",
			Help: "Number of live tenant connection pools",
		},
		func() float64 { return float64(count()) },
	)
}

// TrackConns exposes the number of tenant connections checked out.
func (m *Metrics) TrackConns(count func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "iqp_db_connections_acquired",
			Help: "Tenant database connections currently in use",
		},
		func() float64 { return float64(count()) },
	)
}

// PoolCreated counts a new tenant pool. It fits dbpool.WithCreateHook.
func (m *Metrics) PoolCreated(string) {
	if m == nil {
		return
	}
	m.poolsCreated.Inc()
}

func (m *Metrics) observeRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) observeQuery(outcome string, d time.Duration, rows int, truncated bool) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if outcome == "succeeded" {
		m.queryRows.Observe(float64(rows))
	}
	if truncated {
		m.truncated.Inc()
	}
}

func (m *Metrics) csrfRejected(code string) {
	if m == nil {
		return
	}
	m.csrfRejections.WithLabelValues(code).Inc()
}

func (m *Metrics) rateLimitHit(limiter string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(limiter).Inc()
}

func (m *Metrics) recordEvent(event AuditEvent) {
	if m == nil {
		return
	}
	m.auditEvents.WithLabelValues(string(event)).Inc()
}
