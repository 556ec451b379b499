package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROMETHEUS METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics holds the service collectors. It owns its registry so tests and
// several servers in one process do not collide on registration.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     prometheus.Counter
	checksRecorded  *prometheus.CounterVec
	rankingBuild    prometheus.Histogram
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
		checksRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checks_recorded_total",
				Help: "Completion records written, by completed flag",
			},
			[]string{"completed"},
		),
		rankingBuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ranking_build_duration_seconds",
			Help:    "Time spent building a challenge ranking",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.rateLimited,
		m.checksRecorded,
		m.rankingBuild,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRankingBuild records one ranking build.
func (m *Metrics) ObserveRankingBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.rankingBuild.Observe(d.Seconds())
}

// CheckRecorded counts one written completion record.
func (m *Metrics) CheckRecorded(completed bool) {
	if m == nil {
		return
	}
	m.checksRecorded.WithLabelValues(strconv.FormatBool(completed)).Inc()
}

func (m *Metrics) observeRequest(r *http.Request, status int, d time.Duration) {
	if m == nil {
		return
	}
	path := routeTemplate(r)
	m.requestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, r.Method).Observe(d.Seconds())
}

func (m *Metrics) rejected() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// routeTemplate labels requests by route pattern so ids in paths do not
// explode label cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
