// Package metrics defines the Prometheus metrics of the directory bot and
// serves them on a private registry.
//
// All recording methods are safe on a nil *Metrics, so components can be
// built without metrics in tests and in the CLI.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbcub/studentdir/internal/domain/resolution"
)

const namespace = "studentdir"

// Metrics holds every collector of the process.
type Metrics struct {
	registry *prometheus.Registry

	searches        *prometheus.CounterVec
	searchDuration  prometheus.Histogram
	importRuns      *prometheus.CounterVec
	importRows      *prometheus.CounterVec
	importDuration  prometheus.Histogram
	telegramUpdates *prometheus.CounterVec
	accessDenied    prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

// New creates the metrics and registers them together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Search queries by outcome (none, unique, ambiguous, error).",
		}, []string{"outcome"}),

		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Time to load the snapshot and match one query.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		importRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Import runs by status (ok, problems, aborted).",
		}, []string{"status"}),

		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Imported rows by outcome.",
		}, []string{"outcome"}),

		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Duration of import runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),

		telegramUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "updates_total",
			Help:      "Telegram updates by kind and handling status.",
		}, []string{"kind", "status"}),

		accessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "denied_total",
			Help:      "Messages refused because the sender has no access.",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		m.searches,
		m.searchDuration,
		m.importRuns,
		m.importRows,
		m.importDuration,
		m.telegramUpdates,
		m.accessDenied,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveSearch records one search with its outcome ("none", "unique", "ambiguous", "error").
func (m *Metrics) ObserveSearch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(d.Seconds())
}

// ObserveImport records a finished run. A nil report means the run was
// aborted before any row was processed.
func (m *Metrics) ObserveImport(r *resolution.Report, d time.Duration) {
	if m == nil {
		return
	}
	m.importDuration.Observe(d.Seconds())

	switch {
	case r == nil:
		m.importRuns.WithLabelValues("aborted").Inc()
		return
	case r.HasProblems():
		m.importRuns.WithLabelValues("problems").Inc()
	default:
		m.importRuns.WithLabelValues("ok").Inc()
	}

	m.importRows.WithLabelValues("created").Add(float64(r.Created))
	m.importRows.WithLabelValues("updated").Add(float64(r.Updated))
	m.importRows.WithLabelValues("unchanged").Add(float64(r.Unchanged))
	m.importRows.WithLabelValues("skipped").Add(float64(r.Skipped))
	m.importRows.WithLabelValues("ambiguous").Add(float64(len(r.Ambiguous)))
	m.importRows.WithLabelValues("failed").Add(float64(len(r.Failed)))
}

// UpdateHandled records one Telegram update.
func (m *Metrics) UpdateHandled(kind, status string) {
	if m == nil {
		return
	}
	m.telegramUpdates.WithLabelValues(kind, status).Inc()
}

// AccessDenied records a refused message.
func (m *Metrics) AccessDenied() {
	if m == nil {
		return
	}
	m.accessDenied.Inc()
}

// HTTPRequest records one HTTP request.
func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
