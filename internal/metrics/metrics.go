// Package metrics owns the prometheus registry and the instruments for
// the HTTP surface and the rewrite pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/strictcsp/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal prometheus.Counter

	pagesHardenedTotal       prometheus.Counter
	hardenErrorsTotal        prometheus.Counter
	scriptsExternalizedTotal prometheus.Counter
	inlineHashesTotal        *prometheus.CounterVec
	rewriteDuration          prometheus.Histogram
}

// New returns a fresh registry + standard collectors + app metrics.
// Safe labels only (method, route, code) to avoid cardinality blowups.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		reg: reg,
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panics_recovered_total",
			Help: "Total panics recovered in HTTP handlers",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata as constant labels",
		}, []string{"version", "commit", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_denied_total",
			Help: "Total requests denied by the per-IP rate limiter",
		}),
		pagesHardenedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pages_hardened_total",
			Help: "Total HTML documents rewritten with a strict CSP",
		}),
		hardenErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harden_errors_total",
			Help: "Total documents that failed to parse or render",
		}),
		scriptsExternalizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sourced_scripts_externalized_total",
			Help: "Total script src elements replaced by inline loaders",
		}),
		inlineHashesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inline_hashes_total",
			Help: "Total CSP hash tokens computed, by element kind",
		}, []string{"kind"}),
		rewriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewrite_duration_seconds",
			Help:    "Time spent hardening one document",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}),
	}

	reg.MustRegister(
		m.inflight, m.reqTotal, m.reqDur, m.httpPanicTotal, m.buildInfo,
		m.ratelimitDeniedTotal,
		m.pagesHardenedTotal, m.hardenErrorsTotal,
		m.scriptsExternalizedTotal, m.inlineHashesTotal, m.rewriteDuration,
	)

	vi := version.Get()
	m.buildInfo.WithLabelValues(vi.Version, vi.Commit, vi.GoVersion).Set(1)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registry for the admin /metrics endpoint.
func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry exposes the underlying registry for tests.
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncPanic()       { m.httpPanicTotal.Inc() }
func (m *ServerMetrics) IncRateLimited() { m.ratelimitDeniedTotal.Inc() }

// ObserveRewrite records the outcome of one successful harden pass.
func (m *ServerMetrics) ObserveRewrite(externalScripts, scriptHashes, styleHashes int, seconds float64) {
	m.pagesHardenedTotal.Inc()
	m.scriptsExternalizedTotal.Add(float64(externalScripts))
	m.inlineHashesTotal.WithLabelValues("script").Add(float64(scriptHashes))
	m.inlineHashesTotal.WithLabelValues("style").Add(float64(styleHashes))
	m.rewriteDuration.Observe(seconds)
}

// IncHardenError records a document that could not be hardened.
func (m *ServerMetrics) IncHardenError() { m.hardenErrorsTotal.Inc() }
