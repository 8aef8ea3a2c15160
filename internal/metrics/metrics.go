// Package metrics owns the prometheus registry served on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "micdash"

// Render outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the collectors. A nil *Metrics records nothing, so callers
// never need to guard.
type Metrics struct {
	registry       *prometheus.Registry
	renders        *prometheus.CounterVec
	exports        *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
}

// New registers the micdash collectors plus the Go and process collectors on a
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Artifacts and pages rendered, by format and outcome.",
		}, []string{"format", "status"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export jobs that reached a terminal state.",
		}, []string{"status"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering one artifact or page.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"format"}),
	}
	reg.MustRegister(
		m.renders, m.exports, m.renderDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRender records one render that began at started.
func (m *Metrics) ObserveRender(format string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.renders.WithLabelValues(format, status).Inc()
	m.renderDuration.WithLabelValues(format).Observe(time.Since(started).Seconds())
}

// ExportFinished counts an export reaching status.
func (m *Metrics) ExportFinished(status string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(status).Inc()
}
