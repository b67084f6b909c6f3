// Package metrics exposes prometheus counters for digest jobs. A nil *Metrics is valid
// and records nothing, so components can be used without metrics wiring.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// publish kinds
const (
	PublishThrottled = "throttled"
	PublishForced    = "forced"
)

// Metrics holds the collectors and the registry they are registered with
type Metrics struct {
	registry *prometheus.Registry

	jobsStarted   prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsActive    prometheus.Gauge
	events        *prometheus.CounterVec
	malformed     prometheus.Counter
	publishes     *prometheus.CounterVec
	logsDropped   prometheus.Counter
	reapplyPasses *prometheus.CounterVec
	reapplyTime   prometheus.Histogram
	extractions   *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

// New makes Metrics with a private registry, including go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdigest", Name: "jobs_started_total", Help: "generation jobs started",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdigest", Name: "jobs_finished_total", Help: "generation jobs finished by status",
		}, []string{"status"}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "newsdigest", Name: "jobs_active", Help: "generation jobs currently streaming",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdigest", Name: "stream_events_total", Help: "decoded stream events by type",
		}, []string{"type"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdigest", Name: "stream_malformed_lines_total", Help: "stream lines skipped as malformed",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdigest", Name: "publishes_total", Help: "snapshots delivered to observers by kind",
		}, []string{"kind"}),
		logsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdigest", Name: "log_lines_dropped_total", Help: "advisory log lines dropped by rate limit",
		}),
		reapplyPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdigest", Name: "reapply_passes_total", Help: "rule reapplication passes by result",
		}, []string{"result"}),
		reapplyTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "newsdigest", Name: "reapply_duration_seconds", Help: "rule reapplication pass duration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdigest", Name: "extractions_total", Help: "test extractions by result",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdigest", Name: "verifications_total", Help: "background re-verifications by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsStarted, m.jobsFinished, m.jobsActive, m.events, m.malformed, m.publishes,
		m.logsDropped, m.reapplyPasses, m.reapplyTime, m.extractions, m.verifications,
	)
	return m
}

// Handler returns http handler serving the registry in prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// JobStarted records a new job
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsStarted.Inc()
	m.jobsActive.Inc()
}

// JobFinished records a job reaching a terminal status
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status).Inc()
	m.jobsActive.Dec()
}

// Event records a decoded stream event
func (m *Metrics) Event(typ string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(typ).Inc()
}

// Malformed records a skipped stream line
func (m *Metrics) Malformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

// Published records a delivered snapshot
func (m *Metrics) Published(kind string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(kind).Inc()
}

// LogDropped records an advisory line dropped by the rate limit
func (m *Metrics) LogDropped() {
	if m == nil {
		return
	}
	m.logsDropped.Inc()
}

// Reapplied records a finished reapplication pass
func (m *Metrics) Reapplied(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.reapplyPasses.WithLabelValues(result).Inc()
	m.reapplyTime.Observe(d.Seconds())
}

// Extracted records one test extraction
func (m *Metrics) Extracted(ok bool) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(okLabel(ok)).Inc()
}

// Verified records one background re-verification
func (m *Metrics) Verified(ok bool) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(okLabel(ok)).Inc()
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
