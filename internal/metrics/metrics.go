// Package metrics exposes monitor activity as Prometheus collectors on a
// private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the daemon publishes.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal        *prometheus.CounterVec   // result=completed|skipped_busy|panicked
	DispatchesTotal   *prometheus.CounterVec   // outcome=succeeded|effect_unavailable|engine_failure
	LifecycleTotal    *prometheus.CounterVec   // terminal=relocated|stuck_marked|marked|marking
	AnomaliesTotal    *prometheus.CounterVec   // kind=duplicate_original|...
	RelocationRetries *prometheus.CounterVec   // result=relocated|stuck_marked
	RenderSeconds     *prometheus.HistogramVec // outcome
	LedgerSize        prometheus.Gauge
	Busy              prometheus.Gauge
}

// New creates the collectors and registers them with a fresh registry that
// also carries the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slowmo_ticks_total",
				Help: "Monitor ticks by result",
			},
			[]string{"result"},
		),
		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slowmo_dispatches_total",
				Help: "Render dispatches by outcome",
			},
			[]string{"outcome"},
		),
		LifecycleTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slowmo_lifecycle_terminal_total",
				Help: "Post-render lifecycle runs by terminal state",
			},
			[]string{"terminal"},
		),
		AnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slowmo_anomalies_total",
				Help: "Anomalies raised by kind",
			},
			[]string{"kind"},
		),
		RelocationRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slowmo_relocation_retries_total",
				Help: "Relocation retries for marked files by result",
			},
			[]string{"result"},
		),
		RenderSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slowmo_render_duration_seconds",
				Help:    "Wall time of engine renders",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
			},
			[]string{"outcome"},
		),
		LedgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slowmo_ledger_identities",
			Help: "Identities recorded as handled in this run",
		}),
		Busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slowmo_busy",
			Help: "1 while a tick is in progress",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TicksTotal,
		m.DispatchesTotal,
		m.LifecycleTotal,
		m.AnomaliesTotal,
		m.RelocationRetries,
		m.RenderSeconds,
		m.LedgerSize,
		m.Busy,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TickCompleted(result string) {
	m.TicksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBusy(busy bool) {
	if busy {
		m.Busy.Set(1)
		return
	}
	m.Busy.Set(0)
}

func (m *Metrics) Dispatched(outcome string, elapsed time.Duration) {
	m.DispatchesTotal.WithLabelValues(outcome).Inc()
	m.RenderSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) LifecycleFinished(terminal string, anomalies []string) {
	m.LifecycleTotal.WithLabelValues(terminal).Inc()
	for _, kind := range anomalies {
		m.AnomaliesTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Anomaly(kind string) {
	m.AnomaliesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RelocationRetried(result string) {
	m.RelocationRetries.WithLabelValues(result).Inc()
}

func (m *Metrics) SetLedgerSize(n int) {
	m.LedgerSize.Set(float64(n))
}
