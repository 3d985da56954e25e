// Package monitoring exposes the watcher's Prometheus collectors.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// fetch-dispatch loop.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleErrors   prometheus.Counter
	CycleDuration prometheus.Histogram

	// Per-row pipeline metrics.
	RowsTotal     prometheus.Counter
	FilteredRows  prometheus.Counter
	MalformedRows prometheus.Counter
	IncidentsNew  prometheus.Counter
	DetailErrors  prometheus.Counter

	// Delivery metrics.
	DispatchesTotal prometheus.Counter
	DispatchErrors  prometheus.Counter

	// Seen-store size, refreshed at the end of each cycle.
	SeenEntries prometheus.Gauge
}

// NewMetrics creates and registers all watcher metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chp_watch",
			Name:      "cycles_total",
			Help:      "Total poll cycles started.",
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chp_watch",
			Name:      "cycle_errors_total",
			Help:      "Total poll cycles that failed for every configured center.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chp_watch",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-extract-dispatch cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chp_watch",
			Name:      "rows_total",
			Help:      "Total incident grid rows observed.",
		}),
		FilteredRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chp_watch",
			Name:      "filtered_rows_total",
			Help:      "Rows skipped by the incident type filter.",
		}),
		MalformedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chp_watch",
			Name:      "malformed_rows_total",
			Help:      "Rows missing mandatory fields, logged and skipped.",
		}),
		IncidentsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chp_watch",
			Name:      "incidents_new_total",
			Help:      "Incidents not present in the seen store.",
		}),
		DetailErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chp_watch",
			Name:      "detail_errors_total",
			Help:      "Detail postbacks that failed; the incident is still dispatched without coordinates.",
		}),
		DispatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chp_watch",
			Name:      "dispatches_total",
			Help:      "Incident messages delivered.",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chp_watch",
			Name:      "dispatch_errors_total",
			Help:      "Incident messages that failed to deliver; the incident stays unseen for the next cycle.",
		}),
		SeenEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chp_watch",
			Name:      "seen_entries",
			Help:      "Live entries in the seen store.",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleErrors,
		m.CycleDuration,
		m.RowsTotal,
		m.FilteredRows,
		m.MalformedRows,
		m.IncidentsNew,
		m.DetailErrors,
		m.DispatchesTotal,
		m.DispatchErrors,
		m.SeenEntries,
	)

	return m
}

// NewMetricsForTesting creates Metrics with no registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		CyclesTotal:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chp_watch", Name: "cycles_total"}),
		CycleErrors:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chp_watch", Name: "cycle_errors_total"}),
		CycleDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "chp_watch", Name: "cycle_duration_seconds"}),
		RowsTotal:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chp_watch", Name: "rows_total"}),
		FilteredRows:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chp_watch", Name: "filtered_rows_total"}),
		MalformedRows:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chp_watch", Name: "malformed_rows_total"}),
		IncidentsNew:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chp_watch", Name: "incidents_new_total"}),
		DetailErrors:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chp_watch", Name: "detail_errors_total"}),
		DispatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chp_watch", Name: "dispatches_total"}),
		DispatchErrors:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chp_watch", Name: "dispatch_errors_total"}),
		SeenEntries:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "chp_watch", Name: "seen_entries"}),
	}
}
