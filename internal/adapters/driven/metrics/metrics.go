// Package metrics exports writer and indexer counters through a Prometheus
// registry. The CLI is short-lived, so the registry is written to a
// node_exporter textfile instead of being served.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/archivist/internal/core/domain"
	"github.com/custodia-labs/archivist/internal/core/ports/driven"
)

const namespace = "archivist"

var (
	_ driven.WriteMetrics = (*Metrics)(nil)
	_ driven.IndexMetrics = (*Metrics)(nil)
)

// Metrics holds the registry and its collectors.
type Metrics struct {
	Registry *prometheus.Registry

	writes        *prometheus.CounterVec
	records       *prometheus.CounterVec
	scans         prometheus.Counter
	scanDuration  prometheus.Histogram
	lastScanEpoch prometheus.Gauge
	now           func() time.Time
}

// New creates a registry with every collector registered.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "writes_total",
			Help:      "Repository writes by kind and outcome.",
		}, []string{"kind", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "records_total",
			Help:      "Sidecars evaluated by the indexer, by outcome.",
		}, []string{"outcome"}),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "scans_total",
			Help:      "Completed index runs.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of index runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lastScanEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time the last index run finished.",
		}),
		now: time.Now,
	}
	m.Registry.MustRegister(m.writes, m.records, m.scans, m.scanDuration, m.lastScanEpoch)
	return m
}

// ObserveWrite counts one writer outcome.
func (m *Metrics) ObserveWrite(kind, outcome string) {
	m.writes.WithLabelValues(kind, outcome).Inc()
}

// ObserveRecord counts one indexer outcome.
func (m *Metrics) ObserveRecord(outcome domain.Outcome) {
	m.records.WithLabelValues(string(outcome)).Inc()
}

// ObserveScan records a finished run.
func (m *Metrics) ObserveScan(d time.Duration) {
	m.scans.Inc()
	m.scanDuration.Observe(d.Seconds())
	m.lastScanEpoch.Set(float64(m.now().Unix()))
}

// WriteToTextfile writes the registry in the text exposition format. The
// file is replaced atomically.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
