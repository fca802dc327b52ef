// Package metrics exposes the Prometheus counters of the extraction engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Skip reasons recorded in coverstats_records_skipped_total.
const (
	SkipReasonDuplicate = "duplicate"
	SkipReasonFiltered  = "filtered"
	SkipReasonMalformed = "malformed"
)

// Metrics holds the extraction counters.
type Metrics struct {
	EntriesAddedTotal   *prometheus.CounterVec
	DaysExtractedTotal  prometheus.Counter
	RecordsSkippedTotal *prometheus.CounterVec
	EntriesRemovedTotal prometheus.Counter
	SearchRequestsTotal *prometheus.CounterVec
}

// NewMetrics returns the process wide metrics, registering them on the
// default registry the first time it is called.
//
// Metrics:
//   - coverstats_entries_added_total{kind}
//   - coverstats_days_extracted_total
//   - coverstats_records_skipped_total{reason}
//   - coverstats_entries_removed_total
//   - coverstats_search_requests_total{op,status}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	})
	return globalMetrics
}

// NewMetricsWithRegistry registers a fresh set of metrics on reg. Tests use
// it to read counters without touching global state.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		EntriesAddedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coverstats_entries_added_total",
				Help: "Total number of entries written to an extraction target",
			},
			[]string{"kind"},
		),
		DaysExtractedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "coverstats_days_extracted_total",
				Help: "Total number of days fully extracted",
			},
		),
		RecordsSkippedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coverstats_records_skipped_total",
				Help: "Total number of log records or candidates not written",
			},
			[]string{"reason"},
		),
		EntriesRemovedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "coverstats_entries_removed_total",
				Help: "Total number of delivered entries removed by retention",
			},
		),
		SearchRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coverstats_search_requests_total",
				Help: "Total number of requests sent to the search engine",
			},
			[]string{"op", "status"},
		),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// A nil *Metrics is valid and records nothing.

func (m *Metrics) RecordEntryAdded(kind string) {
	if m == nil {
		return
	}
	m.EntriesAddedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordDayExtracted() {
	if m == nil {
		return
	}
	m.DaysExtractedTotal.Inc()
}

func (m *Metrics) RecordSkipped(reason string) {
	if m == nil {
		return
	}
	m.RecordsSkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordRemoved(n int) {
	if m == nil {
		return
	}
	m.EntriesRemovedTotal.Add(float64(n))
}

// RecordSearchRequest counts one search engine call. status is the HTTP
// status code, or "error" when no response was received.
func (m *Metrics) RecordSearchRequest(op, status string) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.WithLabelValues(op, status).Inc()
}
