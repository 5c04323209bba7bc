// Package monitoring records fetch and retrieval metrics and summarizes the run log.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sells-group/gmprocess-cli/internal/model"
)

const namespace = "gmprocess"

// Metrics holds the Prometheus collectors for catalog queries and archive
// retrievals. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CatalogQueries    *prometheus.CounterVec   // labels: agency, outcome={success,error}
	MatchedEvents     *prometheus.CounterVec   // labels: agency
	FilesDownloaded   *prometheus.CounterVec   // labels: agency
	BytesDownloaded   *prometheus.CounterVec   // labels: agency
	TracesParsed      *prometheus.CounterVec   // labels: agency
	RetrievalDuration *prometheus.HistogramVec // labels: agency, outcome
	RetrievalErrors   *prometheus.CounterVec   // labels: agency, stage={download,parse}
	Runs              *prometheus.GaugeVec     // labels: status
}

// New creates Metrics registered on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CatalogQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_queries_total",
			Help:      "Catalog queries by agency and outcome.",
		}, []string{"agency", "outcome"}),
		MatchedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matched_events_total",
			Help:      "Catalog events matched to an origin.",
		}, []string{"agency"}),
		FilesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_downloaded_total",
			Help:      "Record files downloaded from data center archives.",
		}, []string{"agency"}),
		BytesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_downloaded_total",
			Help:      "Bytes downloaded from data center archives.",
		}, []string{"agency"}),
		TracesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_parsed_total",
			Help:      "Waveform traces parsed from downloaded files.",
		}, []string{"agency"}),
		RetrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of a complete archive retrieval.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"agency", "outcome"}),
		RetrievalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_errors_total",
			Help:      "Retrieval failures by stage.",
		}, []string{"agency", "stage"}),
		Runs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs",
			Help:      "Runs in the retrieval log by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CatalogQueries,
		m.MatchedEvents,
		m.FilesDownloaded,
		m.BytesDownloaded,
		m.TracesParsed,
		m.RetrievalDuration,
		m.RetrievalErrors,
		m.Runs,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveCatalogQuery counts one catalog query.
func (m *Metrics) ObserveCatalogQuery(agency string, err error) {
	if m == nil {
		return
	}
	m.CatalogQueries.WithLabelValues(agency, outcome(err)).Inc()
}

// AddMatchedEvents counts events returned by a match.
func (m *Metrics) AddMatchedEvents(agency string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MatchedEvents.WithLabelValues(agency).Add(float64(n))
}

// AddDownload counts one downloaded file of the given size.
func (m *Metrics) AddDownload(agency string, bytes int64) {
	if m == nil {
		return
	}
	m.FilesDownloaded.WithLabelValues(agency).Inc()
	if bytes > 0 {
		m.BytesDownloaded.WithLabelValues(agency).Add(float64(bytes))
	}
}

// AddTraces counts parsed traces.
func (m *Metrics) AddTraces(agency string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TracesParsed.WithLabelValues(agency).Add(float64(n))
}

// ObserveRetrieval records the duration of one retrieval.
func (m *Metrics) ObserveRetrieval(agency string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RetrievalDuration.WithLabelValues(agency, outcome(err)).Observe(d.Seconds())
}

// RetrievalError counts a retrieval failure at stage.
func (m *Metrics) RetrievalError(agency, stage string) {
	if m == nil {
		return
	}
	m.RetrievalErrors.WithLabelValues(agency, stage).Inc()
}

// SetRunCounts replaces the run gauges with the given per-status counts.
func (m *Metrics) SetRunCounts(counts map[model.RunStatus]int) {
	if m == nil {
		return
	}
	m.Runs.Reset()
	for status, n := range counts {
		m.Runs.WithLabelValues(string(status)).Set(float64(n))
	}
}
