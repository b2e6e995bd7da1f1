package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "landslide_rainfall"

// Metrics holds the Prometheus counters, histograms, and gauges for the extraction job.
type Metrics struct {
	PointsLoaded    prometheus.Counter
	PointsSkipped   prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Archive query metrics.
	Queries        *prometheus.CounterVec // labels: outcome={success,error,empty}
	QueryDuration  prometheus.Histogram
	Samples        prometheus.Counter
	SamplesMissing prometheus.Counter

	// Export metrics.
	RowsExported   *prometheus.CounterVec // labels: sink
	ExportDuration prometheus.Histogram
}

// NewMetrics creates and registers all job metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.PointsLoaded,
		m.PointsSkipped,
		m.PipelineRunning,
		m.Queries,
		m.QueryDuration,
		m.Samples,
		m.SamplesMissing,
		m.RowsExported,
		m.ExportDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PointsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_loaded_total",
			Help:      "Total landslide points read from the point source.",
		}),
		PointsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_skipped_total",
			Help:      "Points skipped because their event date or geometry was invalid.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Archive window queries by outcome.",
		}, []string{"outcome"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of one windowed archive query.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Reduced images returned by the archive.",
		}),
		SamplesMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_missing_total",
			Help:      "Reduced images with no coverage at the point.",
		}),
		RowsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_exported_total",
			Help:      "Rows written to the export sink.",
		}, []string{"sink"}),
		ExportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of the export step.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
