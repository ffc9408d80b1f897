// Package metrics instruments analysis runs with Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "precipgen"

// Metrics holds the counters, histograms and gauges for analysis runs.
type Metrics struct {
	Runs        *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration prometheus.Histogram

	Windows           *prometheus.CounterVec // labels: quality={ok,low_quality}
	WaveComponents    *prometheus.CounterVec // labels: class={short,medium,long}
	UnstableModels    prometheus.Counter
	ProjectedPeriods  *prometheus.CounterVec // labels: mode={wave,randomwalk}
	LastRunTimestamp  prometheus.Gauge
	ObservationsTotal prometheus.Counter
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete analysis run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Estimated windows by quality flag.",
		}, []string{"quality"}),
		WaveComponents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wave_components_total",
			Help:      "Fitted wave components by cycle class.",
		}, []string{"class"}),
		UnstableModels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unstable_models_total",
			Help:      "Random-walk models whose reversion rate fell outside the stable range.",
		}),
		ProjectedPeriods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projected_periods_total",
			Help:      "Projected future periods by projection mode.",
		}, []string{"mode"}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last successful run finished.",
		}),
		ObservationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Daily observations consumed across all runs.",
		}),
	}

	reg.MustRegister(
		m.Runs,
		m.RunDuration,
		m.Windows,
		m.WaveComponents,
		m.UnstableModels,
		m.ProjectedPeriods,
		m.LastRunTimestamp,
		m.ObservationsTotal,
	)

	return m
}

// NewForTesting registers the metrics with a fresh registry so tests can
// create as many as they need.
func NewForTesting() *Metrics {
	return New(prometheus.NewRegistry())
}
