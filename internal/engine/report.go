package engine

import (
	"time"

	"github.com/chrissnell/precipgen/internal/estimator"
	"github.com/chrissnell/precipgen/internal/precip"
	"github.com/chrissnell/precipgen/internal/randomwalk"
	"github.com/chrissnell/precipgen/internal/synth"
	"github.com/chrissnell/precipgen/internal/wave"
	"github.com/chrissnell/precipgen/internal/window"
)

// Report is the complete output of one analysis run.
type Report struct {
	Schema      int       `json:"schema"`
	RunID       string    `json:"run_id"`
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
	Settings    Settings  `json:"settings"`

	Series   SeriesSummary        `json:"series"`
	Baseline *precip.MonthlyTable `json:"baseline"`

	Windows   *window.Result   `json:"windows"`
	Histories []ParameterTable `json:"histories"`

	Waves      []WaveResult      `json:"waves,omitempty"`
	RandomWalk *randomwalk.Fit   `json:"random_walk,omitempty"`
	Seasonal   []SeasonalFit     `json:"seasonal,omitempty"`
	Projection *synth.Projection `json:"projection,omitempty"`

	// Skipped lists stages that could not run on this data.
	Skipped []StageError `json:"skipped,omitempty"`
}

// Settings echoes the configuration that shaped the run.
type Settings struct {
	Units           string             `json:"units"`
	WetThreshold    float64            `json:"wet_threshold"`
	GammaMethod     string             `json:"gamma_method"`
	WindowYears     float64            `json:"window_years"`
	OverlapFraction float64            `json:"overlap_fraction"`
	MinCoverage     float64            `json:"min_coverage"`
	Months          []time.Month       `json:"months,omitempty"`
	IncludeLow      bool               `json:"include_low_quality"`
	GridStepYears   float64            `json:"grid_step_years"`
	NumComponents   int                `json:"num_components"`
	Parameters      []precip.Parameter `json:"parameters"`
}

// SeriesSummary describes the input series.
type SeriesSummary struct {
	First    time.Time     `json:"first"`
	Last     time.Time     `json:"last"`
	Days     int           `json:"days"`
	Missing  int           `json:"missing"`
	Coverage float64       `json:"coverage"`
	Spells   precip.Spells `json:"spells"`

	// Annual is nil when no calendar year reaches the window coverage threshold.
	Annual *estimator.AnnualStats `json:"annual,omitempty"`
}

// ParameterTable is the window-by-window history of one parameter.
type ParameterTable struct {
	Parameter precip.Parameter `json:"parameter"`
	Rows      []window.Row     `json:"rows"`
}

// WaveResult is one parameter's decomposition and its cycle groups.
type WaveResult struct {
	Parameter     precip.Parameter    `json:"parameter"`
	Decomposition *wave.Decomposition `json:"decomposition"`
	Groups        []wave.Group        `json:"groups"`
}

// SeasonalFit is the random-walk fit of one season's histories.
type SeasonalFit struct {
	Season string          `json:"season"`
	Months []time.Month    `json:"months"`
	Fit    *randomwalk.Fit `json:"fit"`
}

// StageError records a stage skipped for lack of data.
type StageError struct {
	Stage   string `json:"stage"`
	Subject string `json:"subject,omitempty"`
	Error   string `json:"error"`
}

// Wave returns the decomposition for p, or nil when it was skipped.
func (r *Report) Wave(p precip.Parameter) *wave.Decomposition {
	for _, w := range r.Waves {
		if w.Parameter == p {
			return w.Decomposition
		}
	}
	return nil
}
