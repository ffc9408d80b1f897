// Package engine runs a complete parameter evolution analysis over one daily
// series: the baseline monthly table, sliding-window histories, wave
// decomposition, the random-walk model and an optional projection.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/chrissnell/precipgen/internal/constants"
	"github.com/chrissnell/precipgen/internal/estimator"
	"github.com/chrissnell/precipgen/internal/history"
	"github.com/chrissnell/precipgen/internal/metrics"
	"github.com/chrissnell/precipgen/internal/precip"
	"github.com/chrissnell/precipgen/internal/randomwalk"
	"github.com/chrissnell/precipgen/internal/synth"
	"github.com/chrissnell/precipgen/internal/wave"
	"github.com/chrissnell/precipgen/internal/window"
	"github.com/chrissnell/precipgen/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// projectionStream is the second PCG word paired with the configured seed.
const projectionStream = 0x9e3779b97f4a7c15

// Analyzer runs analyses with a fixed configuration. It holds no per-run
// state and may be reused.
type Analyzer struct {
	cfg       *config.AnalysisConfig
	estimator estimator.Options
	windows   *window.Extractor
	walk      randomwalk.Options
	mode      synth.Mode
	synth     synth.Options
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics
}

// New validates cfg and prepares an analyzer. logger and m may be nil.
func New(cfg *config.AnalysisConfig, logger *zap.SugaredLogger, m *metrics.Metrics) (*Analyzer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: no configuration", precip.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	est, err := estimatorOptions(cfg)
	if err != nil {
		return nil, err
	}
	wc, err := windowConfig(cfg)
	if err != nil {
		return nil, err
	}
	extractor, err := window.NewExtractor(wc, logger.Named("windows"))
	if err != nil {
		return nil, err
	}
	walk, err := randomWalkOptions(cfg)
	if err != nil {
		return nil, err
	}
	mode, sopts, err := synthOptions(cfg)
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		cfg:       cfg,
		estimator: est,
		windows:   extractor,
		walk:      walk,
		mode:      mode,
		synth:     sopts,
		logger:    logger,
		metrics:   m,
	}, nil
}

// Run analyzes one chronological daily series. Stages that lack data, such
// as a decomposition over too few windows, are recorded in Report.Skipped;
// configuration and validation failures abort the run.
func (a *Analyzer) Run(ctx context.Context, obs []precip.Observation) (*Report, error) {
	start := clock.Now()
	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	logger.Infow("analysis started", "observations", len(obs))

	report, err := a.run(ctx, logger, obs)
	a.observe(start, len(obs), report, err)
	if err != nil {
		logger.Errorw("analysis failed", "error", err)
		return nil, err
	}

	report.RunID = runID
	report.GeneratedAt = clock.Now().UTC()
	logger.Infow("analysis finished",
		"windows", len(report.Windows.Windows),
		"skipped_stages", len(report.Skipped),
		"elapsed", clock.Since(start))
	return report, nil
}

func (a *Analyzer) run(ctx context.Context, logger *zap.SugaredLogger, obs []precip.Observation) (*Report, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: empty daily series", precip.ErrInsufficientData)
	}
	if err := precip.ValidateSeries(obs); err != nil {
		return nil, err
	}

	report := &Report{
		Schema:   constants.ReportSchema,
		Version:  constants.Version,
		Settings: a.settings(),
		Series:   a.summarize(obs),
	}

	baseline, err := estimator.Estimate(obs, a.estimator)
	if err != nil {
		return nil, fmt.Errorf("baseline estimate: %w", err)
	}
	report.Baseline = baseline

	annual, err := estimator.Annual(obs, a.estimator, a.cfg.Windows.MinCoverage)
	if err != nil {
		if err := a.skip(report, logger, "annual", "", err); err != nil {
			return nil, err
		}
	} else {
		report.Series.Annual = annual
		logger.Debugw("annual statistics", "years", len(annual.Totals),
			"autocorrelation", annual.Autocorrelation.Value, "lag", annual.AutocorrelationLag)
	}

	result, err := a.windows.Extract(ctx, obs)
	if err != nil {
		return nil, err
	}
	report.Windows = result
	ok, low := result.Counts()
	logger.Infow("windows estimated", "ok", ok, "low_quality", low)

	for _, p := range precip.Parameters {
		report.Histories = append(report.Histories, ParameterTable{Parameter: p, Rows: result.Table(p)})
	}

	includeLow := a.cfg.Windows.IncludeLowQuality
	aligned, err := a.align(func(p precip.Parameter) (history.ParameterHistory, error) {
		return result.History(p, includeLow)
	})
	if err != nil {
		if err := a.skip(report, logger, "histories", "", err); err != nil {
			return nil, err
		}
		return report, nil
	}

	if err := a.decompose(report, logger, aligned); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis interrupted: %w", err)
	}

	fit, err := randomwalk.FitAll(aligned, a.walk)
	if err != nil {
		if err := a.skip(report, logger, "random_walk", "", err); err != nil {
			return nil, err
		}
	} else {
		report.RandomWalk = fit
		for _, m := range fit.Models {
			logger.Debugw("random walk fitted", "parameter", m.Parameter,
				"mean", m.Mean, "sigma", m.Volatility, "reversion_rate", m.ReversionRate)
		}
		if unstable := fit.Unstable(); len(unstable) > 0 {
			logger.Warnw("reversion rate outside stable range", "parameters", unstable,
				"min", a.walk.MinStableRate, "max", a.walk.MaxStableRate)
		}
	}

	if a.cfg.RandomWalk.Seasonal {
		if err := a.seasonal(report, logger, result, includeLow); err != nil {
			return nil, err
		}
	}

	last := aligned[0].Times[aligned[0].Len()-1]
	if err := a.project(report, logger, last); err != nil {
		return nil, err
	}
	return report, nil
}

// align builds every parameter's history and resamples them onto the grid
// they share.
func (a *Analyzer) align(build func(precip.Parameter) (history.ParameterHistory, error)) ([]history.ParameterHistory, error) {
	raw := make([]history.ParameterHistory, 0, precip.NumParameters)
	for _, p := range precip.Parameters {
		h, err := build(p)
		if err != nil {
			return nil, err
		}
		raw = append(raw, h)
	}

	grid, err := history.CommonGrid(a.cfg.Waves.GridStepYears, raw...)
	if err != nil {
		return nil, err
	}

	aligned := make([]history.ParameterHistory, len(raw))
	for i, h := range raw {
		if aligned[i], err = history.ResampleOnto(h, grid); err != nil {
			return nil, err
		}
	}
	return aligned, nil
}

func (a *Analyzer) decompose(report *Report, logger *zap.SugaredLogger, aligned []history.ParameterHistory) error {
	for _, h := range aligned {
		d, err := wave.Decompose(h, a.cfg.Waves.NumComponents)
		if err != nil {
			if err := a.skip(report, logger, "waves", h.Parameter.String(), err); err != nil {
				return err
			}
			continue
		}
		if err := wave.ValidateComponents(d.Components); err != nil {
			return fmt.Errorf("%s decomposition: %w", h.Parameter, err)
		}
		groups, err := wave.Summarize(d.Components)
		if err != nil {
			return fmt.Errorf("classifying %s cycles: %w", h.Parameter, err)
		}
		report.Waves = append(report.Waves, WaveResult{Parameter: h.Parameter, Decomposition: d, Groups: groups})

		for _, c := range d.Components {
			logger.Debugw("wave component", "parameter", h.Parameter,
				"period", c.Period, "amplitude", c.Amplitude, "variance_explained", c.VarianceExplained, "class", c.Class)
		}
	}
	return nil
}

func (a *Analyzer) seasonal(report *Report, logger *zap.SugaredLogger, result *window.Result, includeLow bool) error {
	for _, s := range window.Seasons {
		aligned, err := a.align(func(p precip.Parameter) (history.ParameterHistory, error) {
			return result.SeasonalHistory(p, s, includeLow)
		})
		if err == nil {
			var fit *randomwalk.Fit
			if fit, err = randomwalk.FitAll(aligned, a.walk); err == nil {
				report.Seasonal = append(report.Seasonal, SeasonalFit{Season: s.Name, Months: s.Months, Fit: fit})
				continue
			}
		}
		if err := a.skip(report, logger, "seasonal", s.Name, err); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) project(report *Report, logger *zap.SugaredLogger, start float64) error {
	step := a.cfg.Waves.GridStepYears
	periods := a.cfg.Projection.Periods

	switch a.mode {
	case synth.ModeWave:
		if len(report.Waves) == 0 {
			return a.skip(report, logger, "projection", string(a.mode),
				fmt.Errorf("%w: no wave decomposition to project", precip.ErrInsufficientData))
		}
		var curves [precip.NumParameters]synth.Curve
		for _, w := range report.Waves {
			curves[w.Parameter] = w.Decomposition
		}
		proj, err := synth.ProjectWaves(curves, start, step, periods, a.synth)
		if err != nil {
			return fmt.Errorf("wave projection: %w", err)
		}
		report.Projection = proj

	case synth.ModeRandomWalk:
		if report.RandomWalk == nil {
			return a.skip(report, logger, "projection", string(a.mode),
				fmt.Errorf("%w: no random-walk model to project", precip.ErrInsufficientData))
		}
		seed := *a.cfg.Projection.Seed
		proj, err := synth.ProjectRandomWalk(report.RandomWalk, start, step, periods,
			rand.NewPCG(seed, projectionStream), a.synth)
		if err != nil {
			return fmt.Errorf("random-walk projection: %w", err)
		}
		proj.Seed = &seed
		if proj.Repaired {
			logger.Warnw("correlation matrix was not positive definite; projected with nearest correlation matrix")
		}
		report.Projection = proj

	default:
		return nil
	}

	logger.Infow("projection complete", "mode", a.mode, "periods", periods, "start", start)
	return nil
}

// skip records err against the stage when it only reflects a lack of data
// and returns nil. Any other error is returned unchanged.
func (a *Analyzer) skip(report *Report, logger *zap.SugaredLogger, stage, subject string, err error) error {
	if !errors.Is(err, precip.ErrInsufficientData) && !errors.Is(err, precip.ErrInsufficientSamples) {
		return err
	}
	logger.Warnw("stage skipped", "stage", stage, "subject", subject, "error", err)
	report.Skipped = append(report.Skipped, StageError{Stage: stage, Subject: subject, Error: err.Error()})
	return nil
}

func (a *Analyzer) settings() Settings {
	wc := a.windows.Config()
	return Settings{
		Units:           a.cfg.Estimator.Units,
		WetThreshold:    a.estimator.WetThreshold,
		GammaMethod:     string(a.estimator.GammaMethod),
		WindowYears:     wc.LengthYears,
		OverlapFraction: wc.Overlap,
		MinCoverage:     wc.MinCoverage,
		Months:          wc.Months,
		IncludeLow:      a.cfg.Windows.IncludeLowQuality,
		GridStepYears:   a.cfg.Waves.GridStepYears,
		NumComponents:   a.cfg.Waves.NumComponents,
		Parameters:      append([]precip.Parameter(nil), precip.Parameters[:]...),
	}
}

func (a *Analyzer) summarize(obs []precip.Observation) SeriesSummary {
	s := SeriesSummary{
		First:  obs[0].Date,
		Last:   obs[len(obs)-1].Date,
		Days:   len(obs),
		Spells: precip.LongestSpells(obs, a.estimator.WetThreshold),
	}
	for _, o := range obs {
		if o.Missing {
			s.Missing++
		}
	}
	calendar := int(s.Last.Sub(s.First).Hours()/24+0.5) + 1
	s.Coverage = float64(s.Days-s.Missing) / float64(calendar)
	return s
}

func (a *Analyzer) observe(start time.Time, observations int, r *Report, err error) {
	if a.metrics == nil {
		return
	}
	a.metrics.RunDuration.Observe(clock.Since(start).Seconds())
	if err != nil {
		a.metrics.Runs.WithLabelValues("error").Inc()
		return
	}

	a.metrics.Runs.WithLabelValues("success").Inc()
	a.metrics.ObservationsTotal.Add(float64(observations))

	ok, low := r.Windows.Counts()
	a.metrics.Windows.WithLabelValues(string(window.QualityOK)).Add(float64(ok))
	a.metrics.Windows.WithLabelValues(string(window.QualityLow)).Add(float64(low))
	for _, w := range r.Waves {
		for _, c := range w.Decomposition.Components {
			a.metrics.WaveComponents.WithLabelValues(string(c.Class)).Inc()
		}
	}
	if r.RandomWalk != nil {
		a.metrics.UnstableModels.Add(float64(len(r.RandomWalk.Unstable())))
	}
	if r.Projection != nil {
		a.metrics.ProjectedPeriods.WithLabelValues(string(r.Projection.Mode)).Add(float64(len(r.Projection.Points)))
	}
	a.metrics.LastRunTimestamp.Set(float64(clock.Now().Unix()))
}
