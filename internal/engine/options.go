package engine

import (
	"fmt"
	"time"

	"github.com/chrissnell/precipgen/internal/estimator"
	"github.com/chrissnell/precipgen/internal/precip"
	"github.com/chrissnell/precipgen/internal/randomwalk"
	"github.com/chrissnell/precipgen/internal/synth"
	"github.com/chrissnell/precipgen/internal/window"
	"github.com/chrissnell/precipgen/pkg/config"
)

func estimatorOptions(cfg *config.AnalysisConfig) (estimator.Options, error) {
	if cfg.Estimator.WetThreshold == nil {
		return estimator.Options{}, fmt.Errorf("%w: wet threshold is not configured", precip.ErrConfiguration)
	}
	opts := estimator.Options{
		WetThreshold: *cfg.Estimator.WetThreshold,
		MinWetDays:   cfg.Estimator.MinWetDays,
		GammaMethod:  estimator.GammaMethod(cfg.Estimator.GammaMethod),
	}
	return opts, opts.Validate()
}

func windowConfig(cfg *config.AnalysisConfig) (window.Config, error) {
	est, err := estimatorOptions(cfg)
	if err != nil {
		return window.Config{}, err
	}

	wc := window.Config{
		LengthYears: cfg.Windows.LengthYears,
		Overlap:     cfg.Windows.OverlapFraction,
		MinCoverage: cfg.Windows.MinCoverage,
		Estimator:   est,
		Workers:     cfg.Windows.Workers,
	}
	for _, m := range cfg.Windows.Months {
		wc.Months = append(wc.Months, time.Month(m))
	}
	return wc, wc.Validate()
}

func randomWalkOptions(cfg *config.AnalysisConfig) (randomwalk.Options, error) {
	opts := randomwalk.Options{
		MinStableRate: cfg.RandomWalk.MinStableRate,
		MaxStableRate: cfg.RandomWalk.MaxStableRate,
	}
	return opts, opts.Validate()
}

func synthOptions(cfg *config.AnalysisConfig) (synth.Mode, synth.Options, error) {
	mode, err := synth.ParseMode(cfg.Projection.Mode)
	if err != nil {
		return "", synth.Options{}, err
	}
	opts := synth.Options{
		MinGammaParam: cfg.Projection.MinGammaParam,
		AllowUnstable: cfg.Projection.AllowUnstable,
	}
	if err := opts.Validate(); err != nil {
		return "", synth.Options{}, err
	}
	if mode == synth.ModeRandomWalk && cfg.Projection.Seed == nil {
		return "", synth.Options{}, fmt.Errorf("%w: random-walk projection requires a seed", precip.ErrConfiguration)
	}
	if mode != synth.ModeNone && cfg.Projection.Periods < 1 {
		return "", synth.Options{}, fmt.Errorf("%w: %s projection needs at least one period", precip.ErrConfiguration, mode)
	}
	return mode, opts, nil
}
