package window

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chrissnell/precipgen/internal/estimator"
	"github.com/chrissnell/precipgen/internal/precip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Extractor estimates monthly parameters over sliding windows. Windows share
// only the read-only daily series, so they are estimated concurrently.
type Extractor struct {
	cfg    Config
	months [12]bool
	logger *zap.SugaredLogger
}

// NewExtractor validates cfg and returns an Extractor.
func NewExtractor(cfg Config, logger *zap.SugaredLogger) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Extractor{
		cfg:    cfg,
		months: monthSet(cfg.Months),
		logger: logger,
	}, nil
}

// Config returns the extractor's configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract places windows over obs and estimates each one. A window whose
// estimate fails is kept with an error and a low-quality flag; only layout
// problems, invalid input and context cancellation fail the call.
func (e *Extractor) Extract(ctx context.Context, obs []precip.Observation) (*Result, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: empty daily series", precip.ErrInsufficientData)
	}
	if err := precip.ValidateSeries(obs); err != nil {
		return nil, err
	}

	bounds, err := Plan(obs[0].Date, obs[len(obs)-1].Date, e.cfg.LengthYears, e.cfg.Overlap)
	if err != nil {
		return nil, err
	}
	e.logger.Debugw("planned windows",
		"count", len(bounds),
		"length_years", e.cfg.LengthYears,
		"step_years", e.cfg.Step(),
	)

	windows := make([]Window, len(bounds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, b := range bounds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			windows[i] = e.estimate(i, b, obs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("window extraction interrupted: %w", err)
	}

	result := &Result{Windows: windows, Months: e.cfg.Months}
	ok, low := result.Counts()
	e.logger.Infof("estimated %d windows (%d ok, %d low quality)", len(windows), ok, low)
	return result, nil
}

func (e *Extractor) estimate(i int, b Bounds, obs []precip.Observation) Window {
	w := Window{
		Index:    i,
		Bounds:   b,
		Midpoint: b.Center(),
		Quality:  QualityOK,
	}
	for p := range w.Summary {
		w.Summary[p] = precip.Undefined
	}

	lo := sort.Search(len(obs), func(j int) bool { return !obs[j].Date.Before(b.Start) })
	hi := sort.Search(len(obs), func(j int) bool { return !obs[j].Date.Before(b.End) })
	sub := obs[lo:hi]

	w.Coverage = e.coverage(b, sub)
	if w.Coverage < e.cfg.MinCoverage {
		w.Quality = QualityLow
	}

	table, err := estimator.Estimate(sub, e.cfg.Estimator)
	if err != nil {
		w.Quality = QualityLow
		w.Error = err.Error()
		e.logger.Warnw("window estimate failed",
			"window", i,
			"start", b.Start.Format(time.DateOnly),
			"end", b.End.Format(time.DateOnly),
			"error", err,
		)
		return w
	}

	w.Monthly = table
	w.Summary = table.Summary(e.cfg.Months)

	if !w.OK() {
		e.logger.Warnw("low coverage window",
			"window", i,
			"start", b.Start.Format(time.DateOnly),
			"end", b.End.Format(time.DateOnly),
			"coverage", w.Coverage,
		)
	}
	return w
}

// coverage is the fraction of calendar days in the window (selected months
// only) that carry a non-missing observation.
func (e *Extractor) coverage(b Bounds, sub []precip.Observation) float64 {
	calendar := 0
	for d := b.Start; d.Before(b.End); d = d.AddDate(0, 0, 1) {
		if e.months[d.Month()-1] {
			calendar++
		}
	}
	if calendar == 0 {
		return 0
	}

	present := 0
	for _, o := range sub {
		if !o.Missing && e.months[o.Date.Month()-1] {
			present++
		}
	}
	return float64(present) / float64(calendar)
}
