// Package window runs the monthly estimator over overlapping multi-year
// windows of a daily series and turns the results into parameter histories.
package window

import (
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/precipgen/internal/estimator"
	"github.com/chrissnell/precipgen/internal/history"
	"github.com/chrissnell/precipgen/internal/precip"
)

// Quality flags a window's data coverage.
type Quality string

const (
	QualityOK  Quality = "ok"
	QualityLow Quality = "low_quality"
)

const (
	DefaultLengthYears = 10.0
	DefaultOverlap     = 0.5
	DefaultMinCoverage = 0.8
)

// Config controls window placement and per-window estimation.
type Config struct {
	// LengthYears is the window length in (decimal) years.
	LengthYears float64

	// Overlap is the fraction of a window shared with the next one, in [0, 1).
	Overlap float64

	// MinCoverage is the fraction of non-missing days below which a window is
	// flagged low quality, in (0, 1].
	MinCoverage float64

	// Months restricts coverage and window summaries to these calendar months.
	// Empty means all twelve.
	Months []time.Month

	Estimator estimator.Options

	// Workers bounds the number of windows estimated concurrently. Zero or
	// less means one.
	Workers int
}

// DefaultConfig returns the default window layout for the given wet threshold.
func DefaultConfig(wetThreshold float64) Config {
	return Config{
		LengthYears: DefaultLengthYears,
		Overlap:     DefaultOverlap,
		MinCoverage: DefaultMinCoverage,
		Estimator:   estimator.DefaultOptions(wetThreshold),
		Workers:     1,
	}
}

// Step returns the distance between consecutive window starts in years.
func (c Config) Step() float64 {
	return c.LengthYears * (1 - c.Overlap)
}

// Validate checks the window layout and estimator options.
func (c Config) Validate() error {
	if !(c.LengthYears > 0) || math.IsInf(c.LengthYears, 0) {
		return fmt.Errorf("%w: window length must be positive, got %v years", precip.ErrConfiguration, c.LengthYears)
	}
	if !(c.Overlap >= 0 && c.Overlap < 1) {
		return fmt.Errorf("%w: overlap fraction must be in [0, 1), got %v", precip.ErrConfiguration, c.Overlap)
	}
	if !(c.MinCoverage > 0 && c.MinCoverage <= 1) {
		return fmt.Errorf("%w: minimum coverage must be in (0, 1], got %v", precip.ErrConfiguration, c.MinCoverage)
	}
	for _, m := range c.Months {
		if m < time.January || m > time.December {
			return fmt.Errorf("%w: month %d out of range", precip.ErrConfiguration, m)
		}
	}
	return c.Estimator.Validate()
}

// Bounds is one window's placement. End is exclusive.
type Bounds struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	StartYear float64   `json:"start_year"`
	EndYear   float64   `json:"end_year"`
	Partial   bool      `json:"partial"`
}

// Center returns the decimal-year midpoint of the window.
func (b Bounds) Center() float64 {
	return (b.StartYear + b.EndYear) / 2
}

// Span returns the length of the series in decimal years, counting the last
// day as a whole day.
func Span(first, last time.Time) (start, end float64) {
	last = precip.CivilDate(last)
	return precip.DecimalYear(first), precip.DecimalYear(last) + 1/float64(precip.DaysInYear(last.Year()))
}

// planSlack absorbs the up-to-one-day error of decimal-year lengths measured
// across a leap day.
const planSlack = 1.5 / 365

// Plan places windows over [first, last]. Windows start at the series start
// and advance by LengthYears*(1-Overlap); the last window is clipped to the
// series end. For a series of L years this yields ceil((L-W)/step)+1 windows.
// Lengths within a day of each other are treated as equal.
func Plan(first, last time.Time, lengthYears, overlap float64) ([]Bounds, error) {
	if !(lengthYears > 0) || math.IsInf(lengthYears, 0) {
		return nil, fmt.Errorf("%w: window length must be positive, got %v years", precip.ErrConfiguration, lengthYears)
	}
	if !(overlap >= 0 && overlap < 1) {
		return nil, fmt.Errorf("%w: overlap fraction must be in [0, 1), got %v", precip.ErrConfiguration, overlap)
	}
	if last.Before(first) {
		return nil, fmt.Errorf("%w: series ends before it starts", precip.ErrValidation)
	}

	start, end := Span(first, last)
	length := end - start
	if length < lengthYears-planSlack {
		return nil, fmt.Errorf("%w: series spans %.2f years, shorter than one %.2f-year window",
			precip.ErrInsufficientData, length, lengthYears)
	}

	step := lengthYears * (1 - overlap)
	extra := int(math.Ceil((length - lengthYears - planSlack) / step))
	if extra < 0 {
		extra = 0
	}

	bounds := make([]Bounds, 0, extra+1)
	for k := 0; k <= extra; k++ {
		ws := start + float64(k)*step
		we := ws + lengthYears
		partial := false
		switch {
		case math.Abs(we-end) <= planSlack:
			we = end
		case we > end:
			we = end
			partial = true
		}

		b := Bounds{
			Start:     precip.FromDecimalYear(ws),
			End:       precip.FromDecimalYear(we),
			StartYear: ws,
			EndYear:   we,
			Partial:   partial,
		}
		if !b.Start.Before(b.End) {
			continue
		}
		bounds = append(bounds, b)
	}
	return bounds, nil
}

// Window is the estimator output for one placement.
type Window struct {
	Index int `json:"index"`
	Bounds

	Midpoint float64              `json:"midpoint"`
	Coverage float64              `json:"coverage"`
	Quality  Quality              `json:"quality"`
	Monthly  *precip.MonthlyTable `json:"monthly,omitempty"`

	// Summary holds each parameter averaged over the selected months.
	Summary [precip.NumParameters]precip.Estimate `json:"summary"`

	// Error is set when the estimator failed outright for this window.
	Error string `json:"error,omitempty"`
}

// OK reports whether the window passed the coverage threshold.
func (w Window) OK() bool {
	return w.Quality == QualityOK
}

// Row is one line of a parameter history table.
type Row struct {
	Start    time.Time       `json:"window_start"`
	End      time.Time       `json:"window_end"`
	Value    precip.Estimate `json:"value"`
	Coverage float64         `json:"coverage"`
	Quality  Quality         `json:"quality_flag"`
}

// Result is the ordered set of windows from one extraction.
type Result struct {
	Windows []Window     `json:"windows"`
	Months  []time.Month `json:"months,omitempty"`
}

// Counts returns the number of ok and low-quality windows.
func (r *Result) Counts() (ok, low int) {
	for _, w := range r.Windows {
		if w.OK() {
			ok++
		} else {
			low++
		}
	}
	return ok, low
}

// Table returns every window's value for one parameter, low-quality windows
// included.
func (r *Result) Table(p precip.Parameter) []Row {
	rows := make([]Row, len(r.Windows))
	for i, w := range r.Windows {
		rows[i] = Row{
			Start:    w.Start,
			End:      w.End,
			Value:    w.Summary[p],
			Coverage: w.Coverage,
			Quality:  w.Quality,
		}
	}
	return rows
}

// History returns the parameter's trajectory keyed by window midpoint.
// Windows with an undefined value are skipped, as are low-quality windows
// unless includeLow is set.
func (r *Result) History(p precip.Parameter, includeLow bool) (history.ParameterHistory, error) {
	return r.history(p, includeLow, func(w Window) precip.Estimate { return w.Summary[p] })
}

// SeasonalHistory is History restricted to the season's months.
func (r *Result) SeasonalHistory(p precip.Parameter, s Season, includeLow bool) (history.ParameterHistory, error) {
	return r.history(p, includeLow, func(w Window) precip.Estimate {
		if w.Monthly == nil {
			return precip.Undefined
		}
		return w.Monthly.Summary(s.Months)[p]
	})
}

func (r *Result) history(p precip.Parameter, includeLow bool, value func(Window) precip.Estimate) (history.ParameterHistory, error) {
	var times, values []float64
	for _, w := range r.Windows {
		if !w.OK() && !includeLow {
			continue
		}
		v := value(w)
		if !v.Valid {
			continue
		}
		times = append(times, w.Midpoint)
		values = append(values, v.Value)
	}
	return history.New(p, times, values)
}
