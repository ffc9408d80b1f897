// Package estimator fits the monthly Markov-chain / gamma precipitation
// parameters from a chronological daily series.
//
// Transitions are tagged by the calendar month of the arrival day, so the
// transition from January 31 to February 1 counts toward February. The series
// is walked as one ordered array to keep that adjacency across month
// boundaries; days are never grouped per month before counting.
package estimator

import (
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/precipgen/internal/precip"
	"gonum.org/v1/gonum/stat"
)

// GammaMethod selects how wet-day amounts are fitted to a gamma distribution.
type GammaMethod string

const (
	// MethodOfMoments uses alpha = mean²/variance and beta = variance/mean.
	MethodOfMoments GammaMethod = "moments"

	// MaximumLikelihood uses the Greenwood-Durand approximation of the shape MLE.
	MaximumLikelihood GammaMethod = "mle"
)

// DefaultMinWetDays is the smallest wet-day count for which a gamma fit is attempted.
const DefaultMinWetDays = 2

// Options controls a single estimation.
type Options struct {
	// WetThreshold classifies a day as wet when its amount is strictly greater.
	// It is expressed in the unit of the source series.
	WetThreshold float64

	// MinWetDays below which alpha and beta are left undefined
	MinWetDays int

	GammaMethod GammaMethod
}

// DefaultOptions returns method-of-moments options for the given threshold.
func DefaultOptions(wetThreshold float64) Options {
	return Options{
		WetThreshold: wetThreshold,
		MinWetDays:   DefaultMinWetDays,
		GammaMethod:  MethodOfMoments,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if math.IsNaN(o.WetThreshold) || math.IsInf(o.WetThreshold, 0) || o.WetThreshold < 0 {
		return fmt.Errorf("%w: wet threshold must be a finite non-negative amount, got %v",
			precip.ErrConfiguration, o.WetThreshold)
	}
	if o.MinWetDays < 2 {
		return fmt.Errorf("%w: min wet days must be at least 2, got %d", precip.ErrConfiguration, o.MinWetDays)
	}
	switch o.GammaMethod {
	case MethodOfMoments, MaximumLikelihood:
	default:
		return fmt.Errorf("%w: unknown gamma method %q", precip.ErrConfiguration, o.GammaMethod)
	}
	return nil
}

// monthCounts accumulates transition and wet-day statistics for one month.
type monthCounts struct {
	fromWet  int
	wetToWet int
	fromDry  int
	dryToWet int
	observed int
	amounts  []float64
}

// Estimate fits all twelve calendar months.
func Estimate(obs []precip.Observation, opts Options) (*precip.MonthlyTable, error) {
	counts, err := count(obs, opts)
	if err != nil {
		return nil, err
	}

	var table precip.MonthlyTable
	for i := range table {
		table[i] = fit(time.Month(i+1), &counts[i], opts)
	}
	return &table, nil
}

// EstimateMonth fits a single calendar month. Transitions arriving in month
// from a day in the previous month are included.
func EstimateMonth(obs []precip.Observation, month time.Month, opts Options) (precip.MonthlyParameterSet, error) {
	if month < time.January || month > time.December {
		return precip.MonthlyParameterSet{}, fmt.Errorf("%w: month %d out of range", precip.ErrConfiguration, month)
	}
	counts, err := count(obs, opts)
	if err != nil {
		return precip.MonthlyParameterSet{}, err
	}
	return fit(month, &counts[month-1], opts), nil
}

func count(obs []precip.Observation, opts Options) (*[12]monthCounts, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: empty daily series", precip.ErrInsufficientData)
	}
	if err := precip.ValidateSeries(obs); err != nil {
		return nil, err
	}

	var counts [12]monthCounts
	present := 0

	for i, o := range obs {
		if o.Missing {
			continue
		}
		present++

		m := &counts[o.Date.Month()-1]
		m.observed++
		wet := o.IsWet(opts.WetThreshold)
		if wet {
			m.amounts = append(m.amounts, o.Amount)
		}

		if i == 0 {
			continue
		}
		prev := obs[i-1]
		if prev.Missing || !precip.IsNextDay(prev.Date, o.Date) {
			continue
		}

		// The transition belongs to the arrival day's month.
		if prev.IsWet(opts.WetThreshold) {
			m.fromWet++
			if wet {
				m.wetToWet++
			}
		} else {
			m.fromDry++
			if wet {
				m.dryToWet++
			}
		}
	}

	if present == 0 {
		return nil, fmt.Errorf("%w: every day in the series is missing", precip.ErrInsufficientData)
	}
	return &counts, nil
}

func fit(month time.Month, c *monthCounts, opts Options) precip.MonthlyParameterSet {
	set := precip.MonthlyParameterSet{
		Month:        month,
		ObservedDays: c.observed,
		WetDays:      len(c.amounts),
	}

	if c.fromWet > 0 {
		set.PWW = precip.Defined(float64(c.wetToWet) / float64(c.fromWet))
	}
	if c.fromDry > 0 {
		set.PWD = precip.Defined(float64(c.dryToWet) / float64(c.fromDry))
	}

	if len(c.amounts) > 0 {
		set.MeanWet = precip.Defined(stat.Mean(c.amounts, nil))
	}
	if len(c.amounts) > 1 {
		set.SDWet = precip.Defined(stat.StdDev(c.amounts, nil))
	}

	if len(c.amounts) >= opts.MinWetDays {
		if alpha, beta, ok := FitGamma(c.amounts, opts.GammaMethod); ok {
			set.Alpha = precip.Defined(alpha)
			set.Beta = precip.Defined(beta)
		}
	}
	return set
}
