// Package randomwalk fits a discrete mean-reverting random walk to parameter
// histories:
//
//	x[t+1] = x[t] + r*(mu - x[t]) + e,  e ~ N(0, sigma^2)
//
// sigma is the sample standard deviation of the first differences and r is
// the least-squares slope of the differences against (mu - previous value).
package randomwalk

import (
	"fmt"
	"math"

	"github.com/chrissnell/precipgen/internal/history"
	"github.com/chrissnell/precipgen/internal/precip"
	"gonum.org/v1/gonum/stat"
)

// MinSamples is the shortest history that yields a regression.
const MinSamples = 3

// Options bounds the reversion rates considered stable. With
// 0 <= r <= 2 the deviation from the mean never grows from one step to the
// next.
type Options struct {
	MinStableRate float64
	MaxStableRate float64
}

// DefaultOptions returns the [0, 2] stability range.
func DefaultOptions() Options {
	return Options{MinStableRate: 0, MaxStableRate: 2}
}

// Validate checks that the stability range is well formed.
func (o Options) Validate() error {
	if math.IsNaN(o.MinStableRate) || math.IsNaN(o.MaxStableRate) || o.MinStableRate > o.MaxStableRate {
		return fmt.Errorf("%w: stable reversion range [%v, %v] is empty",
			precip.ErrConfiguration, o.MinStableRate, o.MaxStableRate)
	}
	return nil
}

// Model is the fitted walk for one parameter.
type Model struct {
	Parameter     precip.Parameter `json:"parameter"`
	Mean          float64          `json:"long_term_mean"`
	Volatility    float64          `json:"volatility"`
	ReversionRate float64          `json:"reversion_rate"`
	Intercept     float64          `json:"intercept"`
	Stable        bool             `json:"stable"`
	Samples       int              `json:"samples"`
	Last          float64          `json:"last"`
}

// Step advances the walk one period with the given noise draw.
func (m Model) Step(x, noise float64) float64 {
	return x + m.ReversionRate*(m.Mean-x) + noise
}

// Estimate fits one parameter's walk from an evenly indexed sequence.
func Estimate(p precip.Parameter, values []float64, opts Options) (Model, error) {
	if err := opts.Validate(); err != nil {
		return Model{}, err
	}
	if len(values) < MinSamples {
		return Model{}, fmt.Errorf("%w: %s has %d values, need at least %d",
			precip.ErrInsufficientData, p, len(values), MinSamples)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Model{}, fmt.Errorf("%w: %s value %d is not finite", precip.ErrValidation, p, i)
		}
	}

	m := Model{
		Parameter: p,
		Mean:      stat.Mean(values, nil),
		Samples:   len(values),
		Last:      values[len(values)-1],
	}

	diffs := history.Differences(values)
	m.Volatility = stat.StdDev(diffs, nil)

	gap := make([]float64, len(diffs))
	for i := range gap {
		gap[i] = m.Mean - values[i]
	}
	// A constant history has no spread to regress against.
	if _, v := stat.MeanVariance(gap, nil); v > 0 {
		m.Intercept, m.ReversionRate = stat.LinearRegression(gap, diffs, nil, false)
	}

	m.Stable = m.ReversionRate >= opts.MinStableRate && m.ReversionRate <= opts.MaxStableRate
	return m, nil
}

// Fit is the joint random-walk model of all four parameters.
type Fit struct {
	Models      [precip.NumParameters]Model                          `json:"models"`
	Correlation [precip.NumParameters][precip.NumParameters]float64 `json:"correlation"`
	Times       []float64                                            `json:"times"`
}

// Unstable lists the parameters whose reversion rate fell outside the stable range.
func (f *Fit) Unstable() []precip.Parameter {
	var out []precip.Parameter
	for _, m := range f.Models {
		if !m.Stable {
			out = append(out, m.Parameter)
		}
	}
	return out
}

// Current returns the last observed value of every parameter.
func (f *Fit) Current() [precip.NumParameters]float64 {
	var x [precip.NumParameters]float64
	for i, m := range f.Models {
		x[i] = m.Last
	}
	return x
}

// FitAll estimates each parameter's walk and the correlation of their first
// differences. Exactly one history per parameter is required, and all must
// share the same time grid; resample first when they do not.
func FitAll(histories []history.ParameterHistory, opts Options) (*Fit, error) {
	if len(histories) != precip.NumParameters {
		return nil, fmt.Errorf("%w: need one history per parameter, got %d",
			precip.ErrConfiguration, len(histories))
	}

	var byParam [precip.NumParameters]*history.ParameterHistory
	for i := range histories {
		h := &histories[i]
		if h.Parameter < 0 || int(h.Parameter) >= precip.NumParameters {
			return nil, fmt.Errorf("%w: unknown parameter %d", precip.ErrConfiguration, h.Parameter)
		}
		if byParam[h.Parameter] != nil {
			return nil, fmt.Errorf("%w: duplicate %s history", precip.ErrConfiguration, h.Parameter)
		}
		byParam[h.Parameter] = h
	}
	if err := history.Aligned(histories...); err != nil {
		return nil, err
	}

	fit := &Fit{Times: byParam[0].Times}
	var diffs [precip.NumParameters][]float64
	for _, p := range precip.Parameters {
		m, err := Estimate(p, byParam[p].Values, opts)
		if err != nil {
			return nil, err
		}
		fit.Models[p] = m
		diffs[p] = history.Differences(byParam[p].Values)
	}
	fit.Correlation = CorrelationMatrix(diffs)
	return fit, nil
}

// CorrelationMatrix returns the Pearson correlation of equal-length series.
// A series without spread is uncorrelated with every other.
func CorrelationMatrix(series [precip.NumParameters][]float64) [precip.NumParameters][precip.NumParameters]float64 {
	var c [precip.NumParameters][precip.NumParameters]float64
	for i := range series {
		c[i][i] = 1
		for j := i + 1; j < len(series); j++ {
			v := stat.Correlation(series[i], series[j], nil)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			v = math.Max(-1, math.Min(1, v))
			c[i][j], c[j][i] = v, v
		}
	}
	return c
}
