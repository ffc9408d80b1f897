// Package history holds single-parameter trajectories over time and the
// explicit operations that put them on a common uniform grid.
package history

import (
	"fmt"
	"math"

	"github.com/chrissnell/precipgen/internal/precip"
	"gonum.org/v1/gonum/interp"
)

// ParameterHistory is one parameter's trajectory. Times are decimal years in
// strictly increasing order, usually window midpoints.
type ParameterHistory struct {
	Parameter precip.Parameter `json:"parameter"`
	Times     []float64        `json:"times"`
	Values    []float64        `json:"values"`
}

// New validates and wraps a trajectory.
func New(p precip.Parameter, times, values []float64) (ParameterHistory, error) {
	if len(times) != len(values) {
		return ParameterHistory{}, fmt.Errorf("%w: %d times but %d values", precip.ErrConfiguration, len(times), len(values))
	}
	for i := range times {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return ParameterHistory{}, fmt.Errorf("%w: %s value at %.3f is not finite", precip.ErrValidation, p, times[i])
		}
		if i > 0 && !(times[i] > times[i-1]) {
			return ParameterHistory{}, fmt.Errorf("%w: %s times not strictly increasing at index %d", precip.ErrConfiguration, p, i)
		}
	}
	return ParameterHistory{Parameter: p, Times: times, Values: values}, nil
}

// Len returns the number of points.
func (h ParameterHistory) Len() int {
	return len(h.Values)
}

// Step returns the sampling interval and whether the times are evenly spaced.
func (h ParameterHistory) Step() (float64, bool) {
	if len(h.Times) < 2 {
		return 0, false
	}
	step := h.Times[1] - h.Times[0]
	tol := 1e-6 * math.Abs(step)
	for i := 2; i < len(h.Times); i++ {
		if math.Abs(h.Times[i]-h.Times[i-1]-step) > tol {
			return step, false
		}
	}
	return step, true
}

// IsUniform reports whether the history is evenly spaced.
func (h ParameterHistory) IsUniform() bool {
	_, ok := h.Step()
	return ok
}

// Grid returns first, first+step, ... up to and including last (within rounding).
func Grid(first, last, step float64) []float64 {
	if step <= 0 || last < first {
		return nil
	}
	n := int(math.Floor((last-first)/step+1e-9)) + 1
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = first + float64(i)*step
	}
	return grid
}

// Resample linearly interpolates the history onto a uniform grid with the
// given step, starting at its first time.
func Resample(h ParameterHistory, step float64) (ParameterHistory, error) {
	if !(step > 0) || math.IsInf(step, 0) {
		return ParameterHistory{}, fmt.Errorf("%w: resampling step must be positive, got %v", precip.ErrConfiguration, step)
	}
	if h.Len() < 2 {
		return ParameterHistory{}, fmt.Errorf("%w: %s history has %d points, need at least 2 to resample",
			precip.ErrInsufficientData, h.Parameter, h.Len())
	}
	return ResampleOnto(h, Grid(h.Times[0], h.Times[len(h.Times)-1], step))
}

// ResampleOnto linearly interpolates the history at the grid times. Grid
// times outside the history's span are rejected rather than extrapolated.
func ResampleOnto(h ParameterHistory, grid []float64) (ParameterHistory, error) {
	if h.Len() < 2 {
		return ParameterHistory{}, fmt.Errorf("%w: %s history has %d points, need at least 2 to resample",
			precip.ErrInsufficientData, h.Parameter, h.Len())
	}
	if len(grid) == 0 {
		return ParameterHistory{}, fmt.Errorf("%w: empty resampling grid", precip.ErrConfiguration)
	}

	first, last := h.Times[0], h.Times[len(h.Times)-1]
	tol := 1e-9 * math.Max(1, math.Abs(last))
	if grid[0] < first-tol || grid[len(grid)-1] > last+tol {
		return ParameterHistory{}, fmt.Errorf("%w: grid [%.3f, %.3f] outside %s history span [%.3f, %.3f]",
			precip.ErrConfiguration, grid[0], grid[len(grid)-1], h.Parameter, first, last)
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(h.Times, h.Values); err != nil {
		return ParameterHistory{}, fmt.Errorf("%w: interpolating %s: %v", precip.ErrConfiguration, h.Parameter, err)
	}

	times := make([]float64, len(grid))
	values := make([]float64, len(grid))
	for i, t := range grid {
		times[i] = t
		values[i] = pl.Predict(math.Min(math.Max(t, first), last))
	}
	return New(h.Parameter, times, values)
}

// CommonGrid returns the uniform grid covering the span shared by all histories.
func CommonGrid(step float64, hs ...ParameterHistory) ([]float64, error) {
	if !(step > 0) {
		return nil, fmt.Errorf("%w: grid step must be positive, got %v", precip.ErrConfiguration, step)
	}
	if len(hs) == 0 {
		return nil, fmt.Errorf("%w: no histories", precip.ErrInsufficientData)
	}

	first, last := math.Inf(-1), math.Inf(1)
	for _, h := range hs {
		if h.Len() < 2 {
			return nil, fmt.Errorf("%w: %s history has %d points", precip.ErrInsufficientData, h.Parameter, h.Len())
		}
		first = math.Max(first, h.Times[0])
		last = math.Min(last, h.Times[len(h.Times)-1])
	}
	if last <= first {
		return nil, fmt.Errorf("%w: histories do not overlap in time", precip.ErrInsufficientData)
	}
	return Grid(first, last, step), nil
}

// Aligned returns ErrConfiguration unless every history has the same times.
// Misaligned inputs must be resampled explicitly, never truncated.
func Aligned(hs ...ParameterHistory) error {
	if len(hs) < 2 {
		return nil
	}
	ref := hs[0]
	for _, h := range hs[1:] {
		if h.Len() != ref.Len() {
			return fmt.Errorf("%w: %s has %d points but %s has %d",
				precip.ErrConfiguration, h.Parameter, h.Len(), ref.Parameter, ref.Len())
		}
		for i := range h.Times {
			if math.Abs(h.Times[i]-ref.Times[i]) > 1e-9*math.Max(1, math.Abs(ref.Times[i])) {
				return fmt.Errorf("%w: %s and %s differ at index %d (%.6f vs %.6f)",
					precip.ErrConfiguration, h.Parameter, ref.Parameter, i, h.Times[i], ref.Times[i])
			}
		}
	}
	return nil
}

// Differences returns x[i] - x[i-1] for i >= 1.
func Differences(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	d := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		d[i-1] = x[i] - x[i-1]
	}
	return d
}
