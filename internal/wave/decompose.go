// Package wave separates a parameter history into a linear trend and a small
// number of fixed-frequency sinusoids.
//
// Frequencies are picked from the power spectrum of the detrended series and
// are held fixed while amplitude and phase are fitted. Times are measured in
// years from the first sample (the Origin), so a component evaluates as
// A*sin(2*pi*f*(t-Origin) + phase).
package wave

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/chrissnell/precipgen/internal/history"
	"github.com/chrissnell/precipgen/internal/precip"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Trend is a least-squares line against elapsed years.
type Trend struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
}

// At evaluates the trend at elapsed time x.
func (t Trend) At(x float64) float64 {
	return t.Intercept + t.Slope*x
}

// Component is one fitted sinusoid.
type Component struct {
	Frequency         float64 `json:"frequency"` // cycles per year
	Period            float64 `json:"period"`    // years
	Amplitude         float64 `json:"amplitude"`
	Phase             float64 `json:"phase"` // radians, (-pi, pi]
	VarianceExplained float64 `json:"variance_explained"`
	Power             float64 `json:"power"`
	Class             Class   `json:"class"`
}

// At evaluates the component at elapsed time x.
func (c Component) At(x float64) float64 {
	return c.Amplitude * math.Sin(2*math.Pi*c.Frequency*x+c.Phase)
}

// SpectrumPoint is the power of one positive frequency bin.
type SpectrumPoint struct {
	Frequency float64 `json:"frequency"`
	Period    float64 `json:"period"`
	Power     float64 `json:"power"`
}

// Decomposition is the trend plus retained components of one history.
type Decomposition struct {
	Parameter     precip.Parameter `json:"parameter"`
	Origin        float64          `json:"origin"`
	Step          float64          `json:"step"`
	Samples       int              `json:"samples"`
	Trend         Trend            `json:"trend"`
	Components    []Component      `json:"components"`
	Spectrum      []SpectrumPoint  `json:"spectrum"`
	TotalVariance float64          `json:"total_variance"`
}

// At evaluates trend plus all components at decimal year t.
func (d *Decomposition) At(t float64) float64 {
	x := t - d.Origin
	v := d.Trend.At(x)
	for _, c := range d.Components {
		v += c.At(x)
	}
	return v
}

// Reconstruct evaluates the model at each time.
func (d *Decomposition) Reconstruct(times []float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = d.At(t)
	}
	return out
}

// MinSamples returns the shortest history that can be decomposed into k
// components.
func MinSamples(k int) int {
	return 2*k + 2
}

// Decompose fits a linear trend and the numComponents strongest spectral
// components of h. The history must already be on a uniform grid; use
// history.Resample for irregular windows.
func Decompose(h history.ParameterHistory, numComponents int) (*Decomposition, error) {
	if numComponents < 1 {
		return nil, fmt.Errorf("%w: number of components must be at least 1, got %d", precip.ErrConfiguration, numComponents)
	}
	n := h.Len()
	if n < MinSamples(numComponents) {
		return nil, fmt.Errorf("%w: %s history has %d samples, %d components need at least %d",
			precip.ErrInsufficientSamples, h.Parameter, n, numComponents, MinSamples(numComponents))
	}
	step, uniform := h.Step()
	if !uniform || !(step > 0) {
		return nil, fmt.Errorf("%w: %s history is not evenly spaced; resample it first", precip.ErrConfiguration, h.Parameter)
	}

	origin := h.Times[0]
	x := make([]float64, n)
	for i, t := range h.Times {
		x[i] = t - origin
	}

	intercept, slope := stat.LinearRegression(x, h.Values, nil, false)
	trend := Trend{Intercept: intercept, Slope: slope}

	detrended := make([]float64, n)
	for i := range detrended {
		detrended[i] = h.Values[i] - trend.At(x[i])
	}
	total := floats.Dot(detrended, detrended)

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, detrended)

	// Bin 0 is the mean, which the trend already removed.
	spectrum := make([]SpectrumPoint, 0, len(coeffs)-1)
	for j := 1; j < len(coeffs); j++ {
		f := fft.Freq(j) / step
		abs := cmplx.Abs(coeffs[j])
		spectrum = append(spectrum, SpectrumPoint{
			Frequency: f,
			Period:    1 / f,
			Power:     abs * abs,
		})
	}

	// The Nyquist bin of an even-length series samples sin(pi*i + phase),
	// which cannot resolve amplitude and phase separately.
	candidates := len(spectrum)
	if n%2 == 0 {
		candidates--
	}
	order := make([]int, candidates)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return spectrum[order[a]].Power > spectrum[order[b]].Power
	})

	d := &Decomposition{
		Parameter:     h.Parameter,
		Origin:        origin,
		Step:          step,
		Samples:       n,
		Trend:         trend,
		Spectrum:      spectrum,
		TotalVariance: total / float64(n),
	}

	for _, idx := range order[:numComponents] {
		sp := spectrum[idx]
		amp, phase := fitSinusoid(x, detrended, sp.Frequency)
		c := Component{
			Frequency: sp.Frequency,
			Period:    sp.Period,
			Amplitude: amp,
			Phase:     phase,
			Power:     sp.Power,
		}
		if total > 0 {
			ss := 0.0
			for _, xi := range x {
				v := c.At(xi)
				ss += v * v
			}
			c.VarianceExplained = ss / total
		}
		class, err := Classify(c.Period)
		if err != nil {
			return nil, err
		}
		c.Class = class
		d.Components = append(d.Components, c)
	}
	normalizeVariance(d.Components)

	return d, nil
}

// fitSinusoid fits A*sin(2*pi*f*x + phase) to y with f held fixed. The linear
// least-squares solution in (A cos phase, A sin phase) seeds an L-BFGS
// refinement of (A, phase); the seed is kept if the refinement does not
// improve on it.
func fitSinusoid(x, y []float64, f float64) (amplitude, phase float64) {
	w := 2 * math.Pi * f

	var sss, ssc, scc, sys, syc float64
	for i, xi := range x {
		s, c := math.Sincos(w * xi)
		sss += s * s
		ssc += s * c
		scc += c * c
		sys += y[i] * s
		syc += y[i] * c
	}
	det := sss*scc - ssc*ssc
	var a, b float64
	if math.Abs(det) > 1e-12*math.Max(1, sss*scc) {
		a = (sys*scc - syc*ssc) / det
		b = (syc*sss - sys*ssc) / det
	}
	amplitude, phase = math.Hypot(a, b), math.Atan2(b, a)

	sse := func(p []float64) float64 {
		sum := 0.0
		for i, xi := range x {
			r := y[i] - p[0]*math.Sin(w*xi+p[1])
			sum += r * r
		}
		return sum
	}
	problem := optimize.Problem{
		Func: sse,
		Grad: func(grad, p []float64) {
			grad[0], grad[1] = 0, 0
			for i, xi := range x {
				s, c := math.Sincos(w*xi + p[1])
				r := y[i] - p[0]*s
				grad[0] -= 2 * r * s
				grad[1] -= 2 * r * p[0] * c
			}
		},
	}

	seed := []float64{amplitude, phase}
	best := sse(seed)
	res, err := optimize.Minimize(problem, seed, nil, &optimize.LBFGS{})
	if err == nil && res != nil && res.F < best && !math.IsNaN(res.X[0]) && !math.IsNaN(res.X[1]) {
		amplitude, phase = res.X[0], res.X[1]
	}

	if amplitude < 0 {
		amplitude = -amplitude
		phase += math.Pi
	}
	return amplitude, wrapPhase(phase)
}

// wrapPhase maps an angle into (-pi, pi].
func wrapPhase(p float64) float64 {
	p = math.Mod(p, 2*math.Pi)
	if p <= -math.Pi {
		p += 2 * math.Pi
	} else if p > math.Pi {
		p -= 2 * math.Pi
	}
	return p
}

// normalizeVariance clamps each share to [0, 1] and rescales the set when
// leakage between non-orthogonal fits pushes the total above 1.
func normalizeVariance(cs []Component) {
	sum := 0.0
	for i := range cs {
		v := cs[i].VarianceExplained
		if math.IsNaN(v) || v < 0 {
			v = 0
		}
		cs[i].VarianceExplained = math.Min(v, 1)
		sum += cs[i].VarianceExplained
	}
	if sum > 1 {
		for i := range cs {
			cs[i].VarianceExplained /= sum
		}
	}
}

// ValidateComponents checks the structural invariants of fitted components.
func ValidateComponents(cs []Component) error {
	sum := 0.0
	for i, c := range cs {
		switch {
		case !(c.Frequency > 0) || math.IsInf(c.Frequency, 0):
			return fmt.Errorf("%w: component %d has frequency %v", precip.ErrValidation, i, c.Frequency)
		case !(c.Period > 0) || math.IsInf(c.Period, 0):
			return fmt.Errorf("%w: component %d has period %v", precip.ErrValidation, i, c.Period)
		case math.Abs(c.Period*c.Frequency-1) > 1e-9:
			return fmt.Errorf("%w: component %d period %v does not match frequency %v", precip.ErrValidation, i, c.Period, c.Frequency)
		case !(c.Amplitude >= 0) || math.IsInf(c.Amplitude, 0):
			return fmt.Errorf("%w: component %d has amplitude %v", precip.ErrValidation, i, c.Amplitude)
		case !(c.Phase >= -math.Pi && c.Phase <= math.Pi):
			return fmt.Errorf("%w: component %d has phase %v outside [-pi, pi]", precip.ErrValidation, i, c.Phase)
		case !(c.VarianceExplained >= 0 && c.VarianceExplained <= 1):
			return fmt.Errorf("%w: component %d explains %v of variance", precip.ErrValidation, i, c.VarianceExplained)
		}
		sum += c.VarianceExplained
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("%w: components explain %v of variance in total", precip.ErrValidation, sum)
	}
	return nil
}
