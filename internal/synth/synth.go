// Package synth projects parameter values forward in time, either along a
// fitted trend-plus-waves curve or as a correlated mean-reverting walk.
package synth

import (
	"fmt"
	"math"

	"github.com/chrissnell/precipgen/internal/precip"
)

// Mode selects the projection model.
type Mode string

const (
	ModeNone       Mode = "none"
	ModeWave       Mode = "wave"
	ModeRandomWalk Mode = "randomwalk"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNone, ModeWave, ModeRandomWalk:
		return m, nil
	case "":
		return ModeNone, nil
	}
	return "", fmt.Errorf("%w: unknown projection mode %q", precip.ErrConfiguration, s)
}

// DefaultMinGammaParam is the floor applied to projected alpha and beta.
const DefaultMinGammaParam = 0.01

// Options controls clamping and model acceptance.
type Options struct {
	// MinGammaParam floors projected alpha and beta.
	MinGammaParam float64

	// AllowUnstable lets the random-walk projector run models whose reversion
	// rate was flagged unstable.
	AllowUnstable bool
}

// DefaultOptions returns the default clamping floor.
func DefaultOptions() Options {
	return Options{MinGammaParam: DefaultMinGammaParam}
}

// Validate checks the clamping floor.
func (o Options) Validate() error {
	if !(o.MinGammaParam > 0) || math.IsInf(o.MinGammaParam, 0) {
		return fmt.Errorf("%w: gamma parameter floor must be positive, got %v", precip.ErrConfiguration, o.MinGammaParam)
	}
	return nil
}

// Clamp keeps a projected value inside its parameter's domain: probabilities
// in [0, 1], alpha and beta at or above floor.
func Clamp(p precip.Parameter, v, floor float64) float64 {
	if p.IsProbability() {
		if math.IsNaN(v) {
			return 0
		}
		return math.Max(0, math.Min(1, v))
	}
	if math.IsNaN(v) || v < floor {
		return floor
	}
	return v
}

// Point is one projected period.
type Point struct {
	Index  int                                 `json:"index"`
	Time   float64                             `json:"time"`
	Values [precip.NumParameters]precip.Estimate `json:"values"`
}

// Projection is an ordered set of future periods.
type Projection struct {
	Mode     Mode    `json:"mode"`
	Start    float64 `json:"start"`
	Step     float64 `json:"step"`
	Seed     *uint64 `json:"seed,omitempty"`
	Repaired bool    `json:"correlation_repaired,omitempty"`
	Points   []Point `json:"points"`
}

// Series returns one parameter's projected values in period order.
func (p *Projection) Series(param precip.Parameter) []float64 {
	out := make([]float64, 0, len(p.Points))
	for _, pt := range p.Points {
		if v := pt.Values[param]; v.Valid {
			out = append(out, v.Value)
		}
	}
	return out
}

func newProjection(mode Mode, start, step float64, periods int) (*Projection, error) {
	if periods < 1 {
		return nil, fmt.Errorf("%w: projection needs at least one period, got %d", precip.ErrConfiguration, periods)
	}
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: projection step must be positive, got %v", precip.ErrConfiguration, step)
	}
	if math.IsNaN(start) || math.IsInf(start, 0) {
		return nil, fmt.Errorf("%w: projection start must be finite", precip.ErrConfiguration)
	}
	p := &Projection{Mode: mode, Start: start, Step: step, Points: make([]Point, periods)}
	for k := range p.Points {
		p.Points[k].Index = k + 1
		p.Points[k].Time = start + float64(k+1)*step
	}
	return p, nil
}

// Curve is a deterministic function of decimal-year time, such as a
// trend-plus-waves decomposition.
type Curve interface {
	At(t float64) float64
}

// ProjectWaves evaluates each parameter's curve at start+step, start+2*step,
// ... for the given number of periods. Parameters with a nil curve stay
// undefined.
func ProjectWaves(curves [precip.NumParameters]Curve, start, step float64, periods int, opts Options) (*Projection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	proj, err := newProjection(ModeWave, start, step, periods)
	if err != nil {
		return nil, err
	}

	for k := range proj.Points {
		pt := &proj.Points[k]
		for _, p := range precip.Parameters {
			if curves[p] == nil {
				continue
			}
			pt.Values[p] = precip.Defined(Clamp(p, curves[p].At(pt.Time), opts.MinGammaParam))
		}
	}
	return proj, nil
}
