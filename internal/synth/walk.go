package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/chrissnell/precipgen/internal/precip"
	"github.com/chrissnell/precipgen/internal/randomwalk"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// eigenFloor is the smallest eigenvalue kept when repairing a correlation matrix.
const eigenFloor = 1e-8

// NearestCorrelation projects a symmetric matrix onto a positive definite
// correlation matrix: eigenvalues below eigenFloor are raised to it and the
// result is rescaled to a unit diagonal.
func NearestCorrelation(c mat.Symmetric) (*mat.SymDense, error) {
	n := c.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if v := c.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: correlation entry (%d, %d) is %v", precip.ErrValidation, i, j, v)
			}
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(c, true); !ok {
		return nil, fmt.Errorf("%w: eigen-decomposition of correlation matrix failed", precip.ErrValidation)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	for i, v := range vals {
		if v < eigenFloor {
			vals[i] = eigenFloor
		}
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s := 0.0
			for k, v := range vals {
				s += vecs.At(i, k) * v * vecs.At(j, k)
			}
			out.SetSym(i, j, s)
		}
	}

	scale := make([]float64, n)
	for i := range scale {
		scale[i] = math.Sqrt(out.At(i, i))
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, out.At(i, j)/(scale[i]*scale[j]))
		}
	}
	return out, nil
}

// CorrelationFactor returns the lower Cholesky factor of c, repairing c first
// when it is not positive definite. repaired reports whether that happened.
func CorrelationFactor(c mat.Symmetric) (l *mat.TriDense, repaired bool, err error) {
	var chol mat.Cholesky
	if chol.Factorize(c) {
		l = new(mat.TriDense)
		chol.LTo(l)
		return l, false, nil
	}

	fixed, err := NearestCorrelation(c)
	if err != nil {
		return nil, false, err
	}
	if !chol.Factorize(fixed) {
		return nil, false, fmt.Errorf("%w: correlation matrix is not positive semi-definite after repair", precip.ErrValidation)
	}
	l = new(mat.TriDense)
	chol.LTo(l)
	return l, true, nil
}

// ProjectRandomWalk advances every parameter's walk from its last observed
// value. Each period draws independent standard normals from src, correlates
// them with the Cholesky factor of the fitted correlation matrix and scales
// them by each parameter's volatility. The walk continues from the clamped
// value. src is required so runs are reproducible.
func ProjectRandomWalk(fit *randomwalk.Fit, start, step float64, periods int, src rand.Source, opts Options) (*Projection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: random-walk projection requires a seeded random source", precip.ErrConfiguration)
	}
	if fit == nil {
		return nil, fmt.Errorf("%w: no random-walk model", precip.ErrConfiguration)
	}
	if unstable := fit.Unstable(); len(unstable) > 0 && !opts.AllowUnstable {
		return nil, fmt.Errorf("%w: reversion rate unstable for %v", precip.ErrValidation, unstable)
	}

	proj, err := newProjection(ModeRandomWalk, start, step, periods)
	if err != nil {
		return nil, err
	}

	const n = precip.NumParameters
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			corr.SetSym(i, j, fit.Correlation[i][j])
		}
	}
	l, repaired, err := CorrelationFactor(corr)
	if err != nil {
		return nil, err
	}
	proj.Repaired = repaired

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	state := fit.Current()
	for _, p := range precip.Parameters {
		state[p] = Clamp(p, state[p], opts.MinGammaParam)
	}

	var z [n]float64
	for k := range proj.Points {
		for i := range z {
			z[i] = normal.Rand()
		}
		pt := &proj.Points[k]
		for _, p := range precip.Parameters {
			shock := 0.0
			for j := 0; j <= int(p); j++ {
				shock += l.At(int(p), j) * z[j]
			}
			m := fit.Models[p]
			state[p] = Clamp(p, m.Step(state[p], m.Volatility*shock), opts.MinGammaParam)
			pt.Values[p] = precip.Defined(state[p])
		}
	}
	return proj, nil
}
