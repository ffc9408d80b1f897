package estimator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// FitGamma returns the shape (alpha) and scale (beta) of a gamma distribution
// fitted to positive amounts. ok is false when the sample has no spread, in
// which case neither parameter is meaningful.
func FitGamma(amounts []float64, method GammaMethod) (alpha, beta float64, ok bool) {
	if len(amounts) < 2 {
		return 0, 0, false
	}

	switch method {
	case MaximumLikelihood:
		alpha, beta, ok = fitGammaMLE(amounts)
	default:
		alpha, beta, ok = fitGammaMoments(amounts)
	}

	if !ok || !(alpha > 0) || !(beta > 0) || math.IsInf(alpha, 0) || math.IsInf(beta, 0) {
		return 0, 0, false
	}
	return alpha, beta, true
}

func fitGammaMoments(amounts []float64) (float64, float64, bool) {
	mean, variance := stat.MeanVariance(amounts, nil)
	if mean <= 0 || variance <= 0 {
		return 0, 0, false
	}
	return mean * mean / variance, variance / mean, true
}

// fitGammaMLE uses Greenwood & Durand (1960) for the shape, with Thom's
// estimator beyond the range where their rational approximation holds.
func fitGammaMLE(amounts []float64) (float64, float64, bool) {
	mean := stat.Mean(amounts, nil)
	if mean <= 0 {
		return 0, 0, false
	}

	logSum := 0.0
	for _, x := range amounts {
		if x <= 0 {
			return 0, 0, false
		}
		logSum += math.Log(x)
	}
	y := math.Log(mean) - logSum/float64(len(amounts))
	if y <= 1e-12 {
		return 0, 0, false
	}

	var alpha float64
	switch {
	case y <= 0.5772:
		alpha = (0.5000876 + 0.1648852*y - 0.0544274*y*y) / y
	case y <= 17:
		alpha = (8.898919 + 9.059950*y + 0.9775373*y*y) / (y * (17.79728 + 11.968477*y + y*y))
	default:
		alpha = (1 + math.Sqrt(1+4*y/3)) / (4 * y)
	}
	return alpha, mean / alpha, true
}
