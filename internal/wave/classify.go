package wave

import (
	"fmt"
	"math"

	"github.com/chrissnell/precipgen/internal/precip"
)

// Class buckets a component by period.
type Class string

const (
	Short  Class = "short"  // under 5 years
	Medium Class = "medium" // 5 to 20 years inclusive
	Long   Class = "long"   // over 20 years
)

const (
	shortLimit = 5.0
	longLimit  = 20.0
)

// Classes lists the buckets from shortest to longest.
var Classes = []Class{Short, Medium, Long}

// Classify maps a period in years to its class.
func Classify(period float64) (Class, error) {
	if !(period > 0) || math.IsInf(period, 0) {
		return "", fmt.Errorf("%w: period must be positive and finite, got %v", precip.ErrValidation, period)
	}
	switch {
	case period < shortLimit:
		return Short, nil
	case period <= longLimit:
		return Medium, nil
	default:
		return Long, nil
	}
}

// Group summarizes the components of one class.
type Group struct {
	Class             Class   `json:"class"`
	Count             int     `json:"count"`
	DominantPeriod    float64 `json:"dominant_period"`
	TotalAmplitude    float64 `json:"total_amplitude"`
	VarianceExplained float64 `json:"variance_explained"`
}

// Summarize groups components by class. Only non-empty classes are returned,
// shortest first. The dominant period is that of the largest amplitude.
func Summarize(cs []Component) ([]Group, error) {
	byClass := make(map[Class]*Group, len(Classes))
	strongest := make(map[Class]float64, len(Classes))

	for _, c := range cs {
		class, err := Classify(c.Period)
		if err != nil {
			return nil, err
		}
		g, ok := byClass[class]
		if !ok {
			g = &Group{Class: class}
			byClass[class] = g
			strongest[class] = -1
		}
		g.Count++
		g.TotalAmplitude += c.Amplitude
		g.VarianceExplained += c.VarianceExplained
		if c.Amplitude > strongest[class] {
			strongest[class] = c.Amplitude
			g.DominantPeriod = c.Period
		}
	}

	var groups []Group
	for _, class := range Classes {
		if g, ok := byClass[class]; ok {
			groups = append(groups, *g)
		}
	}
	return groups, nil
}
