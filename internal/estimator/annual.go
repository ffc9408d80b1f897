package estimator

import (
	"fmt"
	"math"

	"github.com/chrissnell/precipgen/internal/precip"
	"gonum.org/v1/gonum/stat"
)

// MaxAutocorrelationLag is the longest lag, in years, searched for annual
// total autocorrelation.
const MaxAutocorrelationLag = 10

// AnnualTotal is one calendar year's precipitation.
type AnnualTotal struct {
	Year         int     `json:"year"`
	Total        float64 `json:"total"`
	ObservedDays int     `json:"observed_days"`
	Coverage     float64 `json:"coverage"`
}

// AnnualStats holds year-to-year statistics of a daily series. Only calendar
// years whose coverage reaches the requested minimum contribute.
type AnnualStats struct {
	Totals []AnnualTotal `json:"totals"`

	// Autocorrelation of the annual totals at AutocorrelationLag, the lag with
	// the largest magnitude among 1..MaxAutocorrelationLag and at most half the
	// qualifying years.
	Autocorrelation    precip.Estimate `json:"autocorrelation"`
	AutocorrelationLag int             `json:"autocorrelation_lag,omitempty"`

	// Correlations across the twelve monthly values of one year, averaged
	// over years.
	PWWPWDCorrelation  precip.Estimate `json:"pww_pwd_correlation"`
	PWWMeanCorrelation precip.Estimate `json:"pww_mean_wet_correlation"`
}

// Annual computes calendar-year totals, their autocorrelation and the mean
// yearly correlation of PWW with PWD and with the mean wet-day amount. Each
// year is estimated on its own days only.
func Annual(obs []precip.Observation, opts Options, minCoverage float64) (*AnnualStats, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !(minCoverage >= 0 && minCoverage <= 1) {
		return nil, fmt.Errorf("%w: minimum coverage must be in [0, 1], got %v", precip.ErrConfiguration, minCoverage)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: empty daily series", precip.ErrInsufficientData)
	}
	if err := precip.ValidateSeries(obs); err != nil {
		return nil, err
	}

	stats := &AnnualStats{}
	var withPWD, withMean []float64

	for lo := 0; lo < len(obs); {
		year := obs[lo].Date.Year()
		hi := lo
		for hi < len(obs) && obs[hi].Date.Year() == year {
			hi++
		}
		days := obs[lo:hi]
		lo = hi

		t := AnnualTotal{Year: year}
		for _, o := range days {
			if !o.Missing {
				t.Total += o.Amount
				t.ObservedDays++
			}
		}
		t.Coverage = float64(t.ObservedDays) / float64(precip.DaysInYear(year))
		if t.ObservedDays == 0 || t.Coverage < minCoverage {
			continue
		}
		stats.Totals = append(stats.Totals, t)

		table, err := Estimate(days, opts)
		if err != nil {
			return nil, fmt.Errorf("estimating %d: %w", year, err)
		}
		if r, ok := monthlyCorrelation(table, func(s precip.MonthlyParameterSet) precip.Estimate { return s.PWD }); ok {
			withPWD = append(withPWD, r)
		}
		if r, ok := monthlyCorrelation(table, func(s precip.MonthlyParameterSet) precip.Estimate { return s.MeanWet }); ok {
			withMean = append(withMean, r)
		}
	}

	if len(stats.Totals) == 0 {
		return nil, fmt.Errorf("%w: no calendar year reaches %.0f%% coverage",
			precip.ErrInsufficientData, minCoverage*100)
	}
	if len(withPWD) > 0 {
		stats.PWWPWDCorrelation = precip.Defined(stat.Mean(withPWD, nil))
	}
	if len(withMean) > 0 {
		stats.PWWMeanCorrelation = precip.Defined(stat.Mean(withMean, nil))
	}
	stats.Autocorrelation, stats.AutocorrelationLag = autocorrelation(stats.Totals)
	return stats, nil
}

// monthlyCorrelation correlates PWW with another monthly value over the
// months where both are defined.
func monthlyCorrelation(table *precip.MonthlyTable, other func(precip.MonthlyParameterSet) precip.Estimate) (float64, bool) {
	var x, y []float64
	for _, s := range table {
		if o := other(s); s.PWW.Valid && o.Valid {
			x = append(x, s.PWW.Value)
			y = append(y, o.Value)
		}
	}
	return correlation(x, y)
}

// autocorrelation pairs each qualifying year with the one lag years later,
// skipping pairs where either year was dropped.
func autocorrelation(totals []AnnualTotal) (precip.Estimate, int) {
	byYear := make(map[int]float64, len(totals))
	for _, t := range totals {
		byYear[t.Year] = t.Total
	}

	best, bestLag := precip.Undefined, 0
	maxLag := min(MaxAutocorrelationLag, len(totals)/2)
	for lag := 1; lag <= maxLag; lag++ {
		var x, y []float64
		for _, t := range totals {
			if later, ok := byYear[t.Year+lag]; ok {
				x = append(x, t.Total)
				y = append(y, later)
			}
		}
		r, ok := correlation(x, y)
		if !ok {
			continue
		}
		if !best.Valid || math.Abs(r) > math.Abs(best.Value) {
			best, bestLag = precip.Defined(r), lag
		}
	}
	return best, bestLag
}

func correlation(x, y []float64) (float64, bool) {
	if len(x) < 3 {
		return 0, false
	}
	if _, vx := stat.MeanVariance(x, nil); !(vx > 0) {
		return 0, false
	}
	if _, vy := stat.MeanVariance(y, nil); !(vy > 0) {
		return 0, false
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0, false
	}
	return r, true
}
