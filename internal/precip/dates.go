package precip

import (
	"fmt"
	"math"
	"time"
)

// CivilDate truncates t to midnight UTC of its calendar day.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsNextDay reports whether b is the calendar day immediately after a.
func IsNextDay(a, b time.Time) bool {
	return CivilDate(a).AddDate(0, 0, 1).Equal(CivilDate(b))
}

// DaysInYear returns 366 for leap years and 365 otherwise.
func DaysInYear(year int) int {
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		return 366
	}
	return 365
}

// DecimalYear converts the start of t's calendar day to fractional years,
// e.g. 2000-07-02 -> 2000.5.
func DecimalYear(t time.Time) float64 {
	t = CivilDate(t)
	return float64(t.Year()) + float64(t.YearDay()-1)/float64(DaysInYear(t.Year()))
}

// FromDecimalYear returns the first calendar day whose start is at or after y.
func FromDecimalYear(y float64) time.Time {
	year := int(math.Floor(y))
	frac := y - float64(year)
	day := int(math.Ceil(frac*float64(DaysInYear(year)) - 1e-6))
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)
}

// ValidateSeries checks that observations are strictly chronological and that
// every present amount is a finite non-negative number.
func ValidateSeries(obs []Observation) error {
	for i, o := range obs {
		if !o.Missing && (math.IsNaN(o.Amount) || math.IsInf(o.Amount, 0) || o.Amount < 0) {
			return fmt.Errorf("%w: observation %s has amount %v; missing days must be flagged explicitly",
				ErrValidation, o.Date.Format("2006-01-02"), o.Amount)
		}
		if i > 0 && !CivilDate(obs[i-1].Date).Before(CivilDate(o.Date)) {
			return fmt.Errorf("%w: observations out of order at %s",
				ErrValidation, o.Date.Format("2006-01-02"))
		}
	}
	return nil
}
