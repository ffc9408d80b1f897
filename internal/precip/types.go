// Package precip holds the data model shared by the parameter estimation and
// parameter evolution packages: daily observations, monthly parameter sets and
// the error taxonomy.
package precip

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Observation is one day of an already-assembled daily precipitation series.
// Missing days must be flagged explicitly; a missing day is never a dry day.
type Observation struct {
	Date    time.Time
	Amount  float64
	Missing bool
}

// Observed returns a non-missing observation for the given day.
func Observed(date time.Time, amount float64) Observation {
	return Observation{Date: CivilDate(date), Amount: amount}
}

// MissingOn returns an explicit missing observation for the given day.
func MissingOn(date time.Time) Observation {
	return Observation{Date: CivilDate(date), Missing: true}
}

// IsWet reports whether the observation is present and strictly above threshold.
// The threshold carries the unit of the source series.
func (o Observation) IsWet(threshold float64) bool {
	return !o.Missing && o.Amount > threshold
}

// Parameter identifies one of the four precipitation model parameters.
type Parameter int

const (
	// PWW is the probability of a wet day following a wet day
	PWW Parameter = iota
	// PWD is the probability of a wet day following a dry day
	PWD
	// Alpha is the gamma shape parameter of wet-day amounts
	Alpha
	// Beta is the gamma scale parameter of wet-day amounts
	Beta
)

// NumParameters is the number of model parameters.
const NumParameters = 4

// Parameters lists the model parameters in canonical order.
var Parameters = [NumParameters]Parameter{PWW, PWD, Alpha, Beta}

var parameterNames = [NumParameters]string{"PWW", "PWD", "ALPHA", "BETA"}

func (p Parameter) String() string {
	if p < 0 || int(p) >= NumParameters {
		return fmt.Sprintf("Parameter(%d)", int(p))
	}
	return parameterNames[p]
}

// IsProbability reports whether the parameter is a Markov transition probability.
func (p Parameter) IsProbability() bool {
	return p == PWW || p == PWD
}

// ParseParameter converts a case-insensitive parameter name.
func ParseParameter(s string) (Parameter, error) {
	for i, name := range parameterNames {
		if strings.EqualFold(s, name) {
			return Parameter(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown parameter %q", ErrValidation, s)
}

// MarshalText lets parameters be used as JSON object keys.
func (p Parameter) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a parameter name.
func (p *Parameter) UnmarshalText(b []byte) error {
	parsed, err := ParseParameter(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Estimate is a parameter value that may be undefined, e.g. a transition
// probability for a month with no qualifying transitions.
type Estimate struct {
	Value float64
	Valid bool
}

// Defined wraps a computed value.
func Defined(v float64) Estimate {
	return Estimate{Value: v, Valid: true}
}

// Undefined is the zero Estimate.
var Undefined = Estimate{}

// MarshalJSON writes undefined estimates as null.
func (e Estimate) MarshalJSON() ([]byte, error) {
	if !e.Valid || math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(e.Value)
}

// UnmarshalJSON reads a number or null.
func (e *Estimate) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*e = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*e = Defined(v)
	return nil
}

// EncodeMsgpack writes undefined estimates as nil.
func (e Estimate) EncodeMsgpack(enc *msgpack.Encoder) error {
	if !e.Valid {
		return enc.EncodeNil()
	}
	return enc.EncodeFloat64(e.Value)
}

// DecodeMsgpack reads a number or nil.
func (e *Estimate) DecodeMsgpack(dec *msgpack.Decoder) error {
	var v *float64
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if v == nil {
		*e = Undefined
		return nil
	}
	*e = Defined(*v)
	return nil
}

// MonthlyParameterSet holds the fitted parameters for one calendar month.
// Alpha and Beta are always both defined or both undefined.
type MonthlyParameterSet struct {
	Month time.Month `json:"month"`
	PWW   Estimate   `json:"pww"`
	PWD   Estimate   `json:"pwd"`
	Alpha Estimate   `json:"alpha"`
	Beta  Estimate   `json:"beta"`

	ObservedDays int      `json:"observed_days"`
	WetDays      int      `json:"wet_days"`
	MeanWet      Estimate `json:"mean_wet"`
	SDWet        Estimate `json:"sd_wet"`
}

// Value returns the estimate for one parameter.
func (s MonthlyParameterSet) Value(p Parameter) Estimate {
	switch p {
	case PWW:
		return s.PWW
	case PWD:
		return s.PWD
	case Alpha:
		return s.Alpha
	case Beta:
		return s.Beta
	}
	return Undefined
}

// MonthlyTable holds one parameter set per calendar month, January first.
type MonthlyTable [12]MonthlyParameterSet

// Month returns the parameter set for m.
func (t *MonthlyTable) Month(m time.Month) MonthlyParameterSet {
	return t[m-1]
}

// AllMonths is the full calendar year.
var AllMonths = []time.Month{
	time.January, time.February, time.March, time.April, time.May, time.June,
	time.July, time.August, time.September, time.October, time.November, time.December,
}

// Summary averages each parameter over the defined values of the selected
// months. A parameter with no defined month stays undefined.
func (t *MonthlyTable) Summary(months []time.Month) [NumParameters]Estimate {
	if len(months) == 0 {
		months = AllMonths
	}

	var out [NumParameters]Estimate
	for _, p := range Parameters {
		sum := 0.0
		n := 0
		for _, m := range months {
			v := t.Month(m).Value(p)
			if v.Valid {
				sum += v.Value
				n++
			}
		}
		if n > 0 {
			out[p] = Defined(sum / float64(n))
		}
	}
	return out
}
