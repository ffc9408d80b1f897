package window

import (
	"fmt"
	"strings"
	"time"

	"github.com/chrissnell/precipgen/internal/precip"
)

// Season is a named subset of calendar months.
type Season struct {
	Name   string       `json:"name"`
	Months []time.Month `json:"months"`
}

// Seasons are the meteorological seasons of the northern hemisphere.
var Seasons = []Season{
	{Name: "winter", Months: []time.Month{time.December, time.January, time.February}},
	{Name: "spring", Months: []time.Month{time.March, time.April, time.May}},
	{Name: "summer", Months: []time.Month{time.June, time.July, time.August}},
	{Name: "fall", Months: []time.Month{time.September, time.October, time.November}},
}

// SeasonByName looks up a season case-insensitively.
func SeasonByName(name string) (Season, error) {
	for _, s := range Seasons {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return Season{}, fmt.Errorf("%w: unknown season %q", precip.ErrConfiguration, name)
}

func monthSet(months []time.Month) [12]bool {
	var set [12]bool
	if len(months) == 0 {
		for i := range set {
			set[i] = true
		}
		return set
	}
	for _, m := range months {
		set[m-1] = true
	}
	return set
}
