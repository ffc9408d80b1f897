package precip

// Spells summarizes runs of consecutive wet and dry days.
type Spells struct {
	LongestWet int `json:"longest_wet"`
	LongestDry int `json:"longest_dry"`
}

// LongestSpells scans the series once. A missing day or a calendar gap ends
// the current run.
func LongestSpells(obs []Observation, wetThreshold float64) Spells {
	var s Spells
	run := 0
	runWet := false

	for i, o := range obs {
		if o.Missing {
			run = 0
			continue
		}

		wet := o.IsWet(wetThreshold)
		contiguous := i > 0 && !obs[i-1].Missing && IsNextDay(obs[i-1].Date, o.Date)
		if run > 0 && contiguous && wet == runWet {
			run++
		} else {
			run = 1
			runWet = wet
		}

		if runWet && run > s.LongestWet {
			s.LongestWet = run
		}
		if !runWet && run > s.LongestDry {
			s.LongestDry = run
		}
	}
	return s
}
