package window

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/chrissnell/precipgen/internal/precip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// syntheticSeries returns one observation per day in [from, to], with roughly
// a third of days wet.
func syntheticSeries(from, to time.Time, seed uint64) []precip.Observation {
	r := rand.New(rand.NewPCG(seed, seed+1))
	var obs []precip.Observation
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		amount := 0.0
		if r.Float64() < 0.33 {
			amount = 0.5 + r.ExpFloat64()*5
		}
		obs = append(obs, precip.Observed(d, amount))
	}
	return obs
}

func TestPlanWindowCount(t *testing.T) {
	first, last := day(2000, time.January, 1), day(2009, time.December, 31)

	tests := []struct {
		name    string
		length  float64
		overlap float64
	}{
		{"three years half overlap", 3, 0.5},
		{"three years no overlap", 3, 0},
		{"five years no overlap", 5, 0},
		{"four years quarter overlap", 4, 0.25},
		{"whole series", 10, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bounds, err := Plan(first, last, tt.length, tt.overlap)
			require.NoError(t, err)

			step := tt.length * (1 - tt.overlap)
			want := int(math.Ceil((10-tt.length)/step-1e-9)) + 1
			assert.Len(t, bounds, want)

			// Literal stepping: start at the beginning and advance by step while
			// the previous window had not yet reached the series end.
			literal := 0
			for s := 2000.0; ; s += step {
				literal++
				if s+tt.length >= 2010-1e-9 {
					break
				}
			}
			assert.Equal(t, literal, len(bounds))

			for k, b := range bounds {
				assert.InDelta(t, 2000+float64(k)*step, b.StartYear, 1e-9, "window %d", k)
			}
		})
	}
}

func TestPlanHalfOverlapCount(t *testing.T) {
	bounds, err := Plan(day(2000, time.January, 1), day(2009, time.December, 31), 3, 0.5)
	require.NoError(t, err)
	require.Len(t, bounds, int(math.Ceil((10.0-3.0)/(3*0.5)))+1)
	assert.Len(t, bounds, 6)

	assert.Equal(t, day(2000, time.January, 1), bounds[0].Start)
	assert.Equal(t, day(2003, time.January, 1), bounds[0].End)
	assert.False(t, bounds[0].Partial)

	lastWindow := bounds[len(bounds)-1]
	assert.True(t, lastWindow.Partial)
	assert.Equal(t, day(2010, time.January, 1), lastWindow.End)
}

func TestPlanWithoutOverlapTilesSeries(t *testing.T) {
	bounds, err := Plan(day(2000, time.January, 1), day(2009, time.December, 31), 3, 0)
	require.NoError(t, err)
	require.Len(t, bounds, 4)

	assert.Equal(t, day(2000, time.January, 1), bounds[0].Start)
	for k := 1; k < len(bounds); k++ {
		assert.Equal(t, bounds[k-1].End, bounds[k].Start, "gap before window %d", k)
	}
	assert.Equal(t, day(2010, time.January, 1), bounds[3].End)
	assert.True(t, bounds[3].Partial)
	for _, b := range bounds[:3] {
		assert.False(t, b.Partial)
	}
}

func TestPlanAcrossLeapDays(t *testing.T) {
	tests := []struct {
		name        string
		first, last time.Time
		length      float64
		overlap     float64
		want        []time.Time
	}{
		{
			name:   "starts after a leap day",
			first:  day(2000, time.March, 1),
			last:   day(2003, time.February, 28),
			length: 3,
			want:   []time.Time{day(2000, time.March, 1), day(2003, time.March, 1)},
		},
		{
			name:   "ends after a leap day",
			first:  day(2002, time.March, 1),
			last:   day(2012, time.February, 29),
			length: 2,
			want: []time.Time{
				day(2002, time.March, 1), day(2004, time.March, 1), day(2006, time.March, 1),
				day(2008, time.March, 1), day(2010, time.March, 1), day(2012, time.March, 1),
			},
		},
		{
			name:    "half overlap from March",
			first:   day(2001, time.March, 1),
			last:    day(2009, time.February, 28),
			length:  2,
			overlap: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bounds, err := Plan(tt.first, tt.last, tt.length, tt.overlap)
			require.NoError(t, err)

			// Every case covers whole calendar years.
			years := float64(tt.last.AddDate(0, 0, 1).Year() - tt.first.Year())
			step := tt.length * (1 - tt.overlap)
			assert.Len(t, bounds, int(math.Ceil((years-tt.length)/step))+1)

			for k, b := range bounds {
				assert.True(t, b.Start.Before(b.End), "window %d is empty", k)
				assert.False(t, b.Partial, "window %d", k)
			}
			assert.Equal(t, tt.last.AddDate(0, 0, 1), bounds[len(bounds)-1].End)

			if tt.want != nil {
				require.Len(t, bounds, len(tt.want)-1)
				for k, b := range bounds {
					assert.Equal(t, tt.want[k], b.Start, "start of window %d", k)
					assert.Equal(t, tt.want[k+1], b.End, "end of window %d", k)
				}
			}
		})
	}
}

func TestExtractAcrossLeapDays(t *testing.T) {
	obs := syntheticSeries(day(2002, time.March, 1), day(2012, time.February, 29), 5)

	cfg := DefaultConfig(0.1)
	cfg.LengthYears = 2
	cfg.Overlap = 0
	ex, err := NewExtractor(cfg, nil)
	require.NoError(t, err)

	res, err := ex.Extract(context.Background(), obs)
	require.NoError(t, err)
	require.Len(t, res.Windows, 5)

	ok, low := res.Counts()
	assert.Equal(t, 5, ok)
	assert.Zero(t, low)
	for _, w := range res.Windows {
		assert.Empty(t, w.Error)
		assert.InDelta(t, 1.0, w.Coverage, 1e-12)
	}
}

func TestPlanErrors(t *testing.T) {
	first, last := day(2000, time.January, 1), day(2004, time.December, 31)

	tests := []struct {
		name    string
		length  float64
		overlap float64
		want    error
	}{
		{"zero length", 0, 0.5, precip.ErrConfiguration},
		{"negative length", -3, 0.5, precip.ErrConfiguration},
		{"overlap one", 3, 1, precip.ErrConfiguration},
		{"negative overlap", 3, -0.1, precip.ErrConfiguration},
		{"longer than series", 6, 0.5, precip.ErrInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(first, last, tt.length, tt.overlap)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractIsDeterministicAcrossWorkers(t *testing.T) {
	obs := syntheticSeries(day(1990, time.January, 1), day(2009, time.December, 31), 42)

	cfg := DefaultConfig(0.1)
	cfg.LengthYears = 4
	cfg.Workers = 1
	serial, err := NewExtractor(cfg, nil)
	require.NoError(t, err)

	cfg.Workers = 8
	parallel, err := NewExtractor(cfg, nil)
	require.NoError(t, err)

	a, err := serial.Extract(context.Background(), obs)
	require.NoError(t, err)
	b, err := parallel.Extract(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	for i, w := range a.Windows {
		assert.Equal(t, i, w.Index)
		assert.True(t, w.OK())
		assert.InDelta(t, 1.0, w.Coverage, 1e-12)
	}
}

func TestExtractFlagsLowCoverage(t *testing.T) {
	obs := syntheticSeries(day(2000, time.January, 1), day(2005, time.December, 31), 9)
	// Blank out the whole of 2003.
	for i, o := range obs {
		if o.Date.Year() == 2003 {
			obs[i] = precip.MissingOn(o.Date)
		}
	}

	cfg := DefaultConfig(0.1)
	cfg.LengthYears = 2
	cfg.Overlap = 0
	ex, err := NewExtractor(cfg, nil)
	require.NoError(t, err)

	res, err := ex.Extract(context.Background(), obs)
	require.NoError(t, err)
	require.Len(t, res.Windows, 3)

	assert.True(t, res.Windows[0].OK())
	assert.Equal(t, QualityLow, res.Windows[1].Quality)
	assert.InDelta(t, 0.5, res.Windows[1].Coverage, 1e-12)
	assert.True(t, res.Windows[2].OK())

	ok, low := res.Counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, low)

	h, err := res.History(precip.PWD, false)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())

	h, err = res.History(precip.PWD, true)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Len())

	rows := res.Table(precip.PWD)
	require.Len(t, rows, 3)
	assert.Equal(t, QualityLow, rows[1].Quality)
}

func TestExtractKeepsFailedWindow(t *testing.T) {
	obs := syntheticSeries(day(2000, time.January, 1), day(2003, time.December, 31), 3)
	for i, o := range obs {
		if o.Date.Year() >= 2002 {
			obs[i] = precip.MissingOn(o.Date)
		}
	}

	cfg := DefaultConfig(0.1)
	cfg.LengthYears = 2
	cfg.Overlap = 0
	ex, err := NewExtractor(cfg, nil)
	require.NoError(t, err)

	res, err := ex.Extract(context.Background(), obs)
	require.NoError(t, err)
	require.Len(t, res.Windows, 2)

	failed := res.Windows[1]
	assert.Equal(t, QualityLow, failed.Quality)
	assert.NotEmpty(t, failed.Error)
	assert.Nil(t, failed.Monthly)
	for _, v := range failed.Summary {
		assert.False(t, v.Valid)
	}
}

func TestExtractHonorsCancellation(t *testing.T) {
	obs := syntheticSeries(day(2000, time.January, 1), day(2009, time.December, 31), 1)
	ex, err := NewExtractor(DefaultConfig(0.1), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ex.Extract(ctx, obs)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeasonalHistoryUsesSeasonMonths(t *testing.T) {
	// Wet every day in summer, dry otherwise.
	var obs []precip.Observation
	for d := day(2000, time.January, 1); d.Year() < 2004; d = d.AddDate(0, 0, 1) {
		amount := 0.0
		if m := d.Month(); m >= time.June && m <= time.August {
			amount = 2 + float64(d.Day()%3)
		}
		obs = append(obs, precip.Observed(d, amount))
	}

	cfg := DefaultConfig(0)
	cfg.LengthYears = 2
	ex, err := NewExtractor(cfg, nil)
	require.NoError(t, err)
	res, err := ex.Extract(context.Background(), obs)
	require.NoError(t, err)

	summer, err := SeasonByName("Summer")
	require.NoError(t, err)
	h, err := res.SeasonalHistory(precip.PWW, summer, false)
	require.NoError(t, err)
	require.Equal(t, len(res.Windows), h.Len())
	for _, v := range h.Values {
		// June 1 arrives from a dry May 31; every other summer transition is wet to wet.
		assert.Greater(t, v, 0.9)
	}

	winter, err := SeasonByName("winter")
	require.NoError(t, err)
	h, err = res.SeasonalHistory(precip.PWD, winter, false)
	require.NoError(t, err)
	for _, v := range h.Values {
		assert.Equal(t, 0.0, v)
	}

	_, err = SeasonByName("monsoon")
	assert.ErrorIs(t, err, precip.ErrConfiguration)
}

func TestNewExtractorRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig(0.1)
	cfg.MinCoverage = 0
	_, err := NewExtractor(cfg, nil)
	assert.ErrorIs(t, err, precip.ErrConfiguration)

	cfg = DefaultConfig(-1)
	_, err = NewExtractor(cfg, nil)
	assert.ErrorIs(t, err, precip.ErrConfiguration)

	cfg = DefaultConfig(0.1)
	cfg.Months = []time.Month{13}
	_, err = NewExtractor(cfg, nil)
	assert.ErrorIs(t, err, precip.ErrConfiguration)
}
