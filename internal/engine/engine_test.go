package engine

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/chrissnell/precipgen/internal/metrics"
	"github.com/chrissnell/precipgen/internal/precip"
	"github.com/chrissnell/precipgen/internal/synth"
	"github.com/chrissnell/precipgen/internal/wave"
	"github.com/chrissnell/precipgen/internal/window"
	"github.com/chrissnell/precipgen/pkg/config"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var frozen = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(frozen)
	SetClock(fc)
	t.Cleanup(func() { SetClock(nil) })
	return fc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dailySeries returns one observation per day with a wet-day frequency that
// drifts slowly over the years.
func dailySeries(from, to time.Time, seed uint64) []precip.Observation {
	r := rand.New(rand.NewPCG(seed, seed^0xabcdef))
	var obs []precip.Observation
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		pWet := 0.3 + 0.05*float64(d.Year()%7)/7
		amount := 0.0
		if r.Float64() < pWet {
			amount = 0.3 + r.ExpFloat64()*6
		}
		obs = append(obs, precip.Observed(d, amount))
	}
	return obs
}

func testConfig() *config.AnalysisConfig {
	cfg := config.Defaults()
	threshold := 0.1
	cfg.Estimator.Units = "mm"
	cfg.Estimator.WetThreshold = &threshold
	cfg.Windows.LengthYears = 4
	cfg.Windows.OverlapFraction = 0.5
	cfg.Windows.Workers = 4
	cfg.Waves.NumComponents = 3
	cfg.RandomWalk.Seasonal = true
	seed := uint64(7)
	cfg.Projection.Mode = "randomwalk"
	cfg.Projection.Periods = 10
	cfg.Projection.Seed = &seed
	cfg.Projection.AllowUnstable = true
	return cfg
}

func TestRunProducesCompleteReport(t *testing.T) {
	freezeClock(t)
	m := metrics.NewForTesting()
	a, err := New(testConfig(), nil, m)
	require.NoError(t, err)

	obs := dailySeries(day(1960, time.January, 1), day(1999, time.December, 31), 1)
	report, err := a.Run(context.Background(), obs)
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, frozen, report.GeneratedAt)
	assert.Equal(t, len(obs), report.Series.Days)
	assert.Equal(t, 0, report.Series.Missing)
	assert.InDelta(t, 1.0, report.Series.Coverage, 1e-12)
	require.NotNil(t, report.Series.Annual)
	assert.Len(t, report.Series.Annual.Totals, 40)
	assert.Equal(t, 1960, report.Series.Annual.Totals[0].Year)

	require.NotNil(t, report.Baseline)
	for _, s := range report.Baseline {
		assert.True(t, s.PWW.Valid)
		assert.True(t, s.Alpha.Valid == s.Beta.Valid)
	}

	// 40 years, 4-year windows every 2 years.
	require.Len(t, report.Windows.Windows, 19)
	require.Len(t, report.Histories, precip.NumParameters)
	for _, h := range report.Histories {
		assert.Len(t, h.Rows, 19)
	}

	require.Len(t, report.Waves, precip.NumParameters)
	for _, w := range report.Waves {
		assert.Len(t, w.Decomposition.Components, 3)
		assert.Equal(t, 1.0, w.Decomposition.Step)
		assert.Equal(t, 1962.0, w.Decomposition.Origin)
		assert.NoError(t, wave.ValidateComponents(w.Decomposition.Components))
	}
	assert.NotNil(t, report.Wave(precip.Beta))

	require.NotNil(t, report.RandomWalk)
	assert.Len(t, report.RandomWalk.Times, 37)
	require.Len(t, report.Seasonal, len(window.Seasons))
	assert.Equal(t, "winter", report.Seasonal[0].Season)

	require.NotNil(t, report.Projection)
	assert.Equal(t, synth.ModeRandomWalk, report.Projection.Mode)
	require.Len(t, report.Projection.Points, 10)
	assert.Equal(t, 1999.0, report.Projection.Points[0].Time)
	require.NotNil(t, report.Projection.Seed)
	assert.Equal(t, uint64(7), *report.Projection.Seed)
	assert.Empty(t, report.Skipped)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("success")))
	assert.Equal(t, 19.0, testutil.ToFloat64(m.Windows.WithLabelValues("ok")))
	assert.Equal(t, float64(len(obs)), testutil.ToFloat64(m.ObservationsTotal))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.ProjectedPeriods.WithLabelValues("randomwalk")))
	assert.Equal(t, float64(frozen.Unix()), testutil.ToFloat64(m.LastRunTimestamp))
}

func TestRunIsReproducible(t *testing.T) {
	freezeClock(t)
	a, err := New(testConfig(), nil, nil)
	require.NoError(t, err)

	obs := dailySeries(day(1960, time.January, 1), day(1999, time.December, 31), 2)
	first, err := a.Run(context.Background(), obs)
	require.NoError(t, err)
	second, err := a.Run(context.Background(), obs)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Projection, second.Projection)
	assert.Equal(t, first.RandomWalk, second.RandomWalk)
	assert.Equal(t, first.Waves, second.Waves)
}

func TestRunSkipsStagesOnShortRecord(t *testing.T) {
	freezeClock(t)
	cfg := testConfig()
	cfg.Windows.LengthYears = 10
	cfg.RandomWalk.Seasonal = false
	cfg.Projection.Mode = "wave"
	cfg.Projection.Seed = nil

	core, logs := observer.New(zap.WarnLevel)
	a, err := New(cfg, zap.New(core).Sugar(), nil)
	require.NoError(t, err)

	// Two windows with midpoints 1995 and 1998.5 leave four annual grid
	// points: enough for a random walk, too few for three components.
	report, err := a.Run(context.Background(), dailySeries(day(1990, time.January, 1), day(2001, time.December, 31), 3))
	require.NoError(t, err)

	require.Len(t, report.Windows.Windows, 2)
	assert.Empty(t, report.Waves)
	assert.NotNil(t, report.RandomWalk)
	assert.Nil(t, report.Projection)

	stages := map[string]int{}
	for _, s := range report.Skipped {
		stages[s.Stage]++
	}
	assert.Equal(t, map[string]int{"waves": 4, "projection": 1}, stages)
	assert.Equal(t, 5, logs.FilterMessage("stage skipped").Len())
}

func TestRunErrors(t *testing.T) {
	freezeClock(t)
	m := metrics.NewForTesting()
	a, err := New(testConfig(), nil, m)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), nil)
	assert.ErrorIs(t, err, precip.ErrInsufficientData)

	unordered := []precip.Observation{
		precip.Observed(day(2000, time.January, 2), 1),
		precip.Observed(day(2000, time.January, 1), 1),
	}
	_, err = a.Run(context.Background(), unordered)
	assert.ErrorIs(t, err, precip.ErrValidation)

	// Shorter than one window.
	_, err = a.Run(context.Background(), dailySeries(day(2000, time.January, 1), day(2001, time.June, 30), 4))
	assert.ErrorIs(t, err, precip.ErrInsufficientData)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Run(ctx, dailySeries(day(1960, time.January, 1), day(1999, time.December, 31), 5))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Runs.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Runs.WithLabelValues("success")))
}

func TestRunRefusesUnstableProjection(t *testing.T) {
	freezeClock(t)
	cfg := testConfig()
	cfg.Projection.AllowUnstable = false
	// An empty stable range makes every fitted model unstable.
	cfg.RandomWalk.MinStableRate = 50
	cfg.RandomWalk.MaxStableRate = 60

	a, err := New(cfg, nil, nil)
	require.NoError(t, err)
	_, err = a.Run(context.Background(), dailySeries(day(1960, time.January, 1), day(1999, time.December, 31), 6))
	assert.ErrorIs(t, err, precip.ErrValidation)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.ErrorIs(t, err, precip.ErrConfiguration)

	cfg := testConfig()
	cfg.Estimator.WetThreshold = nil
	_, err = New(cfg, nil, nil)
	assert.ErrorIs(t, err, precip.ErrConfiguration)

	cfg = testConfig()
	cfg.Projection.Seed = nil
	_, err = New(cfg, nil, nil)
	assert.ErrorIs(t, err, precip.ErrConfiguration)
}

func TestWriteText(t *testing.T) {
	freezeClock(t)
	cfg := testConfig()
	cfg.Projection.Mode = "wave"
	a, err := New(cfg, nil, nil)
	require.NoError(t, err)

	report, err := a.Run(context.Background(), dailySeries(day(1960, time.January, 1), day(1999, time.December, 31), 8))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf))
	out := buf.String()
	for _, heading := range []string{
		"ANNUAL TOTALS", "MONTHLY PARAMETERS", "HISTORY PWW", "WAVE COMPONENTS", "RANDOM WALK",
		"CORRELATION", "SEASON WINTER", "PROJECTION wave",
	} {
		assert.Contains(t, out, heading)
	}
	assert.Contains(t, out, "2026-03-14T09:30:00Z")
}
