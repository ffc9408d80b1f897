package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chrissnell/precipgen/internal/precip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
estimator:
  wet_threshold: 0.254
  units: mm
  gamma_method: mle
windows:
  length_years: 8
  overlap_fraction: 0.25
  months: [6, 7, 8]
waves:
  num_components: 2
projection:
  mode: randomwalk
  periods: 25
  seed: 1234
logging:
  level: warn
`

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "precipgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig() *AnalysisConfig {
	cfg := Defaults()
	threshold := 0.1
	cfg.Estimator.WetThreshold = &threshold
	cfg.Estimator.Units = "mm"
	return cfg
}

func TestYAMLProviderOverlaysDefaults(t *testing.T) {
	provider := NewYAMLProvider(writeYAML(t, sampleYAML))
	defer provider.Close()
	assert.True(t, provider.IsReadOnly())

	cfg, err := Load(provider)
	require.NoError(t, err)

	require.NotNil(t, cfg.Estimator.WetThreshold)
	assert.Equal(t, 0.254, *cfg.Estimator.WetThreshold)
	assert.Equal(t, "mle", cfg.Estimator.GammaMethod)
	assert.Equal(t, 2, cfg.Estimator.MinWetDays)
	assert.Equal(t, 8.0, cfg.Windows.LengthYears)
	assert.Equal(t, 0.25, cfg.Windows.OverlapFraction)
	assert.Equal(t, 0.8, cfg.Windows.MinCoverage)
	assert.Equal(t, []int{6, 7, 8}, cfg.Windows.Months)
	assert.Equal(t, 2, cfg.Waves.NumComponents)
	assert.Equal(t, 1.0, cfg.Waves.GridStepYears)
	assert.Equal(t, 2.0, cfg.RandomWalk.MaxStableRate)
	require.NotNil(t, cfg.Projection.Seed)
	assert.Equal(t, uint64(1234), *cfg.Projection.Seed)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestYAMLProviderRejectsUnknownKeys(t *testing.T) {
	provider := NewYAMLProvider(writeYAML(t, "windows:\n  lenght_years: 5\n"))
	_, err := provider.LoadConfig()
	assert.Error(t, err)
}

func TestYAMLProviderMissingFile(t *testing.T) {
	provider := NewYAMLProvider(filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load(provider)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshalYAMLKeepsEffectiveSettings(t *testing.T) {
	cfg, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	out, err := MarshalYAML(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "wet_threshold: 0.254")
	// Defaults the file left out are written too.
	assert.Contains(t, string(out), "min_coverage: 0.8")

	back, err := ParseYAML(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PRECIPGEN_ESTIMATOR_WET_THRESHOLD", "0.01")
	t.Setenv("PRECIPGEN_ESTIMATOR_UNITS", "in")
	t.Setenv("PRECIPGEN_WINDOWS_LENGTH_YEARS", "12.5")
	t.Setenv("PRECIPGEN_WINDOWS_MONTHS", "12,1,2")
	t.Setenv("PRECIPGEN_PROJECTION_MODE", "wave")
	t.Setenv("PRECIPGEN_PROJECTION_PERIODS", "10")

	provider := NewYAMLProvider(writeYAML(t, "waves:\n  num_components: 4\n"))
	cfg, err := Load(provider)
	require.NoError(t, err)

	require.NotNil(t, cfg.Estimator.WetThreshold)
	assert.Equal(t, 0.01, *cfg.Estimator.WetThreshold)
	assert.Equal(t, "in", cfg.Estimator.Units)
	assert.Equal(t, 12.5, cfg.Windows.LengthYears)
	assert.Equal(t, []int{12, 1, 2}, cfg.Windows.Months)
	assert.Equal(t, "wave", cfg.Projection.Mode)
	assert.Equal(t, 10, cfg.Projection.Periods)

	// Values not named in the environment keep the file or default value.
	assert.Equal(t, 4, cfg.Waves.NumComponents)
	assert.Equal(t, 0.5, cfg.Windows.OverlapFraction)
	assert.Nil(t, cfg.Projection.Seed)
}

func TestEnvironmentOverrideBadValue(t *testing.T) {
	t.Setenv("PRECIPGEN_WINDOWS_LENGTH_YEARS", "ten")
	err := ApplyEnv(Defaults())
	assert.ErrorIs(t, err, precip.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AnalysisConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AnalysisConfig) {}},
		{
			name:    "missing wet threshold",
			mutate:  func(c *AnalysisConfig) { c.Estimator.WetThreshold = nil },
			wantErr: "Estimator.WetThreshold is required",
		},
		{
			name: "negative wet threshold",
			mutate: func(c *AnalysisConfig) {
				v := -1.0
				c.Estimator.WetThreshold = &v
			},
			wantErr: "Estimator.WetThreshold",
		},
		{
			name:    "unknown units",
			mutate:  func(c *AnalysisConfig) { c.Estimator.Units = "cm" },
			wantErr: "Estimator.Units must be one of",
		},
		{
			name:    "overlap of one",
			mutate:  func(c *AnalysisConfig) { c.Windows.OverlapFraction = 1 },
			wantErr: "Windows.OverlapFraction",
		},
		{
			name:    "zero window length",
			mutate:  func(c *AnalysisConfig) { c.Windows.LengthYears = 0 },
			wantErr: "Windows.LengthYears",
		},
		{
			name:    "month out of range",
			mutate:  func(c *AnalysisConfig) { c.Windows.Months = []int{1, 13} },
			wantErr: "Windows.Months[1]",
		},
		{
			name:    "no wave components",
			mutate:  func(c *AnalysisConfig) { c.Waves.NumComponents = 0 },
			wantErr: "Waves.NumComponents",
		},
		{
			name: "inverted stable range",
			mutate: func(c *AnalysisConfig) {
				c.RandomWalk.MinStableRate = 1.5
				c.RandomWalk.MaxStableRate = 0.5
			},
			wantErr: "RandomWalk.MaxStableRate",
		},
		{
			name: "random walk without seed",
			mutate: func(c *AnalysisConfig) {
				c.Projection.Mode = "randomwalk"
				c.Projection.Periods = 5
			},
			wantErr: "Projection.Seed is required",
		},
		{
			name:    "projection without periods",
			mutate:  func(c *AnalysisConfig) { c.Projection.Mode = "wave" },
			wantErr: "Projection.Periods is required",
		},
		{
			name:    "unknown projection mode",
			mutate:  func(c *AnalysisConfig) { c.Projection.Mode = "arima" },
			wantErr: "Projection.Mode",
		},
		{
			name:    "bad log level",
			mutate:  func(c *AnalysisConfig) { c.Logging.Level = "loud" },
			wantErr: "Logging.Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, precip.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "config.db")

	provider, err := NewSQLiteProvider(dbPath)
	require.NoError(t, err)
	assert.False(t, provider.IsReadOnly())

	// An empty database yields the defaults.
	empty, err := provider.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), empty)

	src, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, provider.SaveConfig(src, "precipgen.yaml"))
	require.NoError(t, provider.Close())

	// Reopening runs the migrations again without harm.
	provider, err = NewSQLiteProvider(dbPath)
	require.NoError(t, err)
	defer provider.Close()

	got, err := provider.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, src, got)

	source, err := provider.Source()
	require.NoError(t, err)
	assert.Equal(t, "precipgen.yaml", source)

	// Saving again replaces the stored sections.
	src.Waves.NumComponents = 5
	src.Projection.Seed = nil
	src.Projection.Mode = "none"
	require.NoError(t, provider.SaveConfig(src, "second.yaml"))
	got, err = provider.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, got.Waves.NumComponents)
	assert.Nil(t, got.Projection.Seed)
	assert.Equal(t, "none", got.Projection.Mode)
}

func TestSQLiteProviderEmptySource(t *testing.T) {
	provider, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	defer provider.Close()

	source, err := provider.Source()
	require.NoError(t, err)
	assert.Empty(t, source)
}
