package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chrissnell/precipgen/internal/precip"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g.
// PRECIPGEN_ESTIMATOR_WET_THRESHOLD or PRECIPGEN_WINDOWS_LENGTH_YEARS.
const EnvPrefix = "PRECIPGEN"

// AnalysisConfig is the complete configuration of one analysis run.
type AnalysisConfig struct {
	Estimator  EstimatorConfig  `yaml:"estimator" json:"estimator" envconfig:"ESTIMATOR"`
	Windows    WindowConfig     `yaml:"windows" json:"windows" envconfig:"WINDOWS"`
	Waves      WaveConfig       `yaml:"waves" json:"waves" envconfig:"WAVES"`
	RandomWalk RandomWalkConfig `yaml:"random_walk" json:"random_walk" envconfig:"RANDOM_WALK"`
	Projection ProjectionConfig `yaml:"projection" json:"projection" envconfig:"PROJECTION"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging" envconfig:"LOGGING"`
}

// EstimatorConfig controls the monthly parameter fit. The wet threshold has
// no default: it must be stated in the same unit as the input series.
type EstimatorConfig struct {
	WetThreshold *float64 `yaml:"wet_threshold" json:"wet_threshold" split_words:"true" validate:"required,gte=0"`
	Units        string   `yaml:"units" json:"units" split_words:"true" validate:"required,oneof=mm in"`
	MinWetDays   int      `yaml:"min_wet_days" json:"min_wet_days" split_words:"true" validate:"gte=2"`
	GammaMethod  string   `yaml:"gamma_method" json:"gamma_method" split_words:"true" validate:"oneof=moments mle"`
}

// WindowConfig controls sliding-window placement.
type WindowConfig struct {
	LengthYears       float64 `yaml:"length_years" json:"length_years" split_words:"true" validate:"gt=0"`
	OverlapFraction   float64 `yaml:"overlap_fraction" json:"overlap_fraction" split_words:"true" validate:"gte=0,lt=1"`
	MinCoverage       float64 `yaml:"min_coverage" json:"min_coverage" split_words:"true" validate:"gt=0,lte=1"`
	Months            []int   `yaml:"months" json:"months,omitempty" split_words:"true" validate:"omitempty,dive,min=1,max=12"`
	IncludeLowQuality bool    `yaml:"include_low_quality" json:"include_low_quality" split_words:"true"`
	Workers           int     `yaml:"workers" json:"workers" split_words:"true" validate:"gte=0,lte=256"`
}

// WaveConfig controls the spectral decomposition.
type WaveConfig struct {
	NumComponents int     `yaml:"num_components" json:"num_components" split_words:"true" validate:"gte=1"`
	GridStepYears float64 `yaml:"grid_step_years" json:"grid_step_years" split_words:"true" validate:"gt=0"`
}

// RandomWalkConfig bounds the reversion rates accepted as stable.
type RandomWalkConfig struct {
	MinStableRate float64 `yaml:"min_stable_rate" json:"min_stable_rate" split_words:"true"`
	MaxStableRate float64 `yaml:"max_stable_rate" json:"max_stable_rate" split_words:"true" validate:"gtefield=MinStableRate"`
	Seasonal      bool    `yaml:"seasonal" json:"seasonal" split_words:"true"`
}

// ProjectionConfig selects an optional forward projection. Random-walk
// projection needs an explicit seed.
type ProjectionConfig struct {
	Mode          string  `yaml:"mode" json:"mode" split_words:"true" validate:"oneof=none wave randomwalk"`
	Periods       int     `yaml:"periods" json:"periods" split_words:"true" validate:"gte=0,required_unless=Mode none"`
	Seed          *uint64 `yaml:"seed" json:"seed,omitempty" split_words:"true" validate:"required_if=Mode randomwalk"`
	MinGammaParam float64 `yaml:"min_gamma_param" json:"min_gamma_param" split_words:"true" validate:"gt=0"`
	AllowUnstable bool    `yaml:"allow_unstable" json:"allow_unstable" split_words:"true"`
}

// LoggingConfig mirrors the log package options.
type LoggingConfig struct {
	Debug    bool   `yaml:"debug" json:"debug" split_words:"true"`
	Level    string `yaml:"level" json:"level,omitempty" split_words:"true" validate:"omitempty,oneof=debug info warn error"`
	Encoding string `yaml:"encoding" json:"encoding,omitempty" split_words:"true" validate:"omitempty,oneof=json console"`
}

// Defaults returns every setting that has a sensible default. Units and the
// wet threshold are left unset.
func Defaults() *AnalysisConfig {
	return &AnalysisConfig{
		Estimator: EstimatorConfig{
			MinWetDays:  2,
			GammaMethod: "moments",
		},
		Windows: WindowConfig{
			LengthYears:     10,
			OverlapFraction: 0.5,
			MinCoverage:     0.8,
			Workers:         1,
		},
		Waves: WaveConfig{
			NumComponents: 3,
			GridStepYears: 1,
		},
		RandomWalk: RandomWalkConfig{
			MinStableRate: 0,
			MaxStableRate: 2,
		},
		Projection: ProjectionConfig{
			Mode:          "none",
			MinGammaParam: 0.01,
		},
	}
}

// ApplyEnv overrides settings from PRECIPGEN_* environment variables.
// Variables that are not set leave the current value untouched.
func ApplyEnv(cfg *AnalysisConfig) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("%w: environment override: %v", precip.ErrConfiguration, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks every section. Failures wrap precip.ErrConfiguration.
func (c *AnalysisConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", precip.ErrConfiguration, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", precip.ErrConfiguration, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s fails %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// Load reads the provider's configuration, applies environment overrides
// and validates the result.
func Load(provider ConfigProvider) (*AnalysisConfig, error) {
	cfg, err := provider.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
