package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// LoadConfig returns the stored configuration laid over Defaults().
	LoadConfig() (*AnalysisConfig, error)

	IsReadOnly() bool
	Close() error
}

// sections maps each stored section name to its place in cfg.
func (c *AnalysisConfig) sections() map[string]interface{} {
	return map[string]interface{}{
		"estimator":   &c.Estimator,
		"windows":     &c.Windows,
		"waves":       &c.Waves,
		"random_walk": &c.RandomWalk,
		"projection":  &c.Projection,
		"logging":     &c.Logging,
	}
}
