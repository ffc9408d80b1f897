package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/precipgen/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <precipgen.yaml> -sqlite <precipgen.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Check if YAML file exists
	if _, err := os.Stat(*yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", *yamlFile)
		os.Exit(1)
	}

	// Check if SQLite file already exists
	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	if *dryRun {
		fmt.Println("DRY RUN - No changes will be made")
	}

	// Environment overrides are not applied; the database holds the file as written.
	fmt.Printf("Loading YAML configuration...\n")
	cfg, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		printConfigSummary(cfg)
		if err := printConfigYAML(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	// Remove existing SQLite file if force is specified
	if *force {
		if err := os.Remove(*sqliteFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing SQLite file: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Creating SQLite database...\n")
	if err := convert(*yamlFile, *sqliteFile, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration into SQLite: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now use the SQLite backend with: -config-backend sqlite -config %s\n", *sqliteFile)
}

// convert creates the database (the provider applies the schema migrations)
// and stores cfg in it.
func convert(yamlFile, dbPath string, cfg *config.AnalysisConfig) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	provider, err := config.NewSQLiteProvider(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite provider: %w", err)
	}
	defer provider.Close()

	source, _ := filepath.Abs(yamlFile)
	if err := provider.SaveConfig(cfg, source); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	stored, err := provider.Source()
	if err != nil {
		return fmt.Errorf("failed to read back configuration source: %w", err)
	}
	fmt.Printf("  Recorded source: %s\n", stored)
	return nil
}

// printConfigYAML shows the effective configuration, defaults filled in, as
// it will be stored.
func printConfigYAML(cfg *config.AnalysisConfig) error {
	out, err := config.MarshalYAML(cfg)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	fmt.Printf("\nEffective configuration:\n%s", out)
	return nil
}

func printConfigSummary(cfg *config.AnalysisConfig) {
	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("Estimator:\n")
	fmt.Printf("  - wet threshold %g %s, gamma %s, min wet days %d\n",
		*cfg.Estimator.WetThreshold, cfg.Estimator.Units, cfg.Estimator.GammaMethod, cfg.Estimator.MinWetDays)

	fmt.Printf("\nWindows:\n")
	fmt.Printf("  - %g years, overlap %g, min coverage %g\n",
		cfg.Windows.LengthYears, cfg.Windows.OverlapFraction, cfg.Windows.MinCoverage)
	if len(cfg.Windows.Months) > 0 {
		fmt.Printf("  - months %v\n", cfg.Windows.Months)
	}

	fmt.Printf("\nWaves:\n")
	fmt.Printf("  - %d components on a %g-year grid\n", cfg.Waves.NumComponents, cfg.Waves.GridStepYears)

	fmt.Printf("\nRandom walk:\n")
	fmt.Printf("  - stable range [%g, %g], seasonal %t\n",
		cfg.RandomWalk.MinStableRate, cfg.RandomWalk.MaxStableRate, cfg.RandomWalk.Seasonal)

	fmt.Printf("\nProjection:\n")
	fmt.Printf("  - mode %s, %d periods\n", cfg.Projection.Mode, cfg.Projection.Periods)
	if cfg.Projection.Seed != nil {
		fmt.Printf("  - seed %d\n", *cfg.Projection.Seed)
	}
}
