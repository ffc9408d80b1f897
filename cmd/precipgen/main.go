package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chrissnell/precipgen/internal/constants"
	"github.com/chrissnell/precipgen/internal/engine"
	"github.com/chrissnell/precipgen/internal/log"
	"github.com/chrissnell/precipgen/internal/metrics"
	"github.com/chrissnell/precipgen/internal/precip"
	"github.com/chrissnell/precipgen/pkg/config"
	"github.com/chrissnell/precipgen/pkg/responseformat"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfgFile := flag.String("config", "precipgen.yaml", "Path to configuration source:\n\t\t\t  YAML: precipgen.yaml\n\t\t\t  SQLite: precipgen.db\n\t\t\t  Use 'config-convert' tool to convert YAML→SQLite")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	inputFile := flag.String("input", "", "Daily precipitation CSV with DATE and PRCP columns ('-' for stdin)")
	outputFile := flag.String("output", "", "Write the report here instead of stdout")
	format := flag.String("format", "json", "Report format: json, msgpack or text")
	seed := flag.Uint64("seed", 0, "Random-walk projection seed (overrides the configured seed when non-zero)")
	metricsFile := flag.String("metrics-file", "", "Write Prometheus metrics for this run to a textfile")
	envFile := flag.String("env-file", ".env", "Optional file of PRECIPGEN_* overrides")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", constants.AppName, constants.Version)
		os.Exit(0)
	}

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -config <precipgen.yaml> -input <daily.csv>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	outFormat, err := responseformat.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// A missing .env file is not an error.
	_ = godotenv.Load(*envFile)

	cfg, err := loadConfig(*cfgFile, *cfgBackend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *seed != 0 {
		cfg.Projection.Seed = seed
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := log.InitWithOptions(log.Options{
		Debug:    *debug || cfg.Logging.Debug,
		Level:    cfg.Logging.Level,
		Encoding: cfg.Logging.Encoding,
	}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *inputFile, *outputFile, outFormat, *metricsFile); err != nil {
		log.Errorf("precipgen: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AnalysisConfig, inputFile, outputFile string, format responseformat.Format, metricsFile string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := readInput(inputFile)
	if err != nil {
		return err
	}
	log.Infow("loaded daily series", "file", inputFile, "observations", len(obs))

	reg := prometheus.NewRegistry()
	analyzer, err := engine.New(cfg, log.Named("engine"), metrics.New(reg))
	if err != nil {
		return err
	}

	report, runErr := analyzer.Run(ctx, obs)
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			log.Warnf("unable to write metrics to %s: %v", metricsFile, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	var out io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("error creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return responseformat.NewFormatter(true).Write(out, format, report)
}

func readInput(name string) ([]precip.Observation, error) {
	if name == "-" {
		return readSeries(os.Stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("error opening input: %w", err)
	}
	defer f.Close()

	obs, err := readSeries(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return obs, nil
}

func loadConfig(cfgFile, cfgBackend string) (*config.AnalysisConfig, error) {
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	var err error

	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	cfg, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
