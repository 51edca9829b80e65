package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/loredb-bench/tracker/config"
	"github.com/loredb-bench/tracker/metrics"
	"github.com/loredb-bench/tracker/storage"
)

// Set by the linker at release time
var version = "dev"

// errRegression is returned by ingest when fail_on_alert trips
var errRegression = errors.New("performance regression exceeds fail threshold")

var (
	configPath string
	dataFile   string
	logLevel   string
	noColor    bool

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "benchtrack",
	Short:         "Record and analyze google-benchmark history in data.js",
	Long:          `benchtrack maintains the dev/bench/data.js benchmark history, detects regressions between commits and serves the history over HTTP.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "benchtrack.yaml", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dataFile, "data-file", "", "Override benchmark.data_file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored tables")

	rootCmd.AddCommand(
		ingestCmd,
		validateCmd,
		compareCmd,
		trendCmd,
		exportCmd,
		serveCmd,
		migrateCmd,
		pruneCmd,
		dashboardCmd,
	)
}

// setup loads the configuration and builds the logger
func setup() error {
	bootstrap := logrus.New()
	bootstrap.SetOutput(os.Stderr)

	loaded, err := config.Load(configPath, bootstrap)
	if err != nil {
		return err
	}
	if dataFile != "" {
		loaded.Benchmark.DataFile = dataFile
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}

	logger, err := loaded.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	cfg, log = loaded, logger
	if noColor {
		color.NoColor = true
	}
	return nil
}

func useColors() bool {
	return !color.NoColor
}

// openStore opens and migrates the configured database. It returns nil for
// the none backend.
func openStore(ctx context.Context) (storage.Store, error) {
	if cfg.Storage.Backend == config.BackendNone {
		return nil, nil
	}

	pg := cfg.Storage.PostgreSQL
	store, err := storage.Open(ctx, cfg.Storage.Backend, cfg.Storage.ConnectionString(), storage.Options{
		MaxOpenConns:   pg.MaxOpenConns,
		MaxIdleConns:   pg.MaxIdleConns,
		ConnectTimeout: pg.ConnectTimeoutDuration(),
	}, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return store, nil
}

// openHistory builds the data.js + database facade used by most commands
func openHistory(ctx context.Context) (*storage.HistoricStorage, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	host := metrics.CollectHostInfo(ctx, log)
	return storage.NewHistoricStorage(cfg.Benchmark.DataFile, cfg.Benchmark.MaxItemsInChart, store, host, log), nil
}

// requireStore opens the database or fails when none is configured
func requireStore(ctx context.Context) (storage.Store, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("storage.backend is %q, this command needs sqlite or postgres", config.BackendNone)
	}
	return store, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
