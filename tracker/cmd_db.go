package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loredb-bench/tracker/api"
	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/exporter"
	"github.com/loredb-bench/tracker/metrics"
	"github.com/loredb-bench/tracker/storage"
	"github.com/loredb-bench/tracker/types"
)

var exportOpts struct {
	output string
	format string
	suite  string
	fromDB bool
	since  string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the flattened history as csv, json or parquet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var format exporter.Format
		if exportOpts.format != "" {
			f, err := exporter.ParseFormat(exportOpts.format)
			if err != nil {
				return err
			}
			format = f
		}

		var rows []exporter.Row
		if exportOpts.fromDB {
			store, err := requireStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := types.RunFilter{Suite: exportOpts.suite}
			if exportOpts.since != "" {
				if filter.Since, err = time.Parse(time.RFC3339, exportOpts.since); err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
			}
			series, err := store.QueryMetrics(ctx, filter)
			if err != nil {
				return err
			}
			rows = exporter.RowsFromMetrics(series)
		} else {
			ds, err := dataset.LoadFile(cfg.Benchmark.DataFile)
			if err != nil {
				return err
			}
			rows = exporter.Rows(ds, exportOpts.suite)
		}

		if exportOpts.output == "-" {
			if format == "" {
				format = exporter.FormatCSV
			}
			return exporter.Write(cmd.OutOrStdout(), format, rows)
		}
		if err := exporter.ExportFile(exportOpts.output, format, rows); err != nil {
			return err
		}
		log.WithField("rows", len(rows)).WithField("path", exportOpts.output).Info("Export written")
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOpts.output, "output", "o", "-", "Output file, - for stdout")
	f.StringVar(&exportOpts.format, "format", "", "csv, json or parquet (default from the output extension)")
	f.StringVar(&exportOpts.suite, "suite", "", "Only export one suite")
	f.BoolVar(&exportOpts.fromDB, "from-db", false, "Export from the database instead of data.js")
	f.StringVar(&exportOpts.since, "since", "", "With --from-db, only runs after this RFC3339 time")
}

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the history API, data.js, websocket notifications and /metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		history, err := openHistory(ctx)
		if err != nil {
			return err
		}
		defer history.Close()

		server := api.NewServer(cfg, history, metrics.NewCollector(), log)
		if err := server.Start(ctx); err != nil {
			return err
		}
		log.WithField("addr", cfg.Server.Addr).Info("Press Ctrl+C to stop the server")

		<-ctx.Done()
		log.Info("Received shutdown signal, shutting down API server")
		return server.Stop()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Override server.addr")
}

var migrateOpts struct {
	importData bool
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := requireStore(ctx)
		if err != nil {
			return err
		}
		history := storage.NewHistoricStorage(cfg.Benchmark.DataFile, cfg.Benchmark.MaxItemsInChart, store, types.HostInfo{}, log)
		defer history.Close()

		if withDB, ok := store.(interface{ DB() *sql.DB }); ok {
			version, err := storage.SchemaVersion(ctx, withDB.DB())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", version)
		}

		if !migrateOpts.importData {
			return nil
		}
		ds, err := history.Dataset()
		if err != nil {
			return err
		}
		n, err := history.Import(ctx, ds)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d runs from %s\n", n, cfg.Benchmark.DataFile)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateOpts.importData, "import", false, "Import every data.js entry after migrating")
}

var pruneOpts struct {
	olderThan string
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete database runs older than the retention window",
	Long:  `Deletes runs, benches and alerts from the database. data.js is never pruned here; it is bounded by max_items_in_chart.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		storageCfg := cfg.Storage
		if pruneOpts.olderThan != "" {
			storageCfg.Retention = pruneOpts.olderThan
		}
		retention, err := storageCfg.RetentionDuration()
		if err != nil {
			return err
		}

		store, err := requireStore(ctx)
		if err != nil {
			return err
		}
		history := storage.NewHistoricStorage(cfg.Benchmark.DataFile, cfg.Benchmark.MaxItemsInChart, store, types.HostInfo{}, log)
		defer history.Close()

		deleted, err := history.Prune(ctx, retention)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs older than %s\n", deleted, storageCfg.Retention)
		return nil
	},
}

func init() {
	pruneCmd.Flags().StringVar(&pruneOpts.olderThan, "older-than", "", "Override storage.retention, e.g. 30d")
}
