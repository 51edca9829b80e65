package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loredb-bench/tracker/analysis"
	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/extract"
	"github.com/loredb-bench/tracker/report"
	"github.com/loredb-bench/tracker/schema"
	"github.com/loredb-bench/tracker/storage"
	"github.com/loredb-bench/tracker/types"
)

var validateOpts struct {
	toolOutput bool
}

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate data.js files, or google-benchmark JSON with --tool-output",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{cfg.Benchmark.DataFile}
		}

		invalid := 0
		for _, path := range args {
			problems, err := validateFile(path, validateOpts.toolOutput)
			if err != nil {
				return err
			}
			if len(problems) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
				continue
			}
			invalid++
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d problems\n", path, len(problems))
			for _, p := range problems {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
			}
		}
		if invalid > 0 {
			return fmt.Errorf("%d of %d files are invalid", invalid, len(args))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateOpts.toolOutput, "tool-output", false, "Files are google-benchmark JSON output")
}

func validateFile(path string, toolOutput bool) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if toolOutput {
		return schema.ValidateGoogleBenchmark(raw)
	}

	problems, err := schema.ValidateDataset(raw)
	if err != nil {
		return []string{err.Error()}, nil
	}
	if len(problems) > 0 {
		return problems, nil
	}
	ds, err := dataset.Parse(raw)
	if err != nil {
		return []string{err.Error()}, nil
	}
	return dataset.Check(ds), nil
}

var compareOpts struct {
	suite    string
	base     string
	head     string
	markdown bool
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare a recorded entry with its baseline",
	Long: `Compares the entry of --head (default: the newest entry) with the entries
recorded before it, using benchmark.comparison_mode, or with the entry of
--base when given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		suite := compareOpts.suite
		if suite == "" {
			suite = cfg.Benchmark.Name
		}
		ds, err := dataset.LoadFile(cfg.Benchmark.DataFile)
		if err != nil {
			return err
		}
		entries := ds.Entries[suite]
		if len(entries) == 0 {
			return fmt.Errorf("suite %q has no entries in %s", suite, cfg.Benchmark.DataFile)
		}

		headIdx := len(entries) - 1
		if compareOpts.head != "" {
			if headIdx = lastMatch(entries, compareOpts.head); headIdx < 0 {
				return fmt.Errorf("commit %s not found in suite %q", compareOpts.head, suite)
			}
		}
		head := entries[headIdx]

		opts, err := cfg.Benchmark.DetectorOptions(head.Tool)
		if err != nil {
			return err
		}
		if compareOpts.base != "" {
			opts.Mode = analysis.ModeCommit
			opts.BaseCommit = compareOpts.base
		}

		result, err := analysis.NewDetector(opts, log).Compare(suite, storage.GenerateRunID(suite, &head), entries[:headIdx], &head)
		if err != nil {
			if errors.Is(err, analysis.ErrBaseNotFound) {
				return fmt.Errorf("base %s is not recorded before %s", compareOpts.base, head.Commit.ShortID())
			}
			return err
		}

		if compareOpts.markdown {
			fmt.Fprint(cmd.OutOrStdout(), report.SummaryMarkdown(suite, &head, result))
			return nil
		}
		return report.WriteComparisonTable(cmd.OutOrStdout(), result, useColors())
	},
}

func init() {
	f := compareCmd.Flags()
	f.StringVar(&compareOpts.suite, "suite", "", "Suite name (default benchmark.name)")
	f.StringVar(&compareOpts.base, "base", "", "Base commit id or prefix")
	f.StringVar(&compareOpts.head, "head", "", "Head commit id or prefix (default newest entry)")
	f.BoolVar(&compareOpts.markdown, "markdown", false, "Print a markdown table")
}

// lastMatch returns the index of the newest entry for commit, or -1
func lastMatch(entries []types.Entry, commit string) int {
	for i := len(entries) - 1; i >= 0; i-- {
		if dataset.MatchCommit(entries[i].Commit.ID, commit) {
			return i
		}
	}
	return -1
}

var trendOpts struct {
	suite   string
	benches []string
	window  int
	limit   int
	fromDB  bool
	json    bool
}

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Summarize how benches evolved over the recorded history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		suite := trendOpts.suite
		if suite == "" {
			suite = cfg.Benchmark.Name
		}
		window := trendOpts.window
		if window == 0 {
			window = cfg.Benchmark.WindowSize
		}

		ds, err := dataset.LoadFile(cfg.Benchmark.DataFile)
		if err != nil {
			return err
		}
		benches := trendOpts.benches
		if len(benches) == 0 {
			benches = dataset.BenchNames(ds, suite)
		}
		if len(benches) == 0 {
			return fmt.Errorf("suite %q has no benches", suite)
		}

		var store storage.Store
		if trendOpts.fromDB {
			if store, err = requireStore(ctx); err != nil {
				return err
			}
			defer store.Close()
		}

		biggerIsBetter := extract.BiggerIsBetter(cfg.Benchmark.Tool)
		trends := make([]*analysis.Trend, 0, len(benches))
		for _, bench := range benches {
			var points []types.BenchPoint
			if store != nil {
				points, err = store.QuerySeries(ctx, types.SeriesQuery{Suite: suite, Bench: bench, Limit: trendOpts.limit})
				if err != nil {
					return err
				}
			} else {
				points = dataset.BenchSeries(ds, suite, bench)
				if trendOpts.limit > 0 && len(points) > trendOpts.limit {
					points = points[len(points)-trendOpts.limit:]
				}
			}
			trends = append(trends, analysis.AnalyzeTrend(bench, points, biggerIsBetter, window))
		}

		if trendOpts.json {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(trends)
		}
		return report.WriteTrendTable(cmd.OutOrStdout(), trends, useColors())
	},
}

func init() {
	f := trendCmd.Flags()
	f.StringVar(&trendOpts.suite, "suite", "", "Suite name (default benchmark.name)")
	f.StringSliceVar(&trendOpts.benches, "bench", nil, "Bench names (default all benches of the suite)")
	f.IntVar(&trendOpts.window, "window", 0, "Moving average window (default benchmark.window_size)")
	f.IntVar(&trendOpts.limit, "limit", 0, "Only use the newest N points")
	f.BoolVar(&trendOpts.fromDB, "from-db", false, "Read the series from the database instead of data.js")
	f.BoolVar(&trendOpts.json, "json", false, "Print trends as JSON")
}

var dashboardOpts struct {
	title string
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Write the static index.html that charts data.js",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ds, err := dataset.LoadFile(cfg.Benchmark.DataFile)
		if err != nil {
			return err
		}
		title := dashboardOpts.title
		if title == "" {
			title = cfg.Benchmark.Name
		}
		path, err := report.WriteDashboard(cfg.Benchmark.DataFile, title, ds)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dashboard written to %s\n", path)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOpts.title, "title", "", "Page title (default benchmark.name)")
}
