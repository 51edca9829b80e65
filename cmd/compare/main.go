// Command compare diffs the newest entries of one data.js against the
// history recorded in another, e.g. a pull request build against gh-pages.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/loredb-bench/tracker/analysis"
	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/extract"
	"github.com/loredb-bench/tracker/report"
	"github.com/loredb-bench/tracker/storage"
	"github.com/loredb-bench/tracker/types"
)

type diffOptions struct {
	basePath  string
	headPath  string
	suites    []string
	threshold string
	mode      string
	window    int
	markdown  bool
	fail      bool
	noColor   bool
}

func newCommand(log logrus.FieldLogger) *cobra.Command {
	opts := &diffOptions{}
	cmd := &cobra.Command{
		Use:           "compare --base gh-pages/dev/bench/data.js --head dev/bench/data.js",
		Short:         "Compare the newest entries of one data.js with another's history",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			base, err := dataset.LoadFile(opts.basePath)
			if err != nil {
				return err
			}
			head, err := dataset.LoadFile(opts.headPath)
			if err != nil {
				return err
			}

			alerts, err := diff(cmd.OutOrStdout(), base, head, opts, log)
			if err != nil {
				return err
			}
			if opts.fail && alerts > 0 {
				return fmt.Errorf("%d benches regressed beyond %s", alerts, opts.threshold)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.basePath, "base", "", "data.js holding the baseline history")
	f.StringVar(&opts.headPath, "head", "", "data.js holding the entries to check")
	f.StringSliceVar(&opts.suites, "suite", nil, "Suites to compare (default every suite of --head)")
	f.StringVar(&opts.threshold, "threshold", "200%", "Alert threshold")
	f.StringVar(&opts.mode, "mode", string(analysis.ModeSequential), "sequential or rolling_average")
	f.IntVar(&opts.window, "window", 5, "Rolling average window")
	f.BoolVar(&opts.markdown, "markdown", false, "Print markdown instead of tables")
	f.BoolVar(&opts.fail, "fail", false, "Exit non-zero when a bench regressed")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored tables")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("head")
	return cmd
}

// diff writes one comparison per suite and returns the number of alerts
func diff(w io.Writer, base, head *types.Dataset, opts *diffOptions, log logrus.FieldLogger) (int, error) {
	threshold, err := analysis.ParseThreshold(opts.threshold)
	if err != nil {
		return 0, err
	}
	mode := analysis.ComparisonMode(opts.mode)
	if mode != analysis.ModeSequential && mode != analysis.ModeRollingAverage {
		return 0, fmt.Errorf("unsupported mode %q", opts.mode)
	}

	suites := opts.suites
	if len(suites) == 0 {
		suites = dataset.Suites(head)
	}

	alerts := 0
	for _, suite := range suites {
		current, ok := dataset.LatestEntry(head, suite)
		if !ok {
			return alerts, fmt.Errorf("suite %q has no entries in the head data", suite)
		}

		detector := analysis.NewDetector(analysis.Options{
			AlertThreshold: threshold,
			Mode:           mode,
			WindowSize:     opts.window,
			BiggerIsBetter: extract.BiggerIsBetter(current.Tool),
		}, log)
		result, err := detector.Compare(suite, storage.GenerateRunID(suite, current), base.Entries[suite], current)
		if err != nil {
			return alerts, fmt.Errorf("suite %s: %w", suite, err)
		}
		alerts += len(result.Alerts)

		if opts.markdown {
			fmt.Fprint(w, report.SummaryMarkdown(suite, current, result))
			continue
		}
		fmt.Fprintf(w, "%s @ %s\n", suite, current.Commit.ShortID())
		if err := report.WriteComparisonTable(w, result, !color.NoColor); err != nil {
			return alerts, err
		}
	}
	return alerts, nil
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if err := newCommand(log).Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
