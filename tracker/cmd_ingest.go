package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/loredb-bench/tracker/commit"
	"github.com/loredb-bench/tracker/ingest"
	"github.com/loredb-bench/tracker/report"
)

var ingestOpts struct {
	file        string
	suite       string
	tool        string
	eventPath   string
	repoPath    string
	summaryPath string
	commentPath string
	dashboard   bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Append benchmark tool output to data.js and check for regressions",
	Long: `Reads the tool output (benchmark.output_file_path by default, "-" for stdin),
appends it as a new entry for the current commit and compares it with the
previous entries. Exits non-zero when fail_on_alert is set and a bench
regressed beyond fail_threshold.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVarP(&ingestOpts.file, "file", "f", "", "Tool output file (default benchmark.output_file_path)")
	f.StringVar(&ingestOpts.suite, "suite", "", "Suite name (default benchmark.name)")
	f.StringVar(&ingestOpts.tool, "tool", "", "Tool that produced the output (default benchmark.tool)")
	f.StringVar(&ingestOpts.eventPath, "event-path", os.Getenv("GITHUB_EVENT_PATH"), "GitHub event payload describing the commit")
	f.StringVar(&ingestOpts.repoPath, "repo", ".", "Git checkout used when no event payload is available")
	f.StringVar(&ingestOpts.summaryPath, "summary", os.Getenv("GITHUB_STEP_SUMMARY"), "Append a markdown comparison to this file")
	f.StringVar(&ingestOpts.commentPath, "comment", "", "Write the alert comment body to this file")
	f.BoolVar(&ingestOpts.dashboard, "dashboard", false, "Regenerate index.html next to data.js")
}

func openOutput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open benchmark output: %w", err)
	}
	return f, nil
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	path := ingestOpts.file
	if path == "" {
		path = cfg.Benchmark.OutputFilePath
	}
	input, err := openOutput(path)
	if err != nil {
		return err
	}
	defer input.Close()

	resolver := &commit.Resolver{
		EventPath: ingestOpts.eventPath,
		RepoPath:  ingestOpts.repoPath,
		RepoURL:   cfg.Benchmark.RepoURL,
		Git:       &commit.LocalGitClient{},
		Log:       log,
	}
	c, repoURL, err := resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("failed to determine the current commit: %w", err)
	}

	history, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer history.Close()

	res, err := ingest.New(history, cfg.Benchmark, nil, nil, log).Ingest(ctx, ingest.Request{
		Suite:   ingestOpts.suite,
		Tool:    ingestOpts.tool,
		Output:  input,
		Commit:  *c,
		RepoURL: repoURL,
	})
	if err != nil {
		return err
	}
	suite := res.Run.Suite

	fmt.Fprintf(out, "Recorded %d benches for %s in %s (run %s)\n", len(res.Entry.Benches), c.ShortID(), cfg.Benchmark.DataFile, res.Run.ID)
	if err := report.WriteComparisonTable(out, res.Analysis, useColors()); err != nil {
		return err
	}

	if len(res.Analysis.Alerts) > 0 {
		alertThreshold, _, err := cfg.Benchmark.Thresholds()
		if err != nil {
			return err
		}
		body := report.AlertComment(suite, &res.Entry, res.Analysis, alertThreshold)
		fmt.Fprintln(out)
		fmt.Fprint(out, body)
		if ingestOpts.commentPath != "" {
			if err := os.WriteFile(ingestOpts.commentPath, []byte(body), 0644); err != nil {
				return fmt.Errorf("failed to write alert comment: %w", err)
			}
		}
	}

	if ingestOpts.summaryPath != "" {
		if err := appendFile(ingestOpts.summaryPath, report.SummaryMarkdown(suite, &res.Entry, res.Analysis)); err != nil {
			return fmt.Errorf("failed to write job summary: %w", err)
		}
	}

	if ingestOpts.dashboard {
		page, err := report.WriteDashboard(cfg.Benchmark.DataFile, cfg.Benchmark.Name, res.Dataset)
		if err != nil {
			return err
		}
		log.WithField("path", page).Info("Dashboard written")
	}

	if res.Fail {
		return errRegression
	}
	return nil
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
