// Package report renders comparisons, alerts and trends for humans.
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/loredb-bench/tracker/analysis"
	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

type painter func(...any) string

func painters(useColors bool) (red, green, yellow painter) {
	if !useColors {
		return fmt.Sprint, fmt.Sprint, fmt.Sprint
	}
	return color.New(color.FgRed).SprintFunc(),
		color.New(color.FgGreen).SprintFunc(),
		color.New(color.FgYellow).SprintFunc()
}

// severityColor highlights alert severities
func severityColor(severity string, useColors bool) string {
	if !useColors {
		return severity
	}
	switch severity {
	case analysis.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(severity)
	case analysis.SeverityMajor:
		return color.New(color.FgMagenta, color.Bold).Sprint(severity)
	case analysis.SeverityMinor:
		return color.New(color.FgYellow).Sprint(severity)
	}
	return color.New(color.FgCyan).Sprint(severity)
}

// FormatValue prints a bench value with its unit
func FormatValue(v float64, unit string) string {
	s := dataset.FormatNumber(math.Round(v*1000) / 1000)
	if unit == "" {
		return s
	}
	return s + " " + unit
}

func formatDelta(pct float64, red, green, yellow painter) string {
	switch {
	case pct > 0:
		return red(fmt.Sprintf("+%.2f%% ▲", pct))
	case pct < 0:
		return green(fmt.Sprintf("%.2f%% ▼", pct))
	}
	return yellow("0.00%")
}

// WriteComparisonTable prints one row per bench compared with the baseline
func WriteComparisonTable(w io.Writer, result *analysis.Result, useColors bool) error {
	if result == nil || result.Baseline == nil {
		_, err := fmt.Fprintln(w, "No baseline to compare with")
		return err
	}

	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Bench", "Base (" + result.Baseline.Label + ")", "Current", "Ratio", "Change", "Status"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	red, green, yellow := painters(useColors)
	var data [][]string
	for _, c := range result.Comparisons {
		status := green("ok")
		if c.Alert {
			status = red("ALERT")
		}
		data = append(data, []string{
			c.Bench,
			FormatValue(c.BaseValue, c.Unit),
			FormatValue(c.CurrentValue, c.Unit),
			fmt.Sprintf("%.3f", c.Ratio),
			formatDelta(c.PercentChange, red, green, yellow),
			status,
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Compared %d benches, %d alerts\n", len(result.Comparisons), len(result.Alerts))
	return err
}

// WriteAlertTable prints stored or freshly detected alerts
func WriteAlertTable(w io.Writer, alerts []*types.Alert, useColors bool) error {
	if len(alerts) == 0 {
		_, err := fmt.Fprintln(w, "No performance alerts")
		return err
	}

	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Suite", "Bench", "Commit", "Base", "Current", "Ratio", "Severity", "Ack"})

	var data [][]string
	for _, a := range alerts {
		ack := ""
		if a.AcknowledgedAt != nil {
			ack = a.AcknowledgedBy
			if ack == "" {
				ack = "yes"
			}
		}
		data = append(data, []string{
			a.Suite,
			a.Bench,
			types.Commit{ID: a.CommitID}.ShortID(),
			FormatValue(a.BaseValue, a.Unit),
			FormatValue(a.CurrentValue, a.Unit),
			fmt.Sprintf("%.3f", a.Ratio),
			severityColor(a.Severity, useColors),
			ack,
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// WriteTrendTable prints a summary line per bench trend
func WriteTrendTable(w io.Writer, trends []*analysis.Trend, useColors bool) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Bench", "Points", "Mean", "StdDev", "Min", "Max", "Change", "Direction", "Outliers"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	red, green, yellow := painters(useColors)
	var data [][]string
	for _, t := range trends {
		direction := yellow(t.Direction)
		switch t.Direction {
		case analysis.TrendDegrading:
			direction = red(t.Direction)
		case analysis.TrendImproving:
			direction = green(t.Direction)
		}
		data = append(data, []string{
			t.Bench,
			fmt.Sprint(t.Count),
			FormatValue(t.Mean, t.Unit),
			FormatValue(t.StdDev, ""),
			FormatValue(t.Min, ""),
			FormatValue(t.Max, ""),
			fmt.Sprintf("%+.2f%%", t.ChangePercent),
			direction,
			fmt.Sprint(len(t.Outliers)),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
