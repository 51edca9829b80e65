package report

import (
	"fmt"
	"strings"

	"github.com/loredb-bench/tracker/analysis"
	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

const commentFooter = "This comment was automatically generated using [github-action-benchmark](https://github.com/marketplace/actions/continuous-benchmark) compatible output."

// AlertComment builds the markdown body posted when a commit regresses.
// It returns "" when result has no alerts.
func AlertComment(suite string, current *types.Entry, result *analysis.Result, threshold float64) string {
	if result == nil || len(result.Alerts) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("# :warning: **Performance Alert** :warning:\n\n")
	fmt.Fprintf(&sb, "Possible performance regression was detected for benchmark **'%s'**.\n", suite)
	fmt.Fprintf(&sb, "Benchmark result of this commit is worse than the previous benchmark result exceeding threshold `%s`.\n\n",
		analysis.FormatRatio(threshold))

	writeComparisonRows(&sb, current, result, true)

	sb.WriteString("\n")
	sb.WriteString(commentFooter)
	sb.WriteString("\n")
	return sb.String()
}

// SummaryMarkdown renders every comparison, for CI job summaries
func SummaryMarkdown(suite string, current *types.Entry, result *analysis.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", suite)
	if result == nil || result.Baseline == nil {
		sb.WriteString("No previous benchmark result to compare with.\n")
		return sb.String()
	}
	writeComparisonRows(&sb, current, result, false)
	return sb.String()
}

func writeComparisonRows(sb *strings.Builder, current *types.Entry, result *analysis.Result, alertsOnly bool) {
	fmt.Fprintf(sb, "| Benchmark suite | Current: %s | Previous: %s | Ratio |\n", current.Commit.ID, result.Baseline.CommitID)
	sb.WriteString("|-|-|-|-|\n")

	for _, c := range result.Comparisons {
		if alertsOnly && !c.Alert {
			continue
		}
		ratio := fmt.Sprintf("`%s`", dataset.FormatNumber(c.Ratio))
		if c.Alert {
			ratio += " :x:"
		}
		fmt.Fprintf(sb, "| `%s` | %s | %s | %s |\n",
			c.Bench, benchValue(current.Bench(c.Bench), c.CurrentValue, c.Unit), benchValue(nil, c.BaseValue, c.Unit), ratio)
	}
}

func benchValue(b *types.Bench, value float64, unit string) string {
	s := "`" + dataset.FormatNumber(value)
	if unit != "" {
		s += " " + unit
	}
	if b != nil && b.Range != "" {
		s += " (" + b.Range + ")"
	}
	return s + "`"
}
