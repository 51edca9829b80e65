package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loredb-bench/tracker/analysis"
	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

func entry(id string, values map[string]float64) types.Entry {
	e := types.Entry{
		Commit: types.Commit{ID: id, Message: "m", Timestamp: "2025-07-10T16:55:21Z", URL: "u"},
		Date:   time.Now().UnixMilli(),
		Tool:   "googlecpp",
	}
	for _, name := range []string{"GetNodeById", "EdgeCreation/64"} {
		if v, ok := values[name]; ok {
			e.Benches = append(e.Benches, types.Bench{Name: name, Value: v, Unit: "ns/iter"})
		}
	}
	return e
}

func regression(t *testing.T) (*types.Entry, *analysis.Result) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	prev := entry("1111111aaaaaaa", map[string]float64{"GetNodeById": 100, "EdgeCreation/64": 200})
	cur := entry("2222222bbbbbbb", map[string]float64{"GetNodeById": 350, "EdgeCreation/64": 180})

	d := analysis.NewDetector(analysis.Options{AlertThreshold: 2}, log)
	result, err := d.Compare("Benchmark", "run", []types.Entry{prev}, &cur)
	require.NoError(t, err)
	require.Len(t, result.Alerts, 1)
	return &cur, result
}

func TestAlertComment(t *testing.T) {
	cur, result := regression(t)

	body := AlertComment("Benchmark", cur, result, 2)
	assert.Contains(t, body, "**Performance Alert**")
	assert.Contains(t, body, "threshold `200%`")
	assert.Contains(t, body, "| Benchmark suite | Current: 2222222bbbbbbb | Previous: 1111111aaaaaaa | Ratio |")
	assert.Contains(t, body, "| `GetNodeById` | `350 ns/iter` | `100 ns/iter` | `3.5` :x: |")
	assert.NotContains(t, body, "EdgeCreation/64")

	assert.Empty(t, AlertComment("Benchmark", cur, &analysis.Result{}, 2))
}

func TestSummaryMarkdown(t *testing.T) {
	cur, result := regression(t)

	md := SummaryMarkdown("Benchmark", cur, result)
	assert.True(t, strings.HasPrefix(md, "# Benchmark\n"))
	assert.Contains(t, md, "`EdgeCreation/64`")
	assert.Contains(t, md, "`GetNodeById`")

	assert.Contains(t, SummaryMarkdown("Benchmark", cur, nil), "No previous benchmark result")
}

func TestWriteComparisonTable(t *testing.T) {
	_, result := regression(t)

	var buf bytes.Buffer
	require.NoError(t, WriteComparisonTable(&buf, result, false))
	out := buf.String()
	assert.Contains(t, out, "GetNodeById")
	assert.Contains(t, out, "ALERT")
	assert.Contains(t, out, "+250.00% ▲")
	assert.Contains(t, out, "-10.00% ▼")
	assert.Contains(t, out, "Compared 2 benches, 1 alerts")

	buf.Reset()
	require.NoError(t, WriteComparisonTable(&buf, &analysis.Result{}, false))
	assert.Equal(t, "No baseline to compare with\n", buf.String())
}

func TestWriteAlertTable(t *testing.T) {
	_, result := regression(t)
	now := time.Now()
	result.Alerts[0].AcknowledgedAt = &now
	result.Alerts[0].AcknowledgedBy = "octocat"

	var buf bytes.Buffer
	require.NoError(t, WriteAlertTable(&buf, result.Alerts, false))
	out := buf.String()
	assert.Contains(t, out, "2222222")
	assert.Contains(t, out, analysis.SeverityCritical)
	assert.Contains(t, out, "octocat")

	buf.Reset()
	require.NoError(t, WriteAlertTable(&buf, nil, true))
	assert.Equal(t, "No performance alerts\n", buf.String())
}

func TestWriteTrendTable(t *testing.T) {
	points := []types.BenchPoint{
		{CommitID: "a", Value: 100, Unit: "ns/iter"},
		{CommitID: "b", Value: 120, Unit: "ns/iter"},
		{CommitID: "c", Value: 140, Unit: "ns/iter"},
	}
	trend := analysis.AnalyzeTrend("GetNodeById", points, false, 2)

	var buf bytes.Buffer
	require.NoError(t, WriteTrendTable(&buf, []*analysis.Trend{trend}, false))
	assert.Contains(t, buf.String(), "GetNodeById")
	assert.Contains(t, buf.String(), analysis.TrendDegrading)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "2911.54 ns/iter", FormatValue(2911.5398846966286, "ns/iter"))
	assert.Equal(t, "0.5", FormatValue(0.5, ""))
}

func TestWriteDashboard(t *testing.T) {
	ds, err := dataset.LoadFile(filepath.Join("..", "dataset", "testdata", "data.js"))
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := WriteDashboard(filepath.Join(dir, "data.js"), "loredb <benchmarks>", ds)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "index.html"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	page := string(raw)
	assert.Contains(t, page, "<title>loredb &lt;benchmarks&gt;</title>")
	assert.Contains(t, page, `<script src="data.js"></script>`)
	assert.Contains(t, page, `data-suite="Benchmark"`)
	assert.Contains(t, page, `data-bench="QueryBenchmarkFixture/GetNodeById"`)
	assert.Contains(t, page, "https://github.com/buddy-computer/loredb")
}

func TestRenderDashboardEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderDashboard(&buf, NewDashboardData("Empty", "data.js", dataset.New(""))))
	assert.Contains(t, buf.String(), "No benchmark data recorded yet.")
}
