package report

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

// DashboardTemplate is the static page that charts window.BENCHMARK_DATA.
// The data file is loaded with a script tag so the page works from file://.
const DashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
        }
        h1, h2 { color: #2c3e50; }
        .meta { color: #666; font-size: 14px; }
        .suite { margin-bottom: 40px; }
        .chart { height: 320px; margin-bottom: 24px; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <p class="meta">
        {{if .RepoURL}}Repository: <a href="{{.RepoURL}}">{{.RepoURL}}</a> &middot; {{end}}
        Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}
    </p>
    {{range .Suites}}
    <section class="suite" data-suite="{{.Name}}">
        <h2>{{.Name}}</h2>
        <p class="meta">{{.Entries}} entries, {{len .Benches}} benches</p>
        {{range .Benches}}<div class="chart"><canvas data-bench="{{.}}"></canvas></div>
        {{end}}
    </section>
    {{else}}
    <p>No benchmark data recorded yet.</p>
    {{end}}
    <script src="https://cdn.jsdelivr.net/npm/chart.js@4"></script>
    <script src="{{.DataFile}}"></script>
    <script>
        (function () {
            var data = window.BENCHMARK_DATA;
            if (!data) { return; }
            document.querySelectorAll("section.suite").forEach(function (section) {
                var entries = data.entries[section.dataset.suite] || [];
                section.querySelectorAll("canvas").forEach(function (canvas) {
                    var name = canvas.dataset.bench;
                    var points = entries.map(function (e) {
                        var b = e.benches.find(function (x) { return x.name === name; });
                        return b ? { x: e.commit.id.slice(0, 7), y: b.value, unit: b.unit } : null;
                    }).filter(Boolean);
                    var unit = points.length ? points[points.length - 1].unit || "" : "";
                    new Chart(canvas, {
                        type: "line",
                        data: { labels: points.map(function (p) { return p.x; }),
                                datasets: [{ label: name, data: points.map(function (p) { return p.y; }) }] },
                        options: { maintainAspectRatio: false,
                                   scales: { y: { title: { display: true, text: unit } } } }
                    });
                });
            });
        })();
    </script>
</body>
</html>
`

var dashboardTmpl = template.Must(template.New("dashboard").Parse(DashboardTemplate))

// DashboardSuite is one suite section of the page
type DashboardSuite struct {
	Name    string
	Entries int
	Benches []string
}

// DashboardData is the template input
type DashboardData struct {
	Title       string
	RepoURL     string
	DataFile    string
	GeneratedAt time.Time
	Suites      []DashboardSuite
}

// NewDashboardData describes ds for the page. dataFile is the script path relative to the page.
func NewDashboardData(title, dataFile string, ds *types.Dataset) DashboardData {
	data := DashboardData{
		Title:       title,
		RepoURL:     ds.RepoURL,
		DataFile:    dataFile,
		GeneratedAt: time.Now().UTC(),
	}
	for _, suite := range dataset.Suites(ds) {
		data.Suites = append(data.Suites, DashboardSuite{
			Name:    suite,
			Entries: len(ds.Entries[suite]),
			Benches: dataset.BenchNames(ds, suite),
		})
	}
	return data
}

// RenderDashboard executes the page template
func RenderDashboard(w io.Writer, data DashboardData) error {
	return dashboardTmpl.Execute(w, data)
}

// WriteDashboard writes index.html next to the data file and returns its path
func WriteDashboard(dataFile, title string, ds *types.Dataset) (string, error) {
	path := filepath.Join(filepath.Dir(dataFile), "index.html")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create dashboard: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := RenderDashboard(file, NewDashboardData(title, filepath.Base(dataFile), ds)); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return path, file.Close()
}
