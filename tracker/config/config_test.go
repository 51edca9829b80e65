package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "Benchmark", cfg.Benchmark.Name)
	assert.Equal(t, "googlecpp", cfg.Benchmark.Tool)
	assert.Equal(t, "dev/bench/data.js", cfg.Benchmark.DataFile)
	assert.Equal(t, "200%", cfg.Benchmark.AlertThreshold)
	assert.Equal(t, "200%", cfg.Benchmark.FailThreshold)
	assert.Equal(t, "sequential", cfg.Benchmark.ComparisonMode)
	assert.Equal(t, BackendNone, cfg.Storage.Backend)
	assert.True(t, cfg.Server.MetricsEnabled())
	require.NoError(t, cfg.Validate())

	retention, err := cfg.Storage.RetentionDuration()
	require.NoError(t, err)
	assert.Equal(t, 90*24*time.Hour, retention)

	read, write, idle := cfg.Server.Timeouts()
	assert.Equal(t, 30*time.Second, read)
	assert.Equal(t, 30*time.Second, write)
	assert.Equal(t, 120*time.Second, idle)
}

func TestParse(t *testing.T) {
	t.Setenv("BENCH_PG_PASSWORD", "hunter2")

	cfg, err := Parse([]byte(`
benchmark:
  name: loredb
  output_file_path: build/benchmark_result.json
  max_items_in_chart: 50
  alert_threshold: "150%"
  fail_on_alert: true
  fail_threshold: "3"
storage:
  backend: postgres
  retention: 2w
  postgresql:
    host: db
    password: ${BENCH_PG_PASSWORD}
server:
  addr: ":9090"
  enable_metrics: false
log:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "loredb", cfg.Benchmark.Name)
	assert.Equal(t, 50, cfg.Benchmark.MaxItemsInChart)
	assert.True(t, cfg.Benchmark.FailOnAlert)

	alert, fail, err := cfg.Benchmark.Thresholds()
	require.NoError(t, err)
	assert.Equal(t, 1.5, alert)
	assert.Equal(t, 3.0, fail)

	opts, err := cfg.Benchmark.DetectorOptions("customBiggerIsBetter")
	require.NoError(t, err)
	assert.Equal(t, 1.5, opts.AlertThreshold)
	assert.True(t, opts.BiggerIsBetter)

	assert.Equal(t, "hunter2", cfg.Storage.PostgreSQL.Password)
	assert.Equal(t, 5432, cfg.Storage.PostgreSQL.Port)
	assert.Equal(t, "host=db port=5432 user=postgres password=hunter2 dbname=loredb_bench sslmode=disable", cfg.Storage.ConnectionString())

	retention, err := cfg.Storage.RetentionDuration()
	require.NoError(t, err)
	assert.Equal(t, 14*24*time.Hour, retention)

	assert.False(t, cfg.Server.MetricsEnabled())
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown tool", yaml: "benchmark:\n  tool: pytest\n"},
		{name: "bad threshold", yaml: "benchmark:\n  alert_threshold: lots\n"},
		{name: "negative max items", yaml: "benchmark:\n  max_items_in_chart: -1\n"},
		{name: "unknown mode", yaml: "benchmark:\n  comparison_mode: vibes\n"},
		{name: "commit mode without base", yaml: "benchmark:\n  comparison_mode: commit\n"},
		{name: "unknown backend", yaml: "storage:\n  backend: mongo\n"},
		{name: "bad retention", yaml: "storage:\n  retention: forever\n"},
		{name: "bad port", yaml: "storage:\n  backend: postgres\n  postgresql:\n    port: 70000\n"},
		{name: "bad timeout", yaml: "server:\n  read_timeout: soon\n"},
		{name: "bad log level", yaml: "log:\n  level: chatty\n"},
		{name: "bad log format", yaml: "log:\n  format: xml\n"},
		{name: "missing env", yaml: "storage:\n  dsn: ${BENCH_REQUIRED_DSN:?dsn missing}\n"},
		{name: "bad yaml", yaml: "benchmark: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	cfg, err := Load("", log)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), log)
	require.NoError(t, err)
	assert.Equal(t, "Benchmark", cfg.Benchmark.Name)

	path := filepath.Join(t.TempDir(), "benchtrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sqlite\n  sqlite_path: /tmp/h.db\n"), 0644))
	cfg, err = Load(path, log)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/h.db", cfg.Storage.ConnectionString())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.WithField("component", "test").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"test"`)

	_, err = LogConfig{Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)
}
