package storage

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	return log
}

func fixtureDataset(t *testing.T) *types.Dataset {
	t.Helper()
	ds, err := dataset.LoadFile(filepath.Join("..", "dataset", "testdata", "data.js"))
	require.NoError(t, err)
	return ds
}

func openSQLite(t *testing.T) Store {
	t.Helper()
	store, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "history.db"), Options{}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestGenerateRunID(t *testing.T) {
	ds := fixtureDataset(t)
	entries := ds.Entries["Benchmark"]

	assert.Equal(t, "20250711-163904-8c3f263", GenerateRunID("Benchmark", &entries[0]))
	assert.Equal(t, "20250711-163904-8c3f263", GenerateRunID("", &entries[0]))
	// same commit recorded twice gets a distinct id
	assert.Equal(t, "20250711-163905-8c3f263", GenerateRunID("Benchmark", &entries[1]))

	assert.Equal(t, "20250711-163904-8c3f263-query-fixture", GenerateRunID("Query Fixture/", &entries[0]))
	assert.Equal(t, "20250711-163904-8c3f263-"+fmt.Sprintf("%x", crc32.ChecksumIEEE([]byte("Συγκριση"))), GenerateRunID("Συγκριση", &entries[0]))
}

func TestSaveRunKeepsSuitesApart(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)

	commit := types.Commit{ID: "8c3f263de688f5e3ed84c03dffed02211e43717a", Message: "m"}
	query := types.Entry{Commit: commit, Date: 1752251944303, Tool: "googlecpp",
		Benches: []types.Bench{{Name: "GetNodeById", Value: 2911.5, Unit: "ns/iter"}}}
	storageEntry := types.Entry{Commit: commit, Date: 1752251944303, Tool: "googlecpp",
		Benches: []types.Bench{{Name: "EdgeCreation", Value: 18.6, Unit: "us/iter"}}}

	queryRun, err := store.SaveRun(ctx, "Query", &query, types.HostInfo{})
	require.NoError(t, err)
	storageRun, err := store.SaveRun(ctx, "Storage", &storageEntry, types.HostInfo{})
	require.NoError(t, err)
	assert.NotEqual(t, queryRun.ID, storageRun.ID)

	for suite, bench := range map[string]string{"Query": "GetNodeById", "Storage": "EdgeCreation"} {
		runs, err := store.ListRuns(ctx, types.RunFilter{Suite: suite})
		require.NoError(t, err)
		require.Len(t, runs, 1, suite)

		points, err := store.QuerySeries(ctx, types.SeriesQuery{Suite: suite, Bench: bench})
		require.NoError(t, err)
		assert.Len(t, points, 1, suite)
	}

	run, err := store.GetRun(ctx, queryRun.ID)
	require.NoError(t, err)
	assert.Equal(t, "Query", run.Suite)
	require.Len(t, run.Benches, 1)
	assert.Equal(t, "GetNodeById", run.Benches[0].Name)

	// suites whose ids collide are refused rather than merged
	_, err = store.SaveRun(ctx, "query", &storageEntry, types.HostInfo{})
	assert.ErrorIs(t, err, ErrRunConflict)
	run, err = store.GetRun(ctx, queryRun.ID)
	require.NoError(t, err)
	assert.Equal(t, "GetNodeById", run.Benches[0].Name)
}

func TestNewHistoricRunAndMetrics(t *testing.T) {
	ds := fixtureDataset(t)
	entry := ds.Entries["Benchmark"][0]

	run := NewHistoricRun("Benchmark", &entry, types.HostInfo{Hostname: "ci"})
	assert.Equal(t, "buddy-computer", run.CommitAuthor)
	assert.Equal(t, 4, run.BenchCount)
	assert.Equal(t, time.UnixMilli(1752251944303).UTC(), run.Timestamp)
	assert.Equal(t, "ci", run.Host.Hostname)

	metrics := Metrics(run.ID, "Benchmark", &entry)
	require.Len(t, metrics, 4)
	assert.Equal(t, int64(232257), metrics[0].Iterations)
	assert.Equal(t, 1, metrics[0].Threads)
	assert.Equal(t, "", metrics[2].Unit)
}

func TestDialect(t *testing.T) {
	assert.Equal(t, "$1, $2, $3", Postgres.Placeholders(1, 3))
	assert.Equal(t, "?, ?", SQLite.Placeholders(4, 2))

	w := &whereBuilder{d: Postgres}
	w.add("suite = %s", "Benchmark")
	w.add("tool = %s", "googlecpp")
	assert.Equal(t, " WHERE suite = $1 AND tool = $2", w.String())
	assert.Len(t, w.args, 2)

	_, err := DialectFor("mysql")
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openSQLite(t))
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	db := store.(*sqlStore).DB()
	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, len(Migrations(SQLite)), version)

	applied, err := RunMigrations(ctx, db, SQLite, quietLogger())
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestOpenUnsupportedBackend(t *testing.T) {
	_, err := Open(context.Background(), "mongo", "", Options{}, quietLogger())
	assert.Error(t, err)
}

// exerciseStore runs the same checks against every backend
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()
	ds := fixtureDataset(t)
	entries := ds.Entries["Benchmark"]
	host := types.HostInfo{Hostname: "runner", OS: "linux", CPUModel: "EPYC", LogicalCPUs: 4, TotalMemory: 16 << 30}

	first, err := store.SaveRun(ctx, "Benchmark", &entries[0], host)
	require.NoError(t, err)
	second, err := store.SaveRun(ctx, "Benchmark", &entries[1], types.HostInfo{})
	require.NoError(t, err)

	other := types.Entry{
		Commit:  types.Commit{ID: "abcdef0123456789", Message: "other"},
		Date:    entries[1].Date + 60_000,
		Tool:    "go",
		Benches: []types.Bench{{Name: "BenchmarkX", Value: 10, Unit: "ns/op"}},
	}
	_, err = store.SaveRun(ctx, "Go", &other, types.HostInfo{})
	require.NoError(t, err)

	// re-saving replaces rather than duplicates
	_, err = store.SaveRun(ctx, "Benchmark", &entries[0], host)
	require.NoError(t, err)

	t.Run("get run", func(t *testing.T) {
		run, err := store.GetRun(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "Benchmark", run.Suite)
		assert.Equal(t, entries[0].Commit.ID, run.CommitID)
		assert.Equal(t, first.Timestamp, run.Timestamp)
		assert.Equal(t, host, run.Host)
		require.Len(t, run.Benches, 4)

		byName := map[string]types.Bench{}
		for _, b := range run.Benches {
			byName[b.Name] = b
		}
		assert.Equal(t, 0.0, byName["QueryBenchmarkFixture/GetEdgeById"].Value)
		assert.Equal(t, "", byName["QueryBenchmarkFixture/GetDocumentBacklinks"].Unit)
		assert.Equal(t, entries[0].Benches[0].Extra, byName["QueryBenchmarkFixture/GetNodeById"].Extra)

		_, err = store.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list runs", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, types.RunFilter{})
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "Go", runs[0].Suite)

		runs, err = store.ListRuns(ctx, types.RunFilter{Suite: "Benchmark"})
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, second.ID, runs[0].ID)

		runs, err = store.ListRuns(ctx, types.RunFilter{CommitID: "abcdef0"})
		require.NoError(t, err)
		require.Len(t, runs, 1)

		runs, err = store.ListRuns(ctx, types.RunFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, second.ID, runs[0].ID)

		runs, err = store.ListRuns(ctx, types.RunFilter{Since: second.Timestamp, Tool: "googlecpp"})
		require.NoError(t, err)
		require.Len(t, runs, 1)

		suites, err := store.ListSuites(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Benchmark", "Go"}, suites)
	})

	t.Run("series", func(t *testing.T) {
		points, err := store.QuerySeries(ctx, types.SeriesQuery{Suite: "Benchmark", Bench: "QueryBenchmarkFixture/GetNodeById"})
		require.NoError(t, err)
		require.Len(t, points, 2)
		assert.Equal(t, 2911.5398846966286, points[0].Value)
		assert.Equal(t, 2950.1, points[1].Value)
		assert.Equal(t, second.ID, points[1].RunID)

		points, err = store.QuerySeries(ctx, types.SeriesQuery{Suite: "Benchmark", Bench: "QueryBenchmarkFixture/GetNodeById", Limit: 1})
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, 2950.1, points[0].Value)

		metrics, err := store.QueryMetrics(ctx, types.RunFilter{Suite: "Benchmark"})
		require.NoError(t, err)
		assert.Len(t, metrics, 7)
	})

	t.Run("alerts", func(t *testing.T) {
		alert := &types.Alert{
			ID:             "5f0c7a0e-9a53-4bd8-8d1e-7f6a3f0a7b11",
			RunID:          second.ID,
			Suite:          "Benchmark",
			Bench:          "EdgeCreation/64",
			Unit:           "ns/iter",
			CommitID:       entries[1].Commit.ID,
			BaseCommitID:   entries[0].Commit.ID,
			BaseValue:      1000,
			CurrentValue:   2500,
			Ratio:          2.5,
			PercentChange:  150,
			Severity:       "critical",
			ComparisonMode: "sequential",
			DetectedAt:     time.Date(2025, 7, 11, 16, 40, 0, 0, time.UTC),
		}
		require.NoError(t, store.SaveAlerts(ctx, []*types.Alert{alert}))
		require.NoError(t, store.SaveAlerts(ctx, nil))

		alerts, err := store.GetAlerts(ctx, second.ID)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, alert.DetectedAt, alerts[0].DetectedAt)
		assert.Nil(t, alerts[0].AcknowledgedAt)

		require.NoError(t, store.AcknowledgeAlert(ctx, alert.ID, "octocat"))
		alerts, err = store.GetAlerts(ctx, second.ID)
		require.NoError(t, err)
		require.NotNil(t, alerts[0].AcknowledgedAt)
		assert.Equal(t, "octocat", alerts[0].AcknowledgedBy)

		assert.ErrorIs(t, store.AcknowledgeAlert(ctx, "missing", "x"), ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteRun(ctx, second.ID))
		_, err := store.GetRun(ctx, second.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.DeleteRun(ctx, second.ID), ErrNotFound)

		alerts, err := store.GetAlerts(ctx, second.ID)
		require.NoError(t, err)
		assert.Empty(t, alerts)

		deleted, err := store.DeleteOldRuns(ctx, time.UnixMilli(other.Date))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		runs, err := store.ListRuns(ctx, types.RunFilter{})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "Go", runs[0].Suite)
	})

	require.NoError(t, store.Ping(ctx))
}
