package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

func TestHistoricStorageFileOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dev", "bench", "data.js")
	h := NewHistoricStorage(path, 2, nil, types.HostInfo{}, quietLogger())

	ds := fixtureDataset(t)
	entries := ds.Entries["Benchmark"]

	saved, err := h.SaveEntry(ctx, "Benchmark", entries[0], "https://github.com/buddy-computer/loredb", nil)
	require.NoError(t, err)
	assert.Empty(t, saved.History)
	assert.Equal(t, "20250711-163904-8c3f263", saved.Run.ID)

	saved, err = h.SaveEntry(ctx, "Benchmark", entries[1], "", nil)
	require.NoError(t, err)
	require.Len(t, saved.History, 1)

	third := entries[1]
	third.Date += 1000
	saved, err = h.SaveEntry(ctx, "Benchmark", third, "", nil)
	require.NoError(t, err)
	assert.Len(t, saved.History, 2)

	loaded, err := h.Dataset()
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/buddy-computer/loredb", loaded.RepoURL)
	// trimmed to max items
	assert.Len(t, loaded.Entries["Benchmark"], 2)
	assert.Equal(t, third.Date, loaded.LastUpdate)

	assert.NoError(t, h.SaveAlerts(ctx, []*types.Alert{{ID: "x"}}))
	pruned, err := h.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, pruned)
	_, err = h.Import(ctx, loaded)
	assert.Error(t, err)
	assert.NoError(t, h.Close())
}

func TestHistoricStorageWithDatabase(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	path := filepath.Join(t.TempDir(), "data.js")
	host := types.HostInfo{Hostname: "runner"}
	h := NewHistoricStorage(path, 0, store, host, quietLogger())
	assert.Equal(t, path, h.DataFile())
	assert.Equal(t, host, h.Host())

	ds := fixtureDataset(t)
	saved, err := h.SaveEntry(ctx, "Benchmark", ds.Entries["Benchmark"][0], ds.RepoURL, nil)
	require.NoError(t, err)

	run, err := store.GetRun(ctx, saved.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, "runner", run.Host.Hostname)

	count, err := h.Import(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	runs, err := store.ListRuns(ctx, types.RunFilter{Suite: "Benchmark"})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	// every fixture run is far older than a day
	pruned, err := h.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	_, err = h.Prune(ctx, 0)
	assert.Error(t, err)

	onDisk, err := dataset.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, onDisk.Entries["Benchmark"], 1)
}

func TestHistoricStorageWritesNothingOnFailure(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	path := filepath.Join(t.TempDir(), "data.js")
	h := NewHistoricStorage(path, 0, store, types.HostInfo{}, quietLogger())
	entry := fixtureDataset(t).Entries["Benchmark"][0]

	refused := errors.New("refused")
	_, err := h.SaveEntry(ctx, "Benchmark", entry, "", func(history []types.Entry) error {
		assert.Empty(t, history)
		return refused
	})
	assert.ErrorIs(t, err, refused)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	_, err = h.SaveEntry(ctx, "Query", entry, "", nil)
	require.NoError(t, err)

	// same run id, different suite: the database refuses and data.js keeps one entry
	_, err = h.SaveEntry(ctx, "query", entry, "", nil)
	assert.ErrorIs(t, err, ErrRunConflict)

	onDisk, err := dataset.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, onDisk.Entries["Query"], 1)
	assert.NotContains(t, onDisk.Entries, "query")

	runs, err := store.ListRuns(ctx, types.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
