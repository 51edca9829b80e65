package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loredb-bench/tracker/types"
)

func loadFixture(t *testing.T) *types.Dataset {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "data.js"))
	require.NoError(t, err)
	ds, err := Parse(data)
	require.NoError(t, err)
	return ds
}

func testEntry(id string, date int64, benches ...types.Bench) types.Entry {
	return types.Entry{
		Commit: types.Commit{
			ID:      id,
			Message: "commit " + id,
			URL:     "https://github.com/buddy-computer/loredb/commit/" + id,
		},
		Date:    date,
		Tool:    "googlecpp",
		Benches: benches,
	}
}

// testdata/data.js is synthetic: it repeats one commit and drops the unit of one bench.
func TestParseFixture(t *testing.T) {
	ds := loadFixture(t)

	assert.Equal(t, int64(1752251945150), ds.LastUpdate)
	assert.Equal(t, "https://github.com/buddy-computer/loredb", ds.RepoURL)
	require.Len(t, ds.Entries["Benchmark"], 2)

	first := ds.Entries["Benchmark"][0]
	assert.Equal(t, "8c3f263de688f5e3ed84c03dffed02211e43717a", first.Commit.ID)
	assert.Equal(t, "googlecpp", first.Tool)
	assert.Equal(t, "buddy-computer", first.Commit.Author.Username)
	require.Len(t, first.Benches, 4)

	// value 0 and a missing unit are both legal
	assert.Equal(t, 0.0, first.Benches[1].Value)
	assert.Equal(t, "", first.Benches[2].Unit)
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain json", input: `{"lastUpdate":1,"repoUrl":"r","entries":{}}`},
		{name: "trailing semicolon", input: "window.BENCHMARK_DATA = {\"lastUpdate\":1,\"repoUrl\":\"r\",\"entries\":{}};\n"},
		{name: "no spaces", input: `window.BENCHMARK_DATA={"lastUpdate":1,"repoUrl":"r","entries":{}}`},
		{name: "empty", input: "   ", wantErr: true},
		{name: "assignment only", input: "window.BENCHMARK_DATA = ", wantErr: true},
		{name: "bad json", input: "window.BENCHMARK_DATA = {", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Parse([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), ds.LastUpdate)
			assert.NotNil(t, ds.Entries)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	ds := loadFixture(t)

	out, err := Encode(ds)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), types.BenchmarkDataPrefix+"{"))
	assert.True(t, strings.HasSuffix(string(out), "}\n"))
	// missing unit stays missing
	assert.Equal(t, 6, strings.Count(string(out), `"unit"`))

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, ds, again)
}

func TestAddEntry(t *testing.T) {
	ds := New("https://github.com/buddy-computer/loredb")

	prev := AddEntry(ds, "Benchmark", testEntry("a", 100), 0)
	assert.Nil(t, prev)

	prev = AddEntry(ds, "Benchmark", testEntry("b", 200), 0)
	require.NotNil(t, prev)
	assert.Equal(t, "a", prev.Commit.ID)
	assert.Equal(t, int64(200), ds.LastUpdate)

	// a duplicate commit is appended, not merged
	AddEntry(ds, "Benchmark", testEntry("b", 300), 0)
	assert.Len(t, ds.Entries["Benchmark"], 3)
}

func TestAddEntryTrimsToMaxItems(t *testing.T) {
	ds := New("")
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		AddEntry(ds, "Benchmark", testEntry(id, int64(i)), 3)
	}

	entries := ds.Entries["Benchmark"]
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Commit.ID)
	assert.Equal(t, "e", entries[2].Commit.ID)
}

func TestFindAndSeries(t *testing.T) {
	ds := loadFixture(t)

	e, ok := FindEntry(ds, "Benchmark", "8c3f263")
	require.True(t, ok)
	// last match wins
	assert.Equal(t, int64(1752251945143), e.Date)

	_, ok = FindEntry(ds, "Benchmark", "deadbeef")
	assert.False(t, ok)
	_, ok = FindEntry(ds, "Missing", "8c3f263")
	assert.False(t, ok)

	series := BenchSeries(ds, "Benchmark", "QueryBenchmarkFixture/GetNodeById")
	require.Len(t, series, 2)
	assert.Equal(t, 2911.5398846966286, series[0].Value)
	assert.Equal(t, 2950.1, series[1].Value)

	// bench only present in the first entry
	assert.Len(t, BenchSeries(ds, "Benchmark", "QueryBenchmarkFixture/GetDocumentBacklinks"), 1)

	names := BenchNames(ds, "Benchmark")
	assert.Equal(t, "QueryBenchmarkFixture/GetNodeById", names[0])
	assert.Len(t, names, 4)

	assert.Equal(t, []string{"Benchmark"}, Suites(ds))

	prev := PreviousEntries(ds, "Benchmark", 5)
	require.Len(t, prev, 1)
	assert.Equal(t, int64(1752251944303), prev[0].Date)
}

func TestParseExtra(t *testing.T) {
	extra, err := ParseExtra("iterations: 232257\ncpu: 2911.408060898057 ns\nthreads: 1")
	require.NoError(t, err)
	assert.Equal(t, int64(232257), extra.Iterations)
	assert.Equal(t, 2911.408060898057, extra.CPUTime)
	assert.Equal(t, "ns", extra.CPUUnit)
	assert.Equal(t, 1, extra.Threads)

	assert.Equal(t, "iterations: 232257\ncpu: 2911.408060898057 ns\nthreads: 1", FormatExtra(extra))

	extra, err = ParseExtra("some note\niterations: 5")
	require.NoError(t, err)
	assert.Equal(t, int64(5), extra.Iterations)

	_, err = ParseExtra("iterations: many")
	assert.Error(t, err)
	_, err = ParseExtra("cpu: fast ns")
	assert.Error(t, err)
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev", "bench", "data.js")

	ds, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, ds.Entries)

	ds.RepoURL = "https://github.com/buddy-computer/loredb"
	AddEntry(ds, "Benchmark", testEntry("a", 1000, types.Bench{Name: "x", Value: 1, Unit: "ns/iter"}), 0)
	require.NoError(t, SaveFile(path, ds))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ds, loaded)
}

func TestUpdateSerializesWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.js")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := Update(ctx, path, func(ds *types.Dataset) error {
				AddEntry(ds, "Benchmark", testEntry("c", int64(i)), 0)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ds, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, ds.Entries["Benchmark"], 8)
}

func TestCheck(t *testing.T) {
	ds := loadFixture(t)
	assert.Empty(t, Check(ds))

	ds.Entries["Broken"] = []types.Entry{
		{Commit: types.Commit{ID: "a"}, Date: 20, Benches: []types.Bench{
			{Name: "x", Value: 1},
			{Name: "x", Value: 2},
			{Name: "", Value: 3},
			{Name: "y", Value: 4, Extra: "iterations: many"},
		}},
		{Date: 10},
	}
	problems := Check(ds)
	assert.Equal(t, []string{
		`Broken[0]: bench "x" appears twice`,
		"Broken[0]: bench without a name",
		`Broken[0]: bench "y": invalid iterations "many": strconv.ParseInt: parsing "many": invalid syntax`,
		"Broken[1]: commit id is empty",
		"Broken[1]: recorded before the previous entry",
	}, problems)
}
