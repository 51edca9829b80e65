package dataset

import (
	"sort"
	"strings"
	"time"

	"github.com/loredb-bench/tracker/types"
)

// AddEntry appends entry to the suite and trims the suite to the newest
// maxItems entries when maxItems is positive. It returns the entry that was
// last in the suite before the append, or nil for a new suite.
func AddEntry(ds *types.Dataset, suite string, entry types.Entry, maxItems int) *types.Entry {
	if ds.Entries == nil {
		ds.Entries = make(map[string][]types.Entry)
	}

	var prev *types.Entry
	existing := ds.Entries[suite]
	if len(existing) > 0 {
		last := existing[len(existing)-1]
		prev = &last
	}

	existing = append(existing, entry)
	if maxItems > 0 && len(existing) > maxItems {
		existing = append([]types.Entry(nil), existing[len(existing)-maxItems:]...)
	}
	ds.Entries[suite] = existing
	ds.LastUpdate = entry.Date

	return prev
}

// Suites returns the suite names in sorted order
func Suites(ds *types.Dataset) []string {
	names := make([]string, 0, len(ds.Entries))
	for name := range ds.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LatestEntry returns the newest entry of a suite
func LatestEntry(ds *types.Dataset, suite string) (*types.Entry, bool) {
	entries := ds.Entries[suite]
	if len(entries) == 0 {
		return nil, false
	}
	e := entries[len(entries)-1]
	return &e, true
}

// FindEntry returns the last entry recorded for commitID. Short ids match as prefixes.
func FindEntry(ds *types.Dataset, suite, commitID string) (*types.Entry, bool) {
	entries := ds.Entries[suite]
	for i := len(entries) - 1; i >= 0; i-- {
		if MatchCommit(entries[i].Commit.ID, commitID) {
			e := entries[i]
			return &e, true
		}
	}
	return nil, false
}

// MatchCommit reports whether query names id, either fully or as a prefix of at least 7 characters
func MatchCommit(id, query string) bool {
	if query == "" {
		return false
	}
	return id == query || (len(query) >= 7 && strings.HasPrefix(id, query))
}

// PreviousEntries returns up to n entries recorded before the last one, newest first
func PreviousEntries(ds *types.Dataset, suite string, n int) []types.Entry {
	entries := ds.Entries[suite]
	if len(entries) < 2 {
		return nil
	}
	var out []types.Entry
	for i := len(entries) - 2; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}

// BenchSeries returns the values of one bench in recording order
func BenchSeries(ds *types.Dataset, suite, bench string) []types.BenchPoint {
	var points []types.BenchPoint
	for _, entry := range ds.Entries[suite] {
		b := entry.Bench(bench)
		if b == nil {
			continue
		}
		points = append(points, types.BenchPoint{
			Timestamp: time.UnixMilli(entry.Date).UTC(),
			CommitID:  entry.Commit.ID,
			Value:     b.Value,
			Unit:      b.Unit,
		})
	}
	return points
}

// BenchNames returns all bench names seen in a suite, in first-seen order
func BenchNames(ds *types.Dataset, suite string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, entry := range ds.Entries[suite] {
		for _, b := range entry.Benches {
			if !seen[b.Name] {
				seen[b.Name] = true
				names = append(names, b.Name)
			}
		}
	}
	return names
}
