// Package storage persists benchmark history to data.js and to a SQL database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

// ErrNotFound is returned when a run or alert does not exist
var ErrNotFound = errors.New("not found")

// ErrRunConflict is returned when a run id is already taken by another suite
var ErrRunConflict = errors.New("run id belongs to another suite")

// DefaultSuite is the suite name github-action-benchmark uses when none is set
const DefaultSuite = "Benchmark"

// Store is the database side of the benchmark history
type Store interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error

	SaveRun(ctx context.Context, suite string, entry *types.Entry, host types.HostInfo) (*types.HistoricRun, error)
	GetRun(ctx context.Context, id string) (*types.HistoricRun, error)
	ListRuns(ctx context.Context, filter types.RunFilter) ([]*types.HistoricRun, error)
	ListSuites(ctx context.Context) ([]string, error)
	DeleteRun(ctx context.Context, id string) error
	DeleteOldRuns(ctx context.Context, before time.Time) (int64, error)

	QuerySeries(ctx context.Context, q types.SeriesQuery) ([]types.BenchPoint, error)
	QueryMetrics(ctx context.Context, filter types.RunFilter) ([]types.TimeSeriesMetric, error)

	SaveAlerts(ctx context.Context, alerts []*types.Alert) error
	GetAlerts(ctx context.Context, runID string) ([]*types.Alert, error)
	AcknowledgeAlert(ctx context.Context, id, by string) error

	Close() error
}

// GenerateRunID builds a run id of the form YYYYMMDD-HHMMSS-<commit7> from the
// entry date. Suites other than DefaultSuite get a -<suite> suffix.
func GenerateRunID(suite string, entry *types.Entry) string {
	ts := time.UnixMilli(entry.Date).UTC()
	id := fmt.Sprintf("%s-%s", ts.Format("20060102-150405"), entry.Commit.ShortID())
	if suite == "" || suite == DefaultSuite {
		return id
	}
	return id + "-" + suiteSlug(suite)
}

// suiteSlug lowercases suite and folds every other rune into single dashes
func suiteSlug(suite string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(suite) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(sb.String(), "-")
	if slug == "" {
		slug = fmt.Sprintf("%x", crc32.ChecksumIEEE([]byte(suite)))
	}
	return slug
}

// NewHistoricRun describes an entry as a stored run
func NewHistoricRun(suite string, entry *types.Entry, host types.HostInfo) *types.HistoricRun {
	author := entry.Commit.Author.Username
	if author == "" {
		author = entry.Commit.Author.Name
	}
	return &types.HistoricRun{
		ID:            GenerateRunID(suite, entry),
		Suite:         suite,
		Timestamp:     time.UnixMilli(entry.Date).UTC(),
		CommitID:      entry.Commit.ID,
		CommitMessage: entry.Commit.Message,
		CommitURL:     entry.Commit.URL,
		CommitAuthor:  author,
		Tool:          entry.Tool,
		BenchCount:    len(entry.Benches),
		Host:          host,
	}
}

// Metrics flattens the benches of an entry. Malformed extra text leaves the
// parsed fields at zero.
func Metrics(runID, suite string, entry *types.Entry) []types.TimeSeriesMetric {
	ts := time.UnixMilli(entry.Date).UTC()
	metrics := make([]types.TimeSeriesMetric, 0, len(entry.Benches))
	for _, b := range entry.Benches {
		extra, _ := dataset.ParseExtra(b.Extra)
		metrics = append(metrics, types.TimeSeriesMetric{
			Time:       ts,
			RunID:      runID,
			Suite:      suite,
			CommitID:   entry.Commit.ID,
			Bench:      b.Name,
			Value:      b.Value,
			Unit:       b.Unit,
			Iterations: extra.Iterations,
			CPUTime:    extra.CPUTime,
			Threads:    extra.Threads,
		})
	}
	return metrics
}
