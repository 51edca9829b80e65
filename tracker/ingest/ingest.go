// Package ingest turns benchmark tool output into a recorded data.js entry
// and checks it for regressions.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loredb-bench/tracker/analysis"
	"github.com/loredb-bench/tracker/config"
	"github.com/loredb-bench/tracker/extract"
	"github.com/loredb-bench/tracker/metrics"
	"github.com/loredb-bench/tracker/storage"
	"github.com/loredb-bench/tracker/types"
)

// ErrInvalidRequest marks failures caused by the request itself: a missing
// commit or tool output that cannot be extracted
var ErrInvalidRequest = errors.New("invalid ingest request")

// Notifier is told about recorded entries and alerts
type Notifier interface {
	NotifyNewEntry(suite string, run *types.HistoricRun, entry *types.Entry)
	NotifyAlert(alert *types.Alert)
}

// Request describes one batch of tool output
type Request struct {
	Suite   string
	Tool    string
	Output  io.Reader
	Commit  types.Commit
	RepoURL string
	// Date defaults to now
	Date time.Time
}

// Result is the outcome of an ingest
type Result struct {
	Entry    types.Entry
	Run      *types.HistoricRun
	Dataset  *types.Dataset
	Analysis *analysis.Result
	// Fail is set when fail_on_alert is enabled and an alert exceeds fail_threshold
	Fail bool
}

// Ingester records entries through HistoricStorage
type Ingester struct {
	history   *storage.HistoricStorage
	bench     config.BenchmarkConfig
	collector *metrics.Collector
	notifier  Notifier
	log       logrus.FieldLogger
}

// New creates an Ingester. collector and notifier may be nil.
func New(history *storage.HistoricStorage, bench config.BenchmarkConfig, collector *metrics.Collector, notifier Notifier, log logrus.FieldLogger) *Ingester {
	return &Ingester{
		history:   history,
		bench:     bench,
		collector: collector,
		notifier:  notifier,
		log:       log.WithField("component", "ingest"),
	}
}

// SetNotifier replaces the notifier
func (i *Ingester) SetNotifier(n Notifier) {
	i.notifier = n
}

// Ingest extracts benches from req.Output, appends the entry and compares it
// with the suite history recorded before it
func (i *Ingester) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.Suite == "" {
		req.Suite = i.bench.Name
	}
	if req.Tool == "" {
		req.Tool = i.bench.Tool
	}
	if req.RepoURL == "" {
		req.RepoURL = i.bench.RepoURL
	}
	if req.Commit.ID == "" {
		return nil, fmt.Errorf("%w: commit id is required", ErrInvalidRequest)
	}

	benches, err := extract.Extract(req.Tool, req.Output)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	entry := types.Entry{
		Commit:  req.Commit,
		Date:    date.UnixMilli(),
		Tool:    req.Tool,
		Benches: benches,
	}

	opts, err := i.bench.DetectorOptions(req.Tool)
	if err != nil {
		return nil, err
	}
	detector := analysis.NewDetector(opts, i.log)
	runID := storage.GenerateRunID(req.Suite, &entry)

	// compared under the data.js lock; a failed comparison writes nothing
	var result *analysis.Result
	saved, err := i.history.SaveEntry(ctx, req.Suite, entry, req.RepoURL, func(history []types.Entry) error {
		r, err := detector.Compare(req.Suite, runID, history, &entry)
		if err != nil {
			return fmt.Errorf("failed to compare with history: %w", err)
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := i.history.SaveAlerts(ctx, result.Alerts); err != nil {
		return nil, fmt.Errorf("failed to save alerts: %w", err)
	}

	if i.collector != nil {
		i.collector.ObserveEntry(req.Suite, &entry)
		i.collector.ObserveAlerts(result.Alerts)
	}
	if i.notifier != nil {
		i.notifier.NotifyNewEntry(req.Suite, saved.Run, &entry)
		for _, a := range result.Alerts {
			i.notifier.NotifyAlert(a)
		}
	}

	out := &Result{
		Entry:    entry,
		Run:      saved.Run,
		Dataset:  saved.Dataset,
		Analysis: result,
		Fail:     i.bench.FailOnAlert && detector.ShouldFail(result.Alerts),
	}

	i.log.WithFields(logrus.Fields{
		"suite":   req.Suite,
		"run_id":  saved.Run.ID,
		"benches": len(benches),
		"alerts":  len(result.Alerts),
	}).Info("Ingested benchmark results")

	return out, nil
}
