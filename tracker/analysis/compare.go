// Package analysis detects benchmark regressions and trends over data.js history.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

// ComparisonMode selects the baseline a new entry is compared with
type ComparisonMode string

const (
	ModeSequential     ComparisonMode = "sequential"
	ModeRollingAverage ComparisonMode = "rolling_average"
	ModeCommit         ComparisonMode = "commit"
)

// Valid reports whether m is a known mode
func (m ComparisonMode) Valid() bool {
	switch m {
	case ModeSequential, ModeRollingAverage, ModeCommit:
		return true
	}
	return false
}

// ErrBaseNotFound is returned when the base commit is not in the history
var ErrBaseNotFound = errors.New("base commit not found in history")

// Options configures a Detector
type Options struct {
	AlertThreshold float64
	FailThreshold  float64
	Mode           ComparisonMode
	WindowSize     int
	BaseCommit     string
	BiggerIsBetter bool
}

// Baseline holds the values a new entry is compared against
type Baseline struct {
	CommitID string
	Label    string
	Values   map[string]float64
	Units    map[string]string
}

// Comparison is the outcome for one bench present in both entries
type Comparison struct {
	Bench         string  `json:"bench"`
	Unit          string  `json:"unit"`
	BaseValue     float64 `json:"base_value"`
	CurrentValue  float64 `json:"current_value"`
	Ratio         float64 `json:"ratio"`
	PercentChange float64 `json:"percent_change"`
	Alert         bool    `json:"alert"`
}

// Result is the outcome of comparing one entry with its baseline
type Result struct {
	Baseline    *Baseline
	Comparisons []Comparison
	Alerts      []*types.Alert
}

// Detector compares new entries with history
type Detector struct {
	opts       Options
	thresholds map[string]SeverityThreshold
	log        logrus.FieldLogger
}

// NewDetector creates a detector. A zero fail threshold falls back to the alert threshold.
func NewDetector(opts Options, log logrus.FieldLogger) *Detector {
	if opts.Mode == "" {
		opts.Mode = ModeSequential
	}
	if opts.FailThreshold == 0 {
		opts.FailThreshold = opts.AlertThreshold
	}
	if opts.WindowSize < 1 {
		opts.WindowSize = 5
	}
	return &Detector{
		opts:       opts,
		thresholds: defaultSeverityThresholds(),
		log:        log.WithField("component", "regression-detector"),
	}
}

// Options returns the effective options
func (d *Detector) Options() Options {
	return d.opts
}

// SetSeverityThreshold overrides the severity levels for a unit, or "default"
func (d *Detector) SetSeverityThreshold(unit string, t SeverityThreshold) {
	t.Unit = unit
	d.thresholds[unit] = t
}

// Severity classifies a ratio for a bench unit
func (d *Detector) Severity(unit string, ratio float64) string {
	t, ok := d.thresholds[unit]
	if !ok {
		t = d.thresholds["default"]
	}
	return severityFor(t, (ratio-1)*100)
}

// Baseline builds the comparison baseline from entries recorded before the
// current one, oldest first. It returns nil when there is nothing to compare with.
func (d *Detector) Baseline(history []types.Entry) (*Baseline, error) {
	switch d.opts.Mode {
	case ModeSequential:
		if len(history) == 0 {
			return nil, nil
		}
		return entryBaseline(&history[len(history)-1]), nil

	case ModeCommit:
		for i := len(history) - 1; i >= 0; i-- {
			if dataset.MatchCommit(history[i].Commit.ID, d.opts.BaseCommit) {
				return entryBaseline(&history[i]), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrBaseNotFound, d.opts.BaseCommit)

	case ModeRollingAverage:
		if len(history) == 0 {
			return nil, nil
		}
		start := len(history) - d.opts.WindowSize
		if start < 0 {
			start = 0
		}
		window := history[start:]

		sums := make(map[string]float64)
		counts := make(map[string]int)
		units := make(map[string]string)
		for _, e := range window {
			for _, b := range e.Benches {
				sums[b.Name] += b.Value
				counts[b.Name]++
				units[b.Name] = b.Unit
			}
		}
		values := make(map[string]float64, len(sums))
		for name, sum := range sums {
			values[name] = sum / float64(counts[name])
		}
		return &Baseline{
			CommitID: window[len(window)-1].Commit.ID,
			Label:    fmt.Sprintf("average of %d entries", len(window)),
			Values:   values,
			Units:    units,
		}, nil
	}
	return nil, fmt.Errorf("unknown comparison mode %q", d.opts.Mode)
}

func entryBaseline(e *types.Entry) *Baseline {
	b := &Baseline{
		CommitID: e.Commit.ID,
		Label:    e.Commit.ShortID(),
		Values:   make(map[string]float64, len(e.Benches)),
		Units:    make(map[string]string, len(e.Benches)),
	}
	for _, bench := range e.Benches {
		b.Values[bench.Name] = bench.Value
		b.Units[bench.Name] = bench.Unit
	}
	return b
}

// Compare checks current against history and returns comparisons and alerts.
// runID is recorded on the alerts.
func (d *Detector) Compare(suite, runID string, history []types.Entry, current *types.Entry) (*Result, error) {
	base, err := d.Baseline(history)
	if err != nil {
		return nil, err
	}
	result := &Result{Baseline: base}
	if base == nil {
		d.log.WithField("suite", suite).Debug("No previous entry, skipping regression check")
		return result, nil
	}

	now := time.Now().UTC()
	for _, bench := range current.Benches {
		prev, ok := base.Values[bench.Name]
		if !ok {
			continue
		}

		ratio, ok := d.ratio(prev, bench.Value)
		if !ok {
			d.log.WithFields(logrus.Fields{
				"suite": suite,
				"bench": bench.Name,
			}).Debug("Skipping bench with zero value")
			continue
		}

		c := Comparison{
			Bench:         bench.Name,
			Unit:          bench.Unit,
			BaseValue:     prev,
			CurrentValue:  bench.Value,
			Ratio:         ratio,
			PercentChange: (bench.Value - prev) / prev * 100,
			Alert:         ratio > d.opts.AlertThreshold,
		}
		result.Comparisons = append(result.Comparisons, c)

		if !c.Alert {
			continue
		}
		alert := &types.Alert{
			ID:             uuid.New().String(),
			RunID:          runID,
			Suite:          suite,
			Bench:          bench.Name,
			Unit:           bench.Unit,
			CommitID:       current.Commit.ID,
			BaseCommitID:   base.CommitID,
			BaseValue:      prev,
			CurrentValue:   bench.Value,
			Ratio:          ratio,
			PercentChange:  c.PercentChange,
			Severity:       d.Severity(bench.Unit, ratio),
			ComparisonMode: string(d.opts.Mode),
			DetectedAt:     now,
		}
		result.Alerts = append(result.Alerts, alert)

		d.log.WithFields(logrus.Fields{
			"suite":    suite,
			"bench":    bench.Name,
			"ratio":    ratio,
			"severity": alert.Severity,
		}).Warn("Performance alert")
	}

	return result, nil
}

// ratio is "how many times worse"; false when it cannot be computed
func (d *Detector) ratio(prev, cur float64) (float64, bool) {
	if prev == 0 {
		return 0, false
	}
	r := cur / prev
	if d.opts.BiggerIsBetter {
		if cur == 0 {
			return 0, false
		}
		r = prev / cur
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

// ShouldFail reports whether any alert exceeds the fail threshold
func ShouldFail(alerts []*types.Alert, failThreshold float64) bool {
	for _, a := range alerts {
		if a.Ratio > failThreshold {
			return true
		}
	}
	return false
}

// ShouldFail applies the detector's fail threshold to alerts
func (d *Detector) ShouldFail(alerts []*types.Alert) bool {
	return ShouldFail(alerts, d.opts.FailThreshold)
}
