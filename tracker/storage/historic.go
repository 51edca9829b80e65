package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

// HistoricStorage records entries in data.js and, when a Store is
// configured, in the database
type HistoricStorage struct {
	dataFile string
	maxItems int
	store    Store
	host     types.HostInfo
	log      logrus.FieldLogger
}

// SavedEntry is the outcome of recording one entry
type SavedEntry struct {
	Run *types.HistoricRun
	// History holds the suite entries recorded before this one, oldest first
	History []types.Entry
	Dataset *types.Dataset
}

// NewHistoricStorage creates the storage facade. store may be nil.
func NewHistoricStorage(dataFile string, maxItems int, store Store, host types.HostInfo, log logrus.FieldLogger) *HistoricStorage {
	return &HistoricStorage{
		dataFile: dataFile,
		maxItems: maxItems,
		store:    store,
		host:     host,
		log:      log.WithField("component", "historic_storage"),
	}
}

// DataFile returns the path of data.js
func (h *HistoricStorage) DataFile() string {
	return h.dataFile
}

// Store returns the database store, nil when tracking is file-only
func (h *HistoricStorage) Store() Store {
	return h.store
}

// Host returns the host metadata recorded on new runs
func (h *HistoricStorage) Host() types.HostInfo {
	return h.host
}

// Dataset loads the current data.js content
func (h *HistoricStorage) Dataset() (*types.Dataset, error) {
	return dataset.LoadFile(h.dataFile)
}

// EntryCheck inspects the suite history recorded before a new entry, oldest
// first. An error aborts SaveEntry before anything is written.
type EntryCheck func(history []types.Entry) error

// SaveEntry appends entry to the suite in data.js and stores it as a run.
// The database is written first; data.js is only replaced once the run is
// stored. check may be nil.
func (h *HistoricStorage) SaveEntry(ctx context.Context, suite string, entry types.Entry, repoURL string, check EntryCheck) (*SavedEntry, error) {
	saved := &SavedEntry{}

	ds, err := dataset.Update(ctx, h.dataFile, func(ds *types.Dataset) error {
		saved.History = append([]types.Entry(nil), ds.Entries[suite]...)
		if check != nil {
			if err := check(saved.History); err != nil {
				return err
			}
		}
		if ds.RepoURL == "" {
			ds.RepoURL = repoURL
		}
		dataset.AddEntry(ds, suite, entry, h.maxItems)

		if h.store == nil {
			saved.Run = NewHistoricRun(suite, &entry, h.host)
			return nil
		}
		run, err := h.store.SaveRun(ctx, suite, &entry, h.host)
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		saved.Run = run
		return nil
	})
	if err != nil {
		if h.store != nil && saved.Run != nil {
			// data.js was left untouched, drop the run again
			if delErr := h.store.DeleteRun(ctx, saved.Run.ID); delErr != nil {
				h.log.WithError(delErr).WithField("run_id", saved.Run.ID).Error("Failed to roll back run")
			}
		}
		return nil, fmt.Errorf("failed to record entry in %s: %w", h.dataFile, err)
	}
	saved.Dataset = ds

	log := h.log.WithFields(logrus.Fields{
		"suite":  suite,
		"commit": entry.Commit.ShortID(),
		"run_id": saved.Run.ID,
	})
	if h.store == nil {
		log.Info("Saved entry to data.js")
	} else {
		log.Info("Saved entry to data.js and database")
	}
	return saved, nil
}

// SaveAlerts stores alerts when a database is configured
func (h *HistoricStorage) SaveAlerts(ctx context.Context, alerts []*types.Alert) error {
	if h.store == nil || len(alerts) == 0 {
		return nil
	}
	return h.store.SaveAlerts(ctx, alerts)
}

// Import copies every entry of a dataset into the database. Entries already
// stored are replaced. It returns the number of runs written.
func (h *HistoricStorage) Import(ctx context.Context, ds *types.Dataset) (int, error) {
	if h.store == nil {
		return 0, fmt.Errorf("no database configured")
	}

	count := 0
	for _, suite := range dataset.Suites(ds) {
		for i := range ds.Entries[suite] {
			if _, err := h.store.SaveRun(ctx, suite, &ds.Entries[suite][i], types.HostInfo{}); err != nil {
				return count, fmt.Errorf("failed to import %s entry %d: %w", suite, i, err)
			}
			count++
		}
	}

	h.log.WithField("runs", count).Info("Imported data.js into database")
	return count, nil
}

// Prune deletes database runs older than retention
func (h *HistoricStorage) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if h.store == nil {
		return 0, nil
	}
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	return h.store.DeleteOldRuns(ctx, time.Now().Add(-retention))
}

// Close releases the database connection
func (h *HistoricStorage) Close() error {
	if h.store == nil {
		return nil
	}
	return h.store.Close()
}
