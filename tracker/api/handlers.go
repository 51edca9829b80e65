package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/loredb-bench/tracker/analysis"
	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/extract"
	"github.com/loredb-bench/tracker/ingest"
	"github.com/loredb-bench/tracker/storage"
	"github.com/loredb-bench/tracker/types"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
	// upper bound on a POSTed tool output
	maxIngestBody = 32 << 20
)

// queryLimit parses ?limit=, falling back to def
func queryLimit(r *http.Request, def int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// requireStore writes 503 and returns nil when no database is configured
func (s *Server) requireStore(w http.ResponseWriter) storage.Store {
	store := s.history.Store()
	if store == nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "No database configured")
	}
	return store
}

func (s *Server) loadDataset(w http.ResponseWriter) *types.Dataset {
	ds, err := s.history.Dataset()
	if err != nil {
		s.log.WithError(err).Error("Failed to load data.js")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to load benchmark data")
		return nil
	}
	return ds
}

// handleHealth reports the server and database status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{"data_file": s.history.DataFile(), "database": "disabled"}
	status := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"services":   services,
		"ws_clients": s.hub.ClientCount(),
	}

	if store := s.history.Store(); store != nil {
		services["database"] = "connected"
		if err := store.Ping(r.Context()); err != nil {
			status["status"] = "unhealthy"
			services["database"] = "disconnected"
			s.writeJSONResponse(w, http.StatusServiceUnavailable, status)
			return
		}
	}

	s.writeJSONResponse(w, http.StatusOK, status)
}

// handleDataJS serves the current data.js with its global assignment
func (s *Server) handleDataJS(w http.ResponseWriter, r *http.Request) {
	ds := s.loadDataset(w)
	if ds == nil {
		return
	}
	data, err := dataset.Encode(ds)
	if err != nil {
		s.log.WithError(err).Error("Failed to encode data.js")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to encode benchmark data")
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleListSuites lists suites with their newest entry
func (s *Server) handleListSuites(w http.ResponseWriter, r *http.Request) {
	ds := s.loadDataset(w)
	if ds == nil {
		return
	}

	suites := make([]map[string]interface{}, 0, len(ds.Entries))
	for _, name := range dataset.Suites(ds) {
		suite := map[string]interface{}{
			"name":    name,
			"entries": len(ds.Entries[name]),
			"benches": dataset.BenchNames(ds, name),
		}
		if latest, ok := dataset.LatestEntry(ds, name); ok {
			suite["latest_commit"] = latest.Commit.ID
			suite["latest_date"] = latest.Date
		}
		suites = append(suites, suite)
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"repo_url":    ds.RepoURL,
		"last_update": ds.LastUpdate,
		"suites":      suites,
	})
}

// handleListEntries returns the newest entries of a suite, newest first
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	suite := mux.Vars(r)["suite"]
	ds := s.loadDataset(w)
	if ds == nil {
		return
	}

	all, ok := ds.Entries[suite]
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "Suite not found")
		return
	}

	limit := queryLimit(r, defaultLimit)
	entries := make([]types.Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, all[i])
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"suite":   suite,
		"entries": entries,
		"count":   len(entries),
		"total":   len(all),
	})
}

// handleIngest records raw tool output POSTed as the request body
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	suite := mux.Vars(r)["suite"]
	q := r.URL.Query()

	tool := q.Get("tool")
	if tool != "" && !extract.IsSupported(tool) {
		s.writeErrorResponse(w, http.StatusBadRequest, "Unsupported tool "+tool)
		return
	}

	commit := types.Commit{
		ID:        firstNonEmpty(q.Get("commit"), r.Header.Get("X-Commit-Id")),
		Message:   firstNonEmpty(q.Get("message"), r.Header.Get("X-Commit-Message")),
		URL:       firstNonEmpty(q.Get("url"), r.Header.Get("X-Commit-Url")),
		Timestamp: firstNonEmpty(q.Get("timestamp"), r.Header.Get("X-Commit-Timestamp")),
	}
	if commit.ID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Commit id is required")
		return
	}
	if author := firstNonEmpty(q.Get("author"), r.Header.Get("X-Commit-Author")); author != "" {
		commit.Author = types.Person{Name: author, Username: author}
		commit.Committer = commit.Author
	}
	if commit.Timestamp == "" {
		commit.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	res, err := s.ingester.Ingest(r.Context(), ingest.Request{
		Suite:  suite,
		Tool:   tool,
		Output: http.MaxBytesReader(w, r.Body, maxIngestBody),
		Commit: commit,
	})
	if err != nil {
		status := ingestStatus(err)
		entry := s.log.WithError(err).WithField("suite", suite)
		if status >= http.StatusInternalServerError {
			entry.Error("Failed to ingest benchmark results")
		} else {
			entry.Warn("Rejected benchmark results")
		}
		s.writeErrorResponse(w, status, err.Error())
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"run":         res.Run,
		"entry":       res.Entry,
		"comparisons": res.Analysis.Comparisons,
		"alerts":      res.Analysis.Alerts,
		"fail":        res.Fail,
	})
}

// ingestStatus maps an ingest error to the response status
func ingestStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrBaseNotFound), errors.Is(err, storage.ErrRunConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// benchSeries reads a bench history from the database when available, else from data.js
func (s *Server) benchSeries(r *http.Request, suite, bench string, limit int) ([]types.BenchPoint, error) {
	if store := s.history.Store(); store != nil {
		return store.QuerySeries(r.Context(), types.SeriesQuery{Suite: suite, Bench: bench, Limit: limit})
	}

	ds, err := s.history.Dataset()
	if err != nil {
		return nil, err
	}
	points := dataset.BenchSeries(ds, suite, bench)
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points, nil
}

// handleBenchSeries returns the values of one bench in recording order
func (s *Server) handleBenchSeries(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	points, err := s.benchSeries(r, vars["suite"], vars["bench"], queryLimit(r, maxLimit))
	if err != nil {
		s.log.WithError(err).Error("Failed to query bench series")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve series")
		return
	}
	if len(points) == 0 {
		s.writeErrorResponse(w, http.StatusNotFound, "Bench not found")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"suite":  vars["suite"],
		"bench":  vars["bench"],
		"points": points,
		"count":  len(points),
	})
}

// handleBenchTrend returns trend statistics for one bench
func (s *Server) handleBenchTrend(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	points, err := s.benchSeries(r, vars["suite"], vars["bench"], queryLimit(r, maxLimit))
	if err != nil {
		s.log.WithError(err).Error("Failed to query bench series")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve series")
		return
	}
	if len(points) == 0 {
		s.writeErrorResponse(w, http.StatusNotFound, "Bench not found")
		return
	}

	window := s.bench.WindowSize
	if ws := r.URL.Query().Get("window"); ws != "" {
		if parsed, err := strconv.Atoi(ws); err == nil && parsed > 0 {
			window = parsed
		}
	}
	trend := analysis.AnalyzeTrend(vars["bench"], points, extract.BiggerIsBetter(s.bench.Tool), window)
	s.writeJSONResponse(w, http.StatusOK, trend)
}

// handleListRuns lists stored runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}

	q := r.URL.Query()
	since, err := parseTime(q.Get("since"))
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid since timestamp")
		return
	}
	until, err := parseTime(q.Get("until"))
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid until timestamp")
		return
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit := queryLimit(r, defaultLimit)

	runs, err := store.ListRuns(r.Context(), types.RunFilter{
		Suite:    q.Get("suite"),
		CommitID: q.Get("commit"),
		Tool:     q.Get("tool"),
		Since:    since,
		Until:    until,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	if runs == nil {
		runs = []*types.HistoricRun{}
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"limit": limit,
	})
}

// handleGetRun retrieves a specific run with its benches
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}

	run, err := store.GetRun(r.Context(), mux.Vars(r)["runId"])
	if err != nil {
		s.writeStoreError(w, err, "Run not found", "Failed to retrieve run")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, run)
}

// handleDeleteRun deletes a run, its benches and alerts
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}

	runID := mux.Vars(r)["runId"]
	if err := store.DeleteRun(r.Context(), runID); err != nil {
		s.writeStoreError(w, err, "Run not found", "Failed to delete run")
		return
	}

	s.log.WithField("run_id", runID).Info("Deleted run")
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"deleted": runID,
	})
}

// handleGetAlerts returns the alerts raised for a run
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}

	runID := mux.Vars(r)["runId"]
	alerts, err := store.GetAlerts(r.Context(), runID)
	if err != nil {
		s.writeStoreError(w, err, "Run not found", "Failed to retrieve alerts")
		return
	}
	if alerts == nil {
		alerts = []*types.Alert{}
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleAcknowledgeAlert marks an alert as acknowledged
func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	store := s.requireStore(w)
	if store == nil {
		return
	}

	var req struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.AcknowledgedBy == "" {
		req.AcknowledgedBy = "api"
	}

	alertID := mux.Vars(r)["alertId"]
	if err := store.AcknowledgeAlert(r.Context(), alertID, req.AcknowledgedBy); err != nil {
		s.writeStoreError(w, err, "Alert not found", "Failed to acknowledge alert")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"acknowledged":    alertID,
		"acknowledged_by": req.AcknowledgedBy,
	})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, notFound, failed string) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeErrorResponse(w, http.StatusNotFound, notFound)
		return
	}
	s.log.WithError(err).Error(failed)
	s.writeErrorResponse(w, http.StatusInternalServerError, failed)
}
