package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/loredb-bench/tracker/types"
)

// Options configures the connection pool
type Options struct {
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
}

// sqlStore implements Store on database/sql for every dialect
type sqlStore struct {
	db  *sql.DB
	d   Dialect
	log logrus.FieldLogger
}

var _ Store = (*sqlStore)(nil)

// Open connects to the backend ("postgres" or "sqlite") and waits for it to
// accept connections within opts.ConnectTimeout.
func Open(ctx context.Context, backend, dsn string, opts Options, log logrus.FieldLogger) (Store, error) {
	d, err := DialectFor(backend)
	if err != nil {
		return nil, err
	}
	log = log.WithField("component", d.Name)

	if d.Name == SQLite.Name {
		if path := strings.TrimPrefix(dsn, "file:"); path != ":memory:" && !strings.Contains(path, "?") {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.Name == SQLite.Name {
		// one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = pingWithBackoff(pingCtx, db, func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("Database not ready")
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Connected to database")
	return &sqlStore{db: db, d: d, log: log}, nil
}

// sqliteDSN enables foreign keys and a busy timeout on every connection
func sqliteDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// DB exposes the underlying connection pool
func (s *sqlStore) DB() *sql.DB {
	return s.db
}

func (s *sqlStore) Migrate(ctx context.Context) error {
	_, err := RunMigrations(ctx, s.db, s.d, s.log)
	return err
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) ph(n int) string {
	return s.d.Placeholder(n)
}

const runColumns = `id, suite, timestamp, commit_id, commit_message, commit_url, commit_author,
	tool, bench_count, hostname, os, platform, cpu_model, logical_cpus, total_memory`

func (s *sqlStore) SaveRun(ctx context.Context, suite string, entry *types.Entry, host types.HostInfo) (*types.HistoricRun, error) {
	run := NewHistoricRun(suite, entry, host)
	metrics := Metrics(run.ID, suite, entry)

	err := withRetryableTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		query := fmt.Sprintf(`
		INSERT INTO benchmark_runs (%s) VALUES (%s)
		ON CONFLICT (id) DO UPDATE SET
			commit_message = excluded.commit_message,
			commit_url = excluded.commit_url,
			commit_author = excluded.commit_author,
			tool = excluded.tool,
			bench_count = excluded.bench_count
		WHERE benchmark_runs.suite = excluded.suite`, runColumns, s.d.Placeholders(1, 15))

		res, err := tx.ExecContext(ctx, query,
			run.ID, run.Suite, run.Timestamp, run.CommitID, run.CommitMessage, run.CommitURL,
			run.CommitAuthor, run.Tool, run.BenchCount, host.Hostname, host.OS, host.Platform,
			host.CPUModel, host.LogicalCPUs, int64(host.TotalMemory),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrRunConflict, run.ID)
		}

		// re-ingesting an entry replaces its results
		if _, err := tx.ExecContext(ctx, `DELETE FROM benchmark_results WHERE run_id = `+s.ph(1), run.ID); err != nil {
			return fmt.Errorf("failed to clear results: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO benchmark_results (
			run_id, suite, time, commit_id, bench, value, unit, range_text, extra,
			iterations, cpu_time, threads
		) VALUES (%s)`, s.d.Placeholders(1, 12)))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i, m := range metrics {
			b := entry.Benches[i]
			if _, err := stmt.ExecContext(ctx,
				m.RunID, m.Suite, m.Time, m.CommitID, m.Bench, m.Value, m.Unit, b.Range, b.Extra,
				m.Iterations, m.CPUTime, m.Threads,
			); err != nil {
				return fmt.Errorf("failed to insert result %q: %w", m.Bench, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"suite":   suite,
		"benches": run.BenchCount,
	}).Debug("Saved run")
	return run, nil
}

func scanRun(row interface{ Scan(...interface{}) error }) (*types.HistoricRun, error) {
	var run types.HistoricRun
	var totalMemory int64
	err := row.Scan(
		&run.ID, &run.Suite, &run.Timestamp, &run.CommitID, &run.CommitMessage, &run.CommitURL,
		&run.CommitAuthor, &run.Tool, &run.BenchCount, &run.Host.Hostname, &run.Host.OS,
		&run.Host.Platform, &run.Host.CPUModel, &run.Host.LogicalCPUs, &totalMemory,
	)
	if err != nil {
		return nil, err
	}
	run.Host.TotalMemory = uint64(totalMemory)
	run.Timestamp = run.Timestamp.UTC()
	return &run, nil
}

func (s *sqlStore) GetRun(ctx context.Context, id string) (*types.HistoricRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM benchmark_runs WHERE id = %s`, runColumns, s.ph(1))
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT bench, value, unit, range_text, extra
		FROM benchmark_results WHERE run_id = `+s.ph(1)+` ORDER BY bench`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b types.Bench
		if err := rows.Scan(&b.Name, &b.Value, &b.Unit, &b.Range, &b.Extra); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		run.Benches = append(run.Benches, b)
	}
	return run, rows.Err()
}

func (s *sqlStore) ListRuns(ctx context.Context, filter types.RunFilter) ([]*types.HistoricRun, error) {
	w := &whereBuilder{d: s.d}
	if filter.Suite != "" {
		w.add("suite = %s", filter.Suite)
	}
	if filter.CommitID != "" {
		w.add("commit_id LIKE %s", filter.CommitID+"%")
	}
	if filter.Tool != "" {
		w.add("tool = %s", filter.Tool)
	}
	if !filter.Since.IsZero() {
		w.add("timestamp >= %s", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		w.add("timestamp < %s", filter.Until.UTC())
	}

	query := fmt.Sprintf(`SELECT %s FROM benchmark_runs%s ORDER BY timestamp DESC, id DESC`, runColumns, w)
	query += s.limitOffset(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.HistoricRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *sqlStore) limitOffset(limit, offset int) string {
	var out string
	if limit > 0 {
		out += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		if limit <= 0 && !s.d.numbered {
			// sqlite requires a LIMIT before OFFSET
			out += " LIMIT -1"
		}
		out += fmt.Sprintf(" OFFSET %d", offset)
	}
	return out
}

func (s *sqlStore) ListSuites(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT suite FROM benchmark_runs ORDER BY suite`)
	if err != nil {
		return nil, fmt.Errorf("failed to list suites: %w", err)
	}
	defer rows.Close()

	var suites []string
	for rows.Next() {
		var suite string
		if err := rows.Scan(&suite); err != nil {
			return nil, err
		}
		suites = append(suites, suite)
	}
	return suites, rows.Err()
}

func (s *sqlStore) DeleteRun(ctx context.Context, id string) error {
	var deleted int64
	err := withRetryableTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, table := range []string{"benchmark_alerts", "benchmark_results"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = `+s.ph(1), id); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM benchmark_runs WHERE id = `+s.ph(1), id)
		if err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqlStore) DeleteOldRuns(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	var count int64
	err := withRetryableTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		sub := `SELECT id FROM benchmark_runs WHERE timestamp < ` + s.ph(1)
		for _, table := range []string{"benchmark_alerts", "benchmark_results"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id IN (`+sub+`)`, before); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM benchmark_runs WHERE timestamp < `+s.ph(1), before)
		if err != nil {
			return fmt.Errorf("failed to delete old runs: %w", err)
		}
		count, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithField("deleted_count", count).Info("Deleted old runs")
	return count, nil
}

func (s *sqlStore) QuerySeries(ctx context.Context, q types.SeriesQuery) ([]types.BenchPoint, error) {
	w := &whereBuilder{d: s.d}
	w.add("suite = %s", q.Suite)
	w.add("bench = %s", q.Bench)
	if !q.Since.IsZero() {
		w.add("time >= %s", q.Since.UTC())
	}

	// newest first so LIMIT keeps the latest points, reversed below
	query := `SELECT time, commit_id, value, unit, run_id FROM benchmark_results` + w.String() +
		` ORDER BY time DESC, run_id DESC` + s.limitOffset(q.Limit, 0)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	var points []types.BenchPoint
	for rows.Next() {
		var p types.BenchPoint
		if err := rows.Scan(&p.Timestamp, &p.CommitID, &p.Value, &p.Unit, &p.RunID); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

func (s *sqlStore) QueryMetrics(ctx context.Context, filter types.RunFilter) ([]types.TimeSeriesMetric, error) {
	w := &whereBuilder{d: s.d}
	if filter.Suite != "" {
		w.add("suite = %s", filter.Suite)
	}
	if filter.CommitID != "" {
		w.add("commit_id LIKE %s", filter.CommitID+"%")
	}
	if !filter.Since.IsZero() {
		w.add("time >= %s", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		w.add("time < %s", filter.Until.UTC())
	}

	query := `SELECT time, run_id, suite, commit_id, bench, value, unit, iterations, cpu_time, threads
		FROM benchmark_results` + w.String() + ` ORDER BY time, run_id, bench` + s.limitOffset(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []types.TimeSeriesMetric
	for rows.Next() {
		var m types.TimeSeriesMetric
		if err := rows.Scan(&m.Time, &m.RunID, &m.Suite, &m.CommitID, &m.Bench, &m.Value, &m.Unit,
			&m.Iterations, &m.CPUTime, &m.Threads); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		m.Time = m.Time.UTC()
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

const alertColumns = `id, run_id, suite, bench, unit, commit_id, base_commit_id, base_value,
	current_value, ratio, percent_change, severity, comparison_mode, detected_at,
	acknowledged_at, acknowledged_by`

func (s *sqlStore) SaveAlerts(ctx context.Context, alerts []*types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	err := withRetryableTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO benchmark_alerts (%s) VALUES (%s)`, alertColumns, s.d.Placeholders(1, 16)))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, a := range alerts {
			var ackAt sql.NullTime
			if a.AcknowledgedAt != nil {
				ackAt = sql.NullTime{Time: a.AcknowledgedAt.UTC(), Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				a.ID, a.RunID, a.Suite, a.Bench, a.Unit, a.CommitID, a.BaseCommitID, a.BaseValue,
				a.CurrentValue, a.Ratio, a.PercentChange, a.Severity, a.ComparisonMode, a.DetectedAt.UTC(),
				ackAt, a.AcknowledgedBy,
			)
			if err != nil {
				return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithField("count", len(alerts)).Info("Saved alerts")
	return nil
}

func (s *sqlStore) GetAlerts(ctx context.Context, runID string) ([]*types.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM benchmark_alerts WHERE run_id = %s ORDER BY ratio DESC, bench`,
		alertColumns, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*types.Alert
	for rows.Next() {
		var a types.Alert
		var ackAt sql.NullTime
		if err := rows.Scan(
			&a.ID, &a.RunID, &a.Suite, &a.Bench, &a.Unit, &a.CommitID, &a.BaseCommitID, &a.BaseValue,
			&a.CurrentValue, &a.Ratio, &a.PercentChange, &a.Severity, &a.ComparisonMode, &a.DetectedAt,
			&ackAt, &a.AcknowledgedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.DetectedAt = a.DetectedAt.UTC()
		if ackAt.Valid {
			t := ackAt.Time.UTC()
			a.AcknowledgedAt = &t
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (s *sqlStore) AcknowledgeAlert(ctx context.Context, id, by string) error {
	query := fmt.Sprintf(`UPDATE benchmark_alerts SET acknowledged_at = %s, acknowledged_by = %s WHERE id = %s`,
		s.ph(1), s.ph(2), s.ph(3))
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), by, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}

	s.log.WithFields(logrus.Fields{
		"alert_id":        id,
		"acknowledged_by": by,
	}).Info("Alert acknowledged")
	return nil
}
