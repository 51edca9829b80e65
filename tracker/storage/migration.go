package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version int
	SQL     string
}

// Migrations returns the schema history for a dialect
func Migrations(d Dialect) []Migration {
	return []Migration{
		{Version: 1, SQL: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS benchmark_runs (
    id VARCHAR(64) PRIMARY KEY,
    suite VARCHAR(255) NOT NULL,
    timestamp %[1]s NOT NULL,
    commit_id VARCHAR(64) NOT NULL,
    commit_message TEXT NOT NULL DEFAULT '',
    commit_url TEXT NOT NULL DEFAULT '',
    commit_author VARCHAR(255) NOT NULL DEFAULT '',
    tool VARCHAR(64) NOT NULL,
    bench_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS benchmark_results (
    run_id VARCHAR(64) NOT NULL REFERENCES benchmark_runs(id) ON DELETE CASCADE,
    suite VARCHAR(255) NOT NULL,
    time %[1]s NOT NULL,
    commit_id VARCHAR(64) NOT NULL,
    bench VARCHAR(512) NOT NULL,
    value %[2]s NOT NULL,
    unit VARCHAR(64) NOT NULL DEFAULT '',
    range_text VARCHAR(255) NOT NULL DEFAULT '',
    extra TEXT NOT NULL DEFAULT '',
    iterations %[3]s NOT NULL DEFAULT 0,
    cpu_time %[2]s NOT NULL DEFAULT 0,
    threads INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, bench)
);`, d.Timestamp, d.Float, d.BigInt)},

		{Version: 2, SQL: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS benchmark_alerts (
    id VARCHAR(64) PRIMARY KEY,
    run_id VARCHAR(64) NOT NULL REFERENCES benchmark_runs(id) ON DELETE CASCADE,
    suite VARCHAR(255) NOT NULL,
    bench VARCHAR(512) NOT NULL,
    unit VARCHAR(64) NOT NULL DEFAULT '',
    commit_id VARCHAR(64) NOT NULL,
    base_commit_id VARCHAR(64) NOT NULL,
    base_value %[2]s NOT NULL,
    current_value %[2]s NOT NULL,
    ratio %[2]s NOT NULL,
    percent_change %[2]s NOT NULL,
    severity VARCHAR(16) NOT NULL,
    comparison_mode VARCHAR(32) NOT NULL,
    detected_at %[1]s NOT NULL,
    acknowledged_at %[1]s NULL,
    acknowledged_by VARCHAR(255) NOT NULL DEFAULT ''
);`, d.Timestamp, d.Float)},

		{Version: 3, SQL: `
CREATE INDEX IF NOT EXISTS idx_runs_suite_timestamp ON benchmark_runs(suite, timestamp);
CREATE INDEX IF NOT EXISTS idx_runs_commit ON benchmark_runs(commit_id);
CREATE INDEX IF NOT EXISTS idx_results_suite_bench_time ON benchmark_results(suite, bench, time);
CREATE INDEX IF NOT EXISTS idx_alerts_run_id ON benchmark_alerts(run_id);`},

		{Version: 4, SQL: fmt.Sprintf(`
ALTER TABLE benchmark_runs ADD COLUMN hostname VARCHAR(255) NOT NULL DEFAULT '';
ALTER TABLE benchmark_runs ADD COLUMN os VARCHAR(64) NOT NULL DEFAULT '';
ALTER TABLE benchmark_runs ADD COLUMN platform VARCHAR(255) NOT NULL DEFAULT '';
ALTER TABLE benchmark_runs ADD COLUMN cpu_model VARCHAR(255) NOT NULL DEFAULT '';
ALTER TABLE benchmark_runs ADD COLUMN logical_cpus INTEGER NOT NULL DEFAULT 0;
ALTER TABLE benchmark_runs ADD COLUMN total_memory %s NOT NULL DEFAULT 0;`, d.BigInt)},
	}
}

// RunMigrations applies every migration not yet recorded in schema_migrations
func RunMigrations(ctx context.Context, db *sql.DB, d Dialect, log logrus.FieldLogger) (int, error) {
	log = log.WithField("component", "migration")

	if err := createMigrationTable(ctx, db, d); err != nil {
		return 0, fmt.Errorf("failed to create migration table: %w", err)
	}

	applied := 0
	for _, m := range Migrations(d) {
		done, err := isMigrationApplied(ctx, db, d, m.Version)
		if err != nil {
			return applied, err
		}
		if done {
			log.WithField("version", m.Version).Debug("Migration already applied")
			continue
		}

		log.WithField("version", m.Version).Info("Applying migration")
		if err := applyMigration(ctx, db, d, m); err != nil {
			return applied, fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		applied++
	}
	return applied, nil
}

// SchemaVersion returns the highest applied migration, 0 when none
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func createMigrationTable(ctx context.Context, db *sql.DB, d Dialect) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at %s DEFAULT CURRENT_TIMESTAMP
	)`, d.Timestamp)
	_, err := db.ExecContext(ctx, query)
	return err
}

func isMigrationApplied(ctx context.Context, db *sql.DB, d Dialect, version int) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM schema_migrations WHERE version = ` + d.Placeholder(1)
	if err := db.QueryRowContext(ctx, query, version).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func applyMigration(ctx context.Context, db *sql.DB, d Dialect, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (`+d.Placeholder(1)+`)`, m.Version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
