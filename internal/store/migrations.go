package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS datasets (
    name TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK (kind IN ('observed', 'simulated')),
    source TEXT,
    imported_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
    dataset TEXT NOT NULL REFERENCES datasets(name) ON DELETE CASCADE,
    date DATE NOT NULL,
    temperature_min REAL,
    temperature_max REAL,
    precipitation REAL,
    quality_flags TEXT,
    PRIMARY KEY (dataset, date)
);
`,
	},
	{
		Version:     2,
		Description: "Import audit and raw files",
		SQL: `
CREATE TABLE IF NOT EXISTS import_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    dataset TEXT NOT NULL,
    source TEXT NOT NULL,
    location TEXT,
    size_bytes INTEGER,
    records_parsed INTEGER,
    records_stored INTEGER,
    records_flagged INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_import_runs_started ON import_runs(started_at);

CREATE TABLE IF NOT EXISTS raw_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    import_run_id INTEGER REFERENCES import_runs(id),
    fetched_at DATETIME NOT NULL,
    dataset TEXT NOT NULL,
    location TEXT,
    content_compressed BLOB NOT NULL,
    content_hash TEXT NOT NULL UNIQUE
);
`,
	},
	{
		Version:     3,
		Description: "Correction runs",
		SQL: `
CREATE TABLE IF NOT EXISTS correction_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sim_dataset TEXT NOT NULL,
    obs_dataset TEXT NOT NULL,
    window_start DATE NOT NULL,
    window_end DATE NOT NULL,
    created_at DATETIME NOT NULL,
    duration_ms INTEGER
);

CREATE TABLE IF NOT EXISTS correction_metrics (
    run_id INTEGER NOT NULL REFERENCES correction_runs(id) ON DELETE CASCADE,
    variable TEXT NOT NULL,
    sample_size INTEGER NOT NULL,
    rmse_sim REAL NOT NULL,
    rmse_corr REAL NOT NULL,
    bias_sim REAL NOT NULL,
    bias_corr REAL NOT NULL,
    mean_observed REAL NOT NULL,
    mean_simulated REAL NOT NULL,
    mean_corrected REAL NOT NULL,
    PRIMARY KEY (run_id, variable)
);

CREATE INDEX IF NOT EXISTS idx_correction_runs_created ON correction_runs(created_at);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
