package store

import (
	"database/sql"
	"time"
)

// ImportRun records a single file import for auditing.
type ImportRun struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     sql.NullTime
	Dataset        string
	Source         string // "file", "ftp", "upload"
	Location       sql.NullString
	SizeBytes      sql.NullInt64
	RecordsParsed  sql.NullInt64
	RecordsStored  sql.NullInt64
	RecordsFlagged sql.NullInt64 // records carrying at least one quality flag
	Success        bool
	ErrorMessage   sql.NullString
}

// StartImportRun creates a new import run record and returns it.
func (s *Store) StartImportRun(dataset, source, location string) (*ImportRun, error) {
	run := &ImportRun{
		StartedAt: time.Now().UTC(),
		Dataset:   dataset,
		Source:    source,
		Location:  sql.NullString{String: location, Valid: location != ""},
	}

	result, err := s.db.Exec(`
		INSERT INTO import_runs (started_at, dataset, source, location, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.StartedAt, run.Dataset, run.Source, run.Location)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteImportRun updates the import run with results.
func (s *Store) CompleteImportRun(run *ImportRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE import_runs SET
			finished_at = ?,
			size_bytes = ?,
			records_parsed = ?,
			records_stored = ?,
			records_flagged = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.SizeBytes, run.RecordsParsed, run.RecordsStored,
		run.RecordsFlagged, run.Success, run.ErrorMessage, run.ID)
	return err
}

// GetRecentImportErrors returns recent failed import runs.
func (s *Store) GetRecentImportErrors(limit int) ([]ImportRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, dataset, source, location,
			   size_bytes, records_parsed, records_stored, records_flagged,
			   success, error_message
		FROM import_runs
		WHERE success = FALSE
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ImportRun
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Dataset, &r.Source,
			&r.Location, &r.SizeBytes, &r.RecordsParsed, &r.RecordsStored, &r.RecordsFlagged,
			&r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
