package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/biascorrect/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) UpsertDataset(d models.Dataset) error {
	if !d.Kind.Valid() {
		return fmt.Errorf("dataset %s: invalid kind %q", d.Name, d.Kind)
	}
	importedAt := d.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO datasets (name, kind, source, imported_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			source = excluded.source,
			imported_at = excluded.imported_at
	`, d.Name, string(d.Kind), d.Source, importedAt)
	return err
}

// GetDataset returns the dataset with its record count and date span, or nil
// if it does not exist.
func (s *Store) GetDataset(name string) (*models.Dataset, error) {
	var d models.Dataset
	var kind string
	var source sql.NullString
	err := s.db.QueryRow(`SELECT name, kind, source, imported_at FROM datasets WHERE name = ?`, name).
		Scan(&d.Name, &kind, &source, &d.ImportedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Kind = models.DatasetKind(kind)
	d.Source = source.String

	if err := s.fillSpan(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDatasets() ([]models.Dataset, error) {
	rows, err := s.db.Query(`SELECT name, kind, source, imported_at FROM datasets ORDER BY name`)
	if err != nil {
		return nil, err
	}

	var datasets []models.Dataset
	for rows.Next() {
		var d models.Dataset
		var kind string
		var source sql.NullString
		if err := rows.Scan(&d.Name, &kind, &source, &d.ImportedAt); err != nil {
			rows.Close()
			return nil, err
		}
		d.Kind = models.DatasetKind(kind)
		d.Source = source.String
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range datasets {
		if err := s.fillSpan(&datasets[i]); err != nil {
			return nil, err
		}
	}
	return datasets, nil
}

func (s *Store) fillSpan(d *models.Dataset) error {
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records WHERE dataset = ?`, d.Name).Scan(&d.RowCount); err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	if d.RowCount == 0 {
		return nil
	}
	if err := s.db.QueryRow(`SELECT date FROM records WHERE dataset = ? ORDER BY date ASC LIMIT 1`, d.Name).
		Scan(&d.FirstDate); err != nil {
		return fmt.Errorf("first date: %w", err)
	}
	if err := s.db.QueryRow(`SELECT date FROM records WHERE dataset = ? ORDER BY date DESC LIMIT 1`, d.Name).
		Scan(&d.LastDate); err != nil {
		return fmt.Errorf("last date: %w", err)
	}
	return nil
}

// UpsertRecords writes records for a dataset in a single transaction,
// replacing existing values for the same date.
func (s *Store) UpsertRecords(dataset string, records []models.DailyRecord) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO records (dataset, date, temperature_min, temperature_max, precipitation, quality_flags)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset, date) DO UPDATE SET
			temperature_min = excluded.temperature_min,
			temperature_max = excluded.temperature_max,
			precipitation = excluded.precipitation,
			quality_flags = excluded.quality_flags
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	stored := 0
	for _, r := range records {
		flags := sql.NullString{String: r.QualityFlags, Valid: r.QualityFlags != ""}
		if _, err := stmt.Exec(dataset, dayUTC(r.Date), r.TempMin, r.TempMax, r.Precip, flags); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("upsert %s %s: %w", dataset, r.Date.Format("2006-01-02"), err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit records: %w", err)
	}
	return stored, nil
}

// GetRecords returns the dataset's records in date order. A zero start or end
// leaves that side of the range open.
func (s *Store) GetRecords(dataset string, start, end time.Time) ([]models.DailyRecord, error) {
	query := `SELECT date, temperature_min, temperature_max, precipitation, quality_flags FROM records WHERE dataset = ?`
	args := []any{dataset}
	if !start.IsZero() {
		query += ` AND date >= ?`
		args = append(args, dayUTC(start))
	}
	if !end.IsZero() {
		query += ` AND date <= ?`
		args = append(args, dayUTC(end))
	}
	query += ` ORDER BY date ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DailyRecord
	for rows.Next() {
		var r models.DailyRecord
		var flags sql.NullString
		if err := rows.Scan(&r.Date, &r.TempMin, &r.TempMax, &r.Precip, &flags); err != nil {
			return nil, err
		}
		r.Date = dayUTC(r.Date)
		r.QualityFlags = flags.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteDataset removes a dataset and its records.
func (s *Store) DeleteDataset(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM records WHERE dataset = ?`, name); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM datasets WHERE name = ?`, name); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete dataset: %w", err)
	}
	return tx.Commit()
}

func dayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
