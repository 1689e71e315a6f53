package store

import (
	"database/sql"
	"fmt"

	"github.com/lox/biascorrect/internal/models"
)

// InsertCorrectionRun stores a run with its per-variable metrics and sets
// run.ID.
func (s *Store) InsertCorrectionRun(run *models.CorrectionRun) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO correction_runs (sim_dataset, obs_dataset, window_start, window_end, created_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.SimDataset, run.ObsDataset, dayUTC(run.WindowStart), dayUTC(run.WindowEnd), run.CreatedAt.UTC(), run.DurationMS)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, v := range run.Variables {
		if _, err := tx.Exec(`
			INSERT INTO correction_metrics (run_id, variable, sample_size, rmse_sim, rmse_corr, bias_sim, bias_corr, mean_observed, mean_simulated, mean_corrected)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, string(v.Variable), v.SampleSize,
			v.Performance.RMSESim, v.Performance.RMSECorr, v.Performance.BiasSim, v.Performance.BiasCorr,
			v.Means.Observed, v.Means.Simulated, v.Means.Corrected); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert metrics %s: %w", v.Variable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	run.ID = id
	return nil
}

// GetCorrectionRun returns a run by ID, or nil if it does not exist.
func (s *Store) GetCorrectionRun(id int64) (*models.CorrectionRun, error) {
	row := s.db.QueryRow(`
		SELECT id, sim_dataset, obs_dataset, window_start, window_end, created_at, duration_ms
		FROM correction_runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if run.Variables, err = s.getRunMetrics(run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// ListCorrectionRuns returns the most recent runs first.
func (s *Store) ListCorrectionRuns(limit int) ([]models.CorrectionRun, error) {
	rows, err := s.db.Query(`
		SELECT id, sim_dataset, obs_dataset, window_start, window_end, created_at, duration_ms
		FROM correction_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}

	var runs []models.CorrectionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range runs {
		if runs[i].Variables, err = s.getRunMetrics(runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.CorrectionRun, error) {
	var run models.CorrectionRun
	var duration sql.NullInt64
	if err := sc.Scan(&run.ID, &run.SimDataset, &run.ObsDataset, &run.WindowStart, &run.WindowEnd, &run.CreatedAt, &duration); err != nil {
		return nil, err
	}
	run.DurationMS = duration.Int64
	return &run, nil
}

func (s *Store) getRunMetrics(runID int64) ([]models.VariableRun, error) {
	rows, err := s.db.Query(`
		SELECT variable, sample_size, rmse_sim, rmse_corr, bias_sim, bias_corr, mean_observed, mean_simulated, mean_corrected
		FROM correction_metrics
		WHERE run_id = ?
		ORDER BY CASE variable
			WHEN 'temperature_min' THEN 0
			WHEN 'temperature_max' THEN 1
			WHEN 'precipitation' THEN 2
			ELSE 3 END
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vars []models.VariableRun
	for rows.Next() {
		var v models.VariableRun
		var variable string
		if err := rows.Scan(&variable, &v.SampleSize,
			&v.Performance.RMSESim, &v.Performance.RMSECorr, &v.Performance.BiasSim, &v.Performance.BiasCorr,
			&v.Means.Observed, &v.Means.Simulated, &v.Means.Corrected); err != nil {
			return nil, err
		}
		v.Variable = models.Variable(variable)
		vars = append(vars, v)
	}
	return vars, rows.Err()
}
