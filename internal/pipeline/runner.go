package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jonboulle/clockwork"

	"github.com/lox/biascorrect/internal/correction"
	"github.com/lox/biascorrect/internal/dataset"
	"github.com/lox/biascorrect/internal/metrics"
	"github.com/lox/biascorrect/internal/models"
	"github.com/lox/biascorrect/internal/store"
)

// ErrDatasetNotFound is returned when a named dataset does not exist or has
// the wrong kind.
var ErrDatasetNotFound = errors.New("dataset not found")

// Request selects the datasets and window for a correction run.
type Request struct {
	Simulated string
	Observed  string
	Window    dataset.Window
}

// Outcome is a persisted run together with the full per-variable series.
type Outcome struct {
	Run     models.CorrectionRun
	Results []correction.Result
}

// Result returns the result for a variable, if present.
func (o *Outcome) Result(v models.Variable) (correction.Result, bool) {
	for _, r := range o.Results {
		if r.Series.Variable == v {
			return r, true
		}
	}
	return correction.Result{}, false
}

// Runner corrects stored simulated datasets against stored observations.
type Runner struct {
	store *store.Store
	clock clockwork.Clock
}

func NewRunner(s *store.Store) *Runner {
	return &Runner{store: s, clock: clockwork.NewRealClock()}
}

// SetClock replaces the clock used for run timestamps and durations.
func (r *Runner) SetClock(c clockwork.Clock) {
	r.clock = c
}

// Run loads both datasets, aligns them over the window, corrects every
// variable and records the run. With persist false the run is computed but
// not stored (used for previews such as exports and heatmaps).
func (r *Runner) Run(ctx context.Context, req Request, persist bool) (*Outcome, error) {
	start := r.clock.Now()

	if err := r.checkDataset(req.Simulated, models.KindSimulated); err != nil {
		return nil, err
	}
	if err := r.checkDataset(req.Observed, models.KindObserved); err != nil {
		return nil, err
	}

	sim, err := r.store.GetRecords(req.Simulated, req.Window.Start, req.Window.End)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", req.Simulated, err)
	}
	obs, err := r.store.GetRecords(req.Observed, req.Window.Start, req.Window.End)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", req.Observed, err)
	}

	aligned, err := dataset.Align(sim, obs, req.Window)
	if err != nil {
		return nil, err
	}

	results, err := correction.CorrectAll(ctx, aligned)
	if err != nil {
		for _, s := range aligned {
			metrics.CorrectionsTotal.WithLabelValues(string(s.Variable), "error").Inc()
		}
		return nil, err
	}

	out := &Outcome{
		Run: models.CorrectionRun{
			SimDataset: req.Simulated,
			ObsDataset: req.Observed,
			CreatedAt:  start.UTC(),
			DurationMS: r.clock.Since(start).Milliseconds(),
		},
		Results: results,
	}
	// report the span actually corrected, not the requested bounds
	dates := out.Dates()
	out.Run.WindowStart = dates[0]
	out.Run.WindowEnd = dates[len(dates)-1]
	for _, res := range results {
		out.Run.Variables = append(out.Run.Variables, res.VariableRun())
		metrics.CorrectionsTotal.WithLabelValues(string(res.Series.Variable), "ok").Inc()
	}
	metrics.CorrectionLatency.Observe(r.clock.Since(start).Seconds())

	if !persist {
		return out, nil
	}
	if err := r.store.InsertCorrectionRun(&out.Run); err != nil {
		return nil, fmt.Errorf("store run: %w", err)
	}
	for _, res := range results {
		v := string(res.Series.Variable)
		metrics.RMSE.WithLabelValues(v, "simulated").Set(res.Performance.RMSESim)
		metrics.RMSE.WithLabelValues(v, "corrected").Set(res.Performance.RMSECorr)
		metrics.Bias.WithLabelValues(v, "simulated").Set(res.Performance.BiasSim)
		metrics.Bias.WithLabelValues(v, "corrected").Set(res.Performance.BiasCorr)
		if res.Series.Missing > 0 {
			log.Printf("correct: run %d %s skipped %d dates with missing values", out.Run.ID, v, res.Series.Missing)
		}
	}
	log.Printf("correct: run %d %s vs %s, %s to %s, %d days",
		out.Run.ID, req.Simulated, req.Observed,
		out.Run.WindowStart.Format("2006-01-02"), out.Run.WindowEnd.Format("2006-01-02"), len(dates))
	return out, nil
}

func (r *Runner) checkDataset(name string, kind models.DatasetKind) error {
	if name == "" {
		return fmt.Errorf("%w: %s dataset name required", correction.ErrInvalidInput, kind)
	}
	ds, err := r.store.GetDataset(name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}
	if ds == nil {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
	}
	if ds.Kind != kind {
		return fmt.Errorf("%w: %s is %s, want %s", ErrDatasetNotFound, name, ds.Kind, kind)
	}
	return nil
}
