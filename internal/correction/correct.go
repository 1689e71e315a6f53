package correction

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lox/biascorrect/internal/models"
)

// Result is the outcome of correcting one variable.
type Result struct {
	Series      models.AlignedSeries
	Corrected   []float64
	Performance models.Performance
	Means       models.Means
}

// Deviations returns corrected minus observed for each date.
func (r Result) Deviations() []float64 {
	d := make([]float64, len(r.Corrected))
	for i := range r.Corrected {
		d[i] = r.Corrected[i] - r.Series.Observed[i]
	}
	return d
}

// VariableRun summarises the result for persistence.
func (r Result) VariableRun() models.VariableRun {
	return models.VariableRun{
		Variable:    r.Series.Variable,
		SampleSize:  len(r.Corrected),
		Performance: r.Performance,
		Means:       r.Means,
	}
}

// Correct quantile-maps one aligned variable and evaluates the result.
func Correct(s models.AlignedSeries) (Result, error) {
	if len(s.Simulated) != len(s.Observed) || len(s.Dates) != len(s.Observed) {
		return Result{}, fmt.Errorf("%s: %w: dates=%d observed=%d simulated=%d",
			s.Variable, ErrLengthMismatch, len(s.Dates), len(s.Observed), len(s.Simulated))
	}

	corrected, err := QuantileMap(s.Simulated, s.Observed)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", s.Variable, err)
	}
	perf, err := Evaluate(s.Observed, s.Simulated, corrected)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", s.Variable, err)
	}
	means, err := ComputeMeans(s.Observed, s.Simulated, corrected)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", s.Variable, err)
	}

	return Result{
		Series:      s,
		Corrected:   corrected,
		Performance: perf,
		Means:       means,
	}, nil
}

// CorrectAll corrects each variable concurrently. Results are returned in the
// order of the input; the first failure cancels the remaining work.
func CorrectAll(ctx context.Context, series []models.AlignedSeries) ([]Result, error) {
	results := make([]Result, len(series))
	g, ctx := errgroup.WithContext(ctx)
	for i, s := range series {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := Correct(s)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
