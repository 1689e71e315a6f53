package pipeline

import (
	"io"
	"sort"
	"time"

	"github.com/lox/biascorrect/internal/dataset"
	"github.com/lox/biascorrect/internal/models"
)

// WriteCSV writes the simulated rows with a corrected column per variable.
func (o *Outcome) WriteCSV(w io.Writer) error {
	columns := make(map[models.Variable]dataset.CorrectedColumn, len(o.Results))
	for _, r := range o.Results {
		columns[r.Series.Variable] = dataset.CorrectedColumn{
			Dates:     r.Series.Dates,
			Simulated: r.Series.Simulated,
			Corrected: r.Corrected,
		}
	}
	return dataset.WriteCorrectedCSV(w, columns)
}

// Dates returns every date corrected for at least one variable, in order.
func (o *Outcome) Dates() []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, r := range o.Results {
		for _, d := range r.Series.Dates {
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
