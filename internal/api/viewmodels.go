package api

import (
	"time"

	"github.com/lox/biascorrect/internal/correction"
	"github.com/lox/biascorrect/internal/models"
)

type correctRequest struct {
	Variable  models.Variable `json:"variable,omitempty"`
	Observed  []float64       `json:"observed"`
	Simulated []float64       `json:"simulated"`
}

type correctResponse struct {
	Variable    models.Variable    `json:"variable,omitempty"`
	Corrected   []float64          `json:"corrected"`
	Performance models.Performance `json:"performance"`
	Means       models.Means       `json:"means"`
}

type datasetView struct {
	Name       string             `json:"name"`
	Kind       models.DatasetKind `json:"kind"`
	Source     string             `json:"source,omitempty"`
	RowCount   int                `json:"row_count"`
	FirstDate  string             `json:"first_date,omitempty"`
	LastDate   string             `json:"last_date,omitempty"`
	ImportedAt time.Time          `json:"imported_at"`
}

func newDatasetView(d models.Dataset) datasetView {
	v := datasetView{
		Name:       d.Name,
		Kind:       d.Kind,
		Source:     d.Source,
		RowCount:   d.RowCount,
		ImportedAt: d.ImportedAt,
	}
	if d.FirstDate.Valid {
		v.FirstDate = d.FirstDate.Time.Format(dateLayout)
	}
	if d.LastDate.Valid {
		v.LastDate = d.LastDate.Time.Format(dateLayout)
	}
	return v
}

type variableView struct {
	Variable    models.Variable    `json:"variable"`
	Units       string             `json:"units"`
	SampleSize  int                `json:"sample_size"`
	Performance models.Performance `json:"performance"`
	Means       models.Means       `json:"means"`
}

type runView struct {
	ID          int64          `json:"id,omitempty"`
	Simulated   string         `json:"simulated"`
	Observed    string         `json:"observed"`
	WindowStart string         `json:"window_start"`
	WindowEnd   string         `json:"window_end"`
	CreatedAt   time.Time      `json:"created_at"`
	DurationMS  int64          `json:"duration_ms"`
	Variables   []variableView `json:"variables"`
	Narrative   string         `json:"narrative,omitempty"`
	Series      []seriesView   `json:"series,omitempty"`
}

type seriesView struct {
	Variable  models.Variable `json:"variable"`
	Dates     []string        `json:"dates"`
	Observed  []float64       `json:"observed"`
	Simulated []float64       `json:"simulated"`
	Corrected []float64       `json:"corrected"`
	Missing   int             `json:"missing,omitempty"` // window dates left out for a missing value
}

const dateLayout = "2006-01-02"

func newRunView(run models.CorrectionRun) runView {
	v := runView{
		ID:          run.ID,
		Simulated:   run.SimDataset,
		Observed:    run.ObsDataset,
		WindowStart: run.WindowStart.Format(dateLayout),
		WindowEnd:   run.WindowEnd.Format(dateLayout),
		CreatedAt:   run.CreatedAt,
		DurationMS:  run.DurationMS,
	}
	for _, vr := range run.Variables {
		v.Variables = append(v.Variables, variableView{
			Variable:    vr.Variable,
			Units:       vr.Variable.Units(),
			SampleSize:  vr.SampleSize,
			Performance: vr.Performance,
			Means:       vr.Means,
		})
	}
	return v
}

func newSeriesView(r correction.Result) seriesView {
	dates := make([]string, len(r.Series.Dates))
	for i, d := range r.Series.Dates {
		dates[i] = d.Format(dateLayout)
	}
	return seriesView{
		Variable:  r.Series.Variable,
		Dates:     dates,
		Observed:  r.Series.Observed,
		Simulated: r.Series.Simulated,
		Corrected: r.Corrected,
		Missing:   r.Series.Missing,
	}
}
