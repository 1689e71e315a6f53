package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/biascorrect/internal/correction"
	"github.com/lox/biascorrect/internal/dataset"
	"github.com/lox/biascorrect/internal/imagegen"
	"github.com/lox/biascorrect/internal/ingest"
	"github.com/lox/biascorrect/internal/models"
	"github.com/lox/biascorrect/internal/pipeline"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// handleCorrect corrects a single pair of series supplied in the request
// body, without touching stored datasets.
func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req correctRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.Variable != "" && !req.Variable.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown variable %q", req.Variable))
		return
	}
	// the evaluator pairs values by index, so reject before mapping
	if len(req.Observed) != len(req.Simulated) {
		writeErr(w, fmt.Errorf("%w: observed=%d simulated=%d",
			correction.ErrLengthMismatch, len(req.Observed), len(req.Simulated)))
		return
	}

	corrected, err := correction.QuantileMap(req.Simulated, req.Observed)
	if err != nil {
		writeErr(w, err)
		return
	}
	perf, err := correction.Evaluate(req.Observed, req.Simulated, corrected)
	if err != nil {
		writeErr(w, err)
		return
	}
	means, err := correction.ComputeMeans(req.Observed, req.Simulated, corrected)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, correctResponse{
		Variable:    req.Variable,
		Corrected:   corrected,
		Performance: perf,
		Means:       means,
	})
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.store.ListDatasets()
	if err != nil {
		writeErr(w, err)
		return
	}
	views := make([]datasetView, 0, len(datasets))
	for _, d := range datasets {
		views = append(views, newDatasetView(d))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleUploadDataset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	kind := models.DatasetKind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "kind must be observed or simulated")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	result, err := s.importer.ImportReader(name, kind, ingest.SourceUpload, "", body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeErr(w, err)
		return
	}
	s.purgeHeatmaps()
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ds, err := s.store.GetDataset(name)
	if err != nil {
		writeErr(w, err)
		return
	}
	if ds == nil {
		writeError(w, http.StatusNotFound, "dataset not found")
		return
	}
	if err := s.store.DeleteDataset(name); err != nil {
		writeErr(w, err)
		return
	}
	s.purgeHeatmaps()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.store.ListCorrectionRuns(limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newRunView(run))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.store.GetCorrectionRun(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, newRunView(*run))
}

// handleCreateRun corrects stored datasets over a window and records the run.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	out, err := s.runner.Run(r.Context(), req, true)
	if err != nil {
		writeErr(w, err)
		return
	}

	view := newRunView(out.Run)
	view.Narrative = s.summarizer.SummarizeOrFallback(r.Context(), out.Run.Variables)
	if r.URL.Query().Get("series") != "false" {
		for _, res := range out.Results {
			view.Series = append(view.Series, newSeriesView(res))
		}
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	out, err := s.runner.Run(r.Context(), req, false)
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", req.Simulated+"_corrected.csv"))
	if err := out.WriteCSV(w); err != nil {
		writeErr(w, err)
	}
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	variable := models.Variable(r.URL.Query().Get("variable"))
	if variable == "" {
		variable = models.TempMin
	}
	if !variable.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown variable %q", variable))
		return
	}

	key, err := s.heatmapKey(req, variable)
	if err != nil {
		writeErr(w, err)
		return
	}
	if s.heatmaps != nil {
		if data, ok := s.heatmaps.Get(key); ok {
			writePNG(w, data)
			return
		}
	}

	out, err := s.runner.Run(r.Context(), req, false)
	if err != nil {
		writeErr(w, err)
		return
	}
	res, ok := out.Result(variable)
	if !ok {
		writeError(w, http.StatusNotFound, "variable not in run")
		return
	}

	data, err := imagegen.RenderHeatmap(res.Series.Dates, res.Deviations(), imagegen.HeatmapOptions{
		Title: fmt.Sprintf("%s: corrected - observed", variable),
		Units: variable.Units(),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	if s.heatmaps != nil {
		if err := s.heatmaps.Set(key, data); err != nil {
			log.Printf("api: cache heatmap: %v", err)
		}
	}
	writePNG(w, data)
}

// heatmapKey identifies a rendered heatmap. The import time of both datasets
// is part of the key so a re-import from any path misses the cache.
func (s *Server) heatmapKey(req pipeline.Request, variable models.Variable) (string, error) {
	parts := []string{string(variable), formatDay(req.Window.Start), formatDay(req.Window.End)}
	for _, name := range []string{req.Simulated, req.Observed} {
		ds, err := s.store.GetDataset(name)
		if err != nil {
			return "", fmt.Errorf("lookup %s: %w", name, err)
		}
		if ds == nil {
			return "", fmt.Errorf("%w: %s", pipeline.ErrDatasetNotFound, name)
		}
		parts = append(parts, ds.Name,
			strconv.FormatInt(ds.ImportedAt.UnixNano(), 10), strconv.Itoa(ds.RowCount))
	}
	return imagegen.Key(parts...), nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}

func parseRunRequest(r *http.Request) (pipeline.Request, error) {
	q := r.URL.Query()
	req := pipeline.Request{
		Simulated: q.Get("sim"),
		Observed:  q.Get("obs"),
	}
	if req.Simulated == "" || req.Observed == "" {
		return req, fmt.Errorf("%w: sim and obs query parameters required", correction.ErrInvalidInput)
	}
	var err error
	if v := q.Get("start"); v != "" {
		if req.Window.Start, err = dataset.ParseDate(v); err != nil {
			return req, fmt.Errorf("%w: start: %v", correction.ErrInvalidInput, err)
		}
	}
	if v := q.Get("end"); v != "" {
		if req.Window.End, err = dataset.ParseDate(v); err != nil {
			return req, fmt.Errorf("%w: end: %v", correction.ErrInvalidInput, err)
		}
	}
	if err := req.Window.Validate(); err != nil {
		return req, fmt.Errorf("%w: %v", correction.ErrInvalidInput, err)
	}
	return req, nil
}
