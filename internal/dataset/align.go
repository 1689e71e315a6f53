package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lox/biascorrect/internal/correction"
	"github.com/lox/biascorrect/internal/models"
)

// Window is an inclusive date range. Zero bounds are open; Align clips them
// to the span of the simulated records.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

func (w Window) Validate() error {
	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return fmt.Errorf("window end %s is before start %s",
			w.End.Format("2006-01-02"), w.Start.Format("2006-01-02"))
	}
	return nil
}

// clip narrows open or overreaching bounds to span. A zero span leaves w
// unchanged.
func (w Window) clip(span Window) Window {
	if span.IsZero() {
		return w
	}
	if w.Start.IsZero() || w.Start.Before(span.Start) {
		w.Start = span.Start
	}
	if w.End.IsZero() || w.End.After(span.End) {
		w.End = span.End
	}
	return w
}

func (w Window) contains(d time.Time) bool {
	if !w.Start.IsZero() && d.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && d.After(w.End) {
		return false
	}
	return true
}

// Span returns the window covering the first and last record dates.
func Span(records []models.DailyRecord) Window {
	var w Window
	for _, r := range records {
		if w.Start.IsZero() || r.Date.Before(w.Start) {
			w.Start = r.Date
		}
		if w.End.IsZero() || r.Date.After(w.End) {
			w.End = r.Date
		}
	}
	return w
}

// MisalignedError reports dates present in only one of the two inputs.
type MisalignedError struct {
	SimulatedOnly []time.Time
	ObservedOnly  []time.Time
}

func (e *MisalignedError) Error() string {
	var parts []string
	if len(e.SimulatedOnly) > 0 {
		parts = append(parts, fmt.Sprintf("%d dates missing from observed (first %s)",
			len(e.SimulatedOnly), e.SimulatedOnly[0].Format("2006-01-02")))
	}
	if len(e.ObservedOnly) > 0 {
		parts = append(parts, fmt.Sprintf("%d dates missing from simulated (first %s)",
			len(e.ObservedOnly), e.ObservedOnly[0].Format("2006-01-02")))
	}
	return "series misaligned: " + strings.Join(parts, ", ")
}

func (e *MisalignedError) Unwrap() error {
	return correction.ErrLengthMismatch
}

// Align filters both inputs to the window and joins them by date. It returns
// one AlignedSeries per variable, sorted by date. The window is clipped to the
// span of the simulated records, so observations may cover a longer period.
// Dates present on one side only are an error. A date with a missing value is
// left out of that variable's series only; a variable with no complete pairs
// is an error.
func Align(simulated, observed []models.DailyRecord, w Window) ([]models.AlignedSeries, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", correction.ErrInvalidInput, err)
	}
	w = w.clip(Span(simulated))

	obsByDate := make(map[time.Time]models.DailyRecord, len(observed))
	for _, r := range observed {
		if w.contains(r.Date) {
			obsByDate[r.Date] = r
		}
	}

	var sim []models.DailyRecord
	misaligned := &MisalignedError{}
	simDates := make(map[time.Time]bool)
	for _, r := range simulated {
		if !w.contains(r.Date) {
			continue
		}
		simDates[r.Date] = true
		if _, ok := obsByDate[r.Date]; !ok {
			misaligned.SimulatedOnly = append(misaligned.SimulatedOnly, r.Date)
			continue
		}
		sim = append(sim, r)
	}
	for d := range obsByDate {
		if !simDates[d] {
			misaligned.ObservedOnly = append(misaligned.ObservedOnly, d)
		}
	}
	if len(misaligned.SimulatedOnly) > 0 || len(misaligned.ObservedOnly) > 0 {
		sortDates(misaligned.SimulatedOnly)
		sortDates(misaligned.ObservedOnly)
		return nil, misaligned
	}
	if len(sim) == 0 {
		return nil, fmt.Errorf("%w: no records between %s and %s", correction.ErrInvalidInput,
			w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
	}

	sort.Slice(sim, func(i, j int) bool { return sim[i].Date.Before(sim[j].Date) })

	out := make([]models.AlignedSeries, 0, len(models.Variables))
	for _, v := range models.Variables {
		s := models.AlignedSeries{Variable: v}
		for _, r := range sim {
			sv := r.Value(v)
			ov := obsByDate[r.Date].Value(v)
			if !sv.Valid || !ov.Valid {
				s.Missing++
				continue
			}
			s.Dates = append(s.Dates, r.Date)
			s.Simulated = append(s.Simulated, sv.Float64)
			s.Observed = append(s.Observed, ov.Float64)
		}
		if len(s.Dates) == 0 {
			return nil, fmt.Errorf("%w: no complete %s pairs between %s and %s", correction.ErrInvalidInput,
				v, w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
		}
		out = append(out, s)
	}
	return out, nil
}

// IsMisaligned reports whether err came from a date mismatch.
func IsMisaligned(err error) bool {
	var me *MisalignedError
	return errors.As(err, &me)
}

func sortDates(d []time.Time) {
	sort.Slice(d, func(i, j int) bool { return d[i].Before(d[j]) })
}
