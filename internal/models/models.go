package models

import (
	"database/sql"
	"time"
)

type Variable string

const (
	TempMin Variable = "temperature_min"
	TempMax Variable = "temperature_max"
	Precip  Variable = "precipitation"
)

// Variables lists the corrected variables in display order.
var Variables = []Variable{TempMin, TempMax, Precip}

// Units returns the display unit for a variable.
func (v Variable) Units() string {
	if v == Precip {
		return "mm"
	}
	return "°C"
}

func (v Variable) Valid() bool {
	switch v {
	case TempMin, TempMax, Precip:
		return true
	}
	return false
}

type DatasetKind string

const (
	KindObserved  DatasetKind = "observed"
	KindSimulated DatasetKind = "simulated"
)

func (k DatasetKind) Valid() bool {
	return k == KindObserved || k == KindSimulated
}

type Dataset struct {
	Name       string
	Kind       DatasetKind
	Source     string // "file", "ftp", "upload"
	RowCount   int
	FirstDate  sql.NullTime
	LastDate   sql.NullTime
	ImportedAt time.Time
}

type DailyRecord struct {
	Date         time.Time
	TempMin      sql.NullFloat64
	TempMax      sql.NullFloat64
	Precip       sql.NullFloat64
	QualityFlags string
}

// Value returns the record's value for a variable.
func (r DailyRecord) Value(v Variable) sql.NullFloat64 {
	switch v {
	case TempMin:
		return r.TempMin
	case TempMax:
		return r.TempMax
	case Precip:
		return r.Precip
	}
	return sql.NullFloat64{}
}

// AlignedSeries holds observed and simulated values for one variable joined
// by date. All three slices have the same length.
type AlignedSeries struct {
	Variable  Variable
	Dates     []time.Time
	Observed  []float64
	Simulated []float64
	Missing   int // dates in the window left out for a missing value
}

type Performance struct {
	RMSESim  float64 `json:"rmse_sim"`
	RMSECorr float64 `json:"rmse_corr"`
	BiasSim  float64 `json:"bias_sim"`
	BiasCorr float64 `json:"bias_corr"`
}

type Means struct {
	Observed  float64 `json:"observed"`
	Simulated float64 `json:"simulated"`
	Corrected float64 `json:"corrected"`
}

type CorrectionRun struct {
	ID          int64
	SimDataset  string
	ObsDataset  string
	WindowStart time.Time
	WindowEnd   time.Time
	CreatedAt   time.Time
	DurationMS  int64
	Variables   []VariableRun
}

type VariableRun struct {
	Variable    Variable
	SampleSize  int
	Performance Performance
	Means       Means
}
