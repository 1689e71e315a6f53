package dataset

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/biascorrect/internal/models"
)

const dateColumn = "date"

// RequiredColumns are the header names every input file must carry.
var RequiredColumns = []string{dateColumn, string(models.TempMin), string(models.TempMax), string(models.Precip)}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// ParseCSV reads daily records from a CSV file with a header row. Columns may
// appear in any order and extra columns are ignored. Empty cells are nulls.
func ParseCSV(r io.Reader) ([]models.DailyRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv: missing required columns %v (need %v)", missing, RequiredColumns)
	}

	var records []models.DailyRecord
	seen := make(map[time.Time]int)
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		if blankRow(row) {
			continue
		}

		date, err := ParseDate(field(row, cols[dateColumn]))
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		if prev, ok := seen[date]; ok {
			return nil, fmt.Errorf("csv: line %d: duplicate date %s (first on line %d)", line, date.Format("2006-01-02"), prev)
		}
		seen[date] = line

		rec := models.DailyRecord{Date: date}
		if rec.TempMin, err = parseValue(field(row, cols[string(models.TempMin)])); err != nil {
			return nil, fmt.Errorf("csv: line %d: %s: %w", line, models.TempMin, err)
		}
		if rec.TempMax, err = parseValue(field(row, cols[string(models.TempMax)])); err != nil {
			return nil, fmt.Errorf("csv: line %d: %s: %w", line, models.TempMax, err)
		}
		if rec.Precip, err = parseValue(field(row, cols[string(models.Precip)])); err != nil {
			return nil, fmt.Errorf("csv: line %d: %s: %w", line, models.Precip, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseDate accepts the date formats seen in exported spreadsheets and
// truncates to the calendar day in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func parseValue(s string) (sql.NullFloat64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "na") {
		return sql.NullFloat64{}, nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return sql.NullFloat64{}, fmt.Errorf("invalid number %q", s)
	}
	return sql.NullFloat64{Float64: v, Valid: true}, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func blankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// CorrectedColumn holds one variable's simulated and corrected values by date.
type CorrectedColumn struct {
	Dates     []time.Time
	Simulated []float64
	Corrected []float64
}

// WriteCorrectedCSV writes one row per date found in any column, with the
// simulated values followed by a "<variable>_corrected" column per variable.
// Dates a variable was not corrected for are left empty.
func WriteCorrectedCSV(w io.Writer, columns map[models.Variable]CorrectedColumn) error {
	cw := csv.NewWriter(w)
	header := []string{dateColumn}
	for _, v := range models.Variables {
		header = append(header, string(v))
	}
	for _, v := range models.Variables {
		header = append(header, string(v)+"_corrected")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	type cell struct{ sim, corr float64 }
	byDate := make(map[models.Variable]map[time.Time]cell, len(columns))
	var dates []time.Time
	seen := make(map[time.Time]bool)
	for v, c := range columns {
		m := make(map[time.Time]cell, len(c.Dates))
		for i, d := range c.Dates {
			if i >= len(c.Simulated) || i >= len(c.Corrected) {
				break
			}
			m[d] = cell{c.Simulated[i], c.Corrected[i]}
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
		byDate[v] = m
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	format := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	for _, d := range dates {
		sims := make([]string, 0, len(models.Variables))
		corrs := make([]string, 0, len(models.Variables))
		for _, v := range models.Variables {
			c, ok := byDate[v][d]
			if !ok {
				sims = append(sims, "")
				corrs = append(corrs, "")
				continue
			}
			sims = append(sims, format(c.sim))
			corrs = append(corrs, format(c.corr))
		}
		row := append([]string{d.Format("2006-01-02")}, sims...)
		if err := cw.Write(append(row, corrs...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
