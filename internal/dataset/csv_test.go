package dataset

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/lox/biascorrect/internal/models"
)

func TestParseCSV(t *testing.T) {
	input := "Date, precipitation ,temperature_min,temperature_max,station\n" +
		"2024-01-01,0.5,2.1,14.3,X\n" +
		"2024-01-02,,3,15,X\n" +
		"\n" +
		"2024-01-03 00:00:00,NaN,4,16.5,X\n"

	records, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}

	first := records[0]
	if !first.Date.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", first.Date)
	}
	if first.TempMin.Float64 != 2.1 || first.TempMax.Float64 != 14.3 || first.Precip.Float64 != 0.5 {
		t.Errorf("values = %v %v %v", first.TempMin, first.TempMax, first.Precip)
	}
	if records[1].Precip.Valid {
		t.Error("empty precipitation should be null")
	}
	if records[2].Precip.Valid {
		t.Error("NaN precipitation should be null")
	}
	if !records[2].Date.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("datetime not truncated to day: %v", records[2].Date)
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty file", "", "empty file"},
		{"missing column", "date,temperature_min,temperature_max\n2024-01-01,1,2\n", "precipitation"},
		{"bad date", "date,temperature_min,temperature_max,precipitation\nyesterday,1,2,3\n", "unrecognised date"},
		{"bad number", "date,temperature_min,temperature_max,precipitation\n2024-01-01,cold,2,3\n", "invalid number"},
		{"duplicate date", "date,temperature_min,temperature_max,precipitation\n2024-01-01,1,2,3\n2024-01-01,1,2,3\n", "duplicate date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2023, 7, 9, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2023-07-09", "2023-07-09 13:45:00", "2023-07-09T13:45:00", "2023-07-09T13:45:00Z", "09/07/2023"} {
		got, err := ParseDate(s)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", s, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestWriteCorrectedCSV(t *testing.T) {
	dates := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	columns := map[models.Variable]CorrectedColumn{
		models.TempMin: {Dates: dates, Simulated: []float64{1, 2}, Corrected: []float64{1.5, 2.5}},
		models.TempMax: {Dates: dates, Simulated: []float64{10, 11}, Corrected: []float64{9, 10}},
		models.Precip:  {Dates: dates, Simulated: []float64{0, 0.5}, Corrected: []float64{0, 1.25}},
	}

	var buf bytes.Buffer
	if err := WriteCorrectedCSV(&buf, columns); err != nil {
		t.Fatalf("WriteCorrectedCSV: %v", err)
	}

	want := "date,temperature_min,temperature_max,precipitation,temperature_min_corrected,temperature_max_corrected,precipitation_corrected\n" +
		"2024-01-01,1,10,0,1.5,9,0\n" +
		"2024-01-02,2,11,0.5,2.5,10,1.25\n"
	if buf.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", buf.String(), want)
	}

	// the export must parse back as simulated input
	records, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("re-parse export: %v", err)
	}
	if len(records) != 2 || records[1].Precip.Float64 != 0.5 {
		t.Errorf("re-parsed = %+v", records)
	}
}

func TestWriteCorrectedCSV_UnevenDates(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	both := []time.Time{day1, day2}
	columns := map[models.Variable]CorrectedColumn{
		models.TempMin: {Dates: both, Simulated: []float64{1, 2}, Corrected: []float64{1, 2}},
		models.TempMax: {Dates: both, Simulated: []float64{10, 11}, Corrected: []float64{10, 11}},
		models.Precip:  {Dates: []time.Time{day2}, Simulated: []float64{0.5}, Corrected: []float64{0.75}},
	}

	var buf bytes.Buffer
	if err := WriteCorrectedCSV(&buf, columns); err != nil {
		t.Fatalf("WriteCorrectedCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if lines[1] != "2024-01-01,1,10,,1,10," {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[2] != "2024-01-02,2,11,0.5,2,11,0.75" {
		t.Errorf("row 2 = %q", lines[2])
	}

	records, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("re-parse export: %v", err)
	}
	if records[0].Precip.Valid {
		t.Errorf("precip on %s should be null, got %v", day1.Format("2006-01-02"), records[0].Precip.Float64)
	}
}
