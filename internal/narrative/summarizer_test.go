package narrative

import (
	"context"
	"strings"
	"testing"

	"github.com/lox/biascorrect/internal/models"
)

func sampleRuns() []models.VariableRun {
	return []models.VariableRun{
		{
			Variable:    models.TempMin,
			SampleSize:  365,
			Performance: models.Performance{RMSESim: 2.5, RMSECorr: 1.1, BiasSim: 1.8, BiasCorr: -0.001},
			Means:       models.Means{Observed: 8.2, Simulated: 10, Corrected: 8.2},
		},
		{
			Variable:    models.Precip,
			SampleSize:  365,
			Performance: models.Performance{RMSESim: 4, RMSECorr: 4.5, BiasSim: -0.3, BiasCorr: 0.2},
			Means:       models.Means{Observed: 2.1, Simulated: 1.8, Corrected: 2.3},
		},
	}
}

func TestFallback(t *testing.T) {
	got := Fallback(sampleRuns())
	want := "Minimum temperature improved: RMSE 2.50 → 1.10 °C, bias +1.80 → +0.00 °C. " +
		"Precipitation worsened: RMSE 4.00 → 4.50 mm, bias -0.30 → +0.20 mm."
	if got != want {
		t.Errorf("Fallback =\n%q\nwant\n%q", got, want)
	}
}

func TestFallback_Unchanged(t *testing.T) {
	got := Fallback([]models.VariableRun{{Variable: models.TempMax, Performance: models.Performance{RMSESim: 1, RMSECorr: 1}}})
	if !strings.HasPrefix(got, "Maximum temperature was unchanged") {
		t.Errorf("Fallback = %q", got)
	}
}

func TestMetricsTable(t *testing.T) {
	table := MetricsTable(sampleRuns())
	lines := strings.Split(strings.TrimSpace(table), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2", len(lines))
	}
	if !strings.HasPrefix(lines[1], "temperature_min (°C) | 365 | 2.50 | 1.10 |") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestSummarizeOrFallback_NilSummarizer(t *testing.T) {
	var s *Summarizer
	if got := s.SummarizeOrFallback(context.Background(), sampleRuns()); got != Fallback(sampleRuns()) {
		t.Errorf("nil summarizer = %q, want fallback", got)
	}
}

func TestNewSummarizer(t *testing.T) {
	if _, err := NewSummarizer("", ""); err == nil {
		t.Error("expected error without API key")
	}
	s, err := NewSummarizer("sk-test", "")
	if err != nil {
		t.Fatalf("NewSummarizer: %v", err)
	}
	if s.model != defaultModel {
		t.Errorf("model = %s, want %s", s.model, defaultModel)
	}
}

func TestSummarizeOrFallback_CancelledContext(t *testing.T) {
	s, err := NewSummarizer("sk-test", "")
	if err != nil {
		t.Fatalf("NewSummarizer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := s.SummarizeOrFallback(ctx, sampleRuns()); got != Fallback(sampleRuns()) {
		t.Errorf("cancelled summary = %q, want fallback", got)
	}
}
