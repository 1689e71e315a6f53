package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CorrectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biascorrect_corrections_total",
			Help: "Total variable corrections attempted, including unsaved previews",
		},
		[]string{"variable", "status"},
	)

	CorrectionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "biascorrect_correction_latency_seconds",
			Help:    "Time to align, correct and evaluate all variables for one run",
			Buckets: prometheus.DefBuckets,
		},
	)

	RMSE = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "biascorrect_rmse",
			Help: "RMSE against observations from the most recent recorded run",
		},
		[]string{"variable", "series"},
	)

	Bias = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "biascorrect_bias",
			Help: "Mean bias against observations from the most recent recorded run",
		},
		[]string{"variable", "series"},
	)

	RecordsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biascorrect_records_imported_total",
			Help: "Total daily records stored by imports",
		},
		[]string{"dataset", "kind"},
	)

	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biascorrect_imports_total",
			Help: "Total dataset imports",
		},
		[]string{"source", "status"},
	)

	FTPFetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "biascorrect_ftp_fetch_latency_seconds",
			Help:    "FTP download latency in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
	)
)
