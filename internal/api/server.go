package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/biascorrect/internal/imagegen"
	"github.com/lox/biascorrect/internal/ingest"
	"github.com/lox/biascorrect/internal/narrative"
	"github.com/lox/biascorrect/internal/pipeline"
	"github.com/lox/biascorrect/internal/store"
)

const maxUploadSize = 64 << 20

type Server struct {
	store      *store.Store
	port       string
	runner     *pipeline.Runner
	importer   *ingest.Importer
	summarizer *narrative.Summarizer
	heatmaps   *imagegen.Cache
}

func NewServer(store *store.Store, port string) *Server {
	return &Server{
		store:    store,
		port:     port,
		runner:   pipeline.NewRunner(store),
		importer: ingest.NewImporter(store),
	}
}

// SetSummarizer enables model-written narratives on run responses. Without
// one, runs carry the template summary.
func (s *Server) SetSummarizer(sum *narrative.Summarizer) {
	s.summarizer = sum
}

// SetHeatmapCache enables on-disk caching of rendered heatmaps.
func (s *Server) SetHeatmapCache(c *imagegen.Cache) {
	s.heatmaps = c
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/correct", s.handleCorrect)
	mux.HandleFunc("GET /api/datasets", s.handleListDatasets)
	mux.HandleFunc("POST /api/datasets/{name}", s.handleUploadDataset)
	mux.HandleFunc("DELETE /api/datasets/{name}", s.handleDeleteDataset)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/export.csv", s.handleExport)
	mux.HandleFunc("GET /api/heatmap.png", s.handleHeatmap)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "migration_version": version})
}

func (s *Server) purgeHeatmaps() {
	if s.heatmaps == nil {
		return
	}
	if err := s.heatmaps.Purge(); err != nil {
		log.Printf("api: purge heatmap cache: %v", err)
	}
}
