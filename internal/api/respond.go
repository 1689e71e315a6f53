package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/lox/biascorrect/internal/correction"
	"github.com/lox/biascorrect/internal/ingest"
	"github.com/lox/biascorrect/internal/pipeline"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps domain errors to status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, correction.ErrInvalidInput), errors.Is(err, correction.ErrLengthMismatch),
		errors.Is(err, ingest.ErrInvalidFile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrDatasetNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrKindConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("api: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
