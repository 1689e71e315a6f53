package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/lox/biascorrect/internal/dataset"
	"github.com/lox/biascorrect/internal/metrics"
	"github.com/lox/biascorrect/internal/models"
	"github.com/lox/biascorrect/internal/store"
)

const (
	SourceFile   = "file"
	SourceFTP    = "ftp"
	SourceUpload = "upload"

	maxImportSize = 64 << 20
)

var (
	// ErrInvalidFile marks imports rejected for their content or arguments.
	ErrInvalidFile = errors.New("invalid import")
	// ErrKindConflict is returned when a name is already used by a dataset of
	// the other kind.
	ErrKindConflict = errors.New("dataset kind conflict")
)

// Importer loads daily CSV files into named datasets.
type Importer struct {
	store *store.Store
	ftp   *FTPSource
}

func NewImporter(st *store.Store) *Importer {
	return &Importer{store: st}
}

// SetFTPSource enables ImportFTP.
func (im *Importer) SetFTPSource(src *FTPSource) {
	im.ftp = src
}

// ImportResult summarises a completed import.
type ImportResult struct {
	Dataset   string             `json:"dataset"`
	Kind      models.DatasetKind `json:"kind"`
	Parsed    int                `json:"parsed"`
	Stored    int                `json:"stored"`
	Flagged   int                `json:"flagged"`
	RawFileID int64              `json:"raw_file_id,omitempty"` // 0 when the same content was imported before
}

// ImportFile imports a CSV file from disk.
func (im *Importer) ImportFile(name string, kind models.DatasetKind, path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if name == "" {
		name = DatasetNameFromPath(path)
	}
	return im.ImportReader(name, kind, SourceFile, path, f)
}

// ImportFTP downloads path from the configured FTP source and imports it.
func (im *Importer) ImportFTP(ctx context.Context, name string, kind models.DatasetKind, path string) (*ImportResult, error) {
	if im.ftp == nil {
		return nil, fmt.Errorf("ftp source not configured")
	}
	body, err := im.ftp.Fetch(ctx, path)
	if err != nil {
		metrics.ImportsTotal.WithLabelValues(SourceFTP, "error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	if name == "" {
		name = DatasetNameFromPath(path)
	}
	return im.ImportReader(name, kind, SourceFTP, im.ftp.Addr()+path, bytes.NewReader(body))
}

// ImportReader parses CSV content from r and stores it under name, replacing
// any existing values for the same dates. Every attempt is recorded as an
// import run.
func (im *Importer) ImportReader(name string, kind models.DatasetKind, source, location string, r io.Reader) (*ImportResult, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: dataset name required", ErrInvalidFile)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: invalid dataset kind %q (want observed or simulated)", ErrInvalidFile, kind)
	}

	run, err := im.store.StartImportRun(name, source, location)
	if err != nil {
		return nil, fmt.Errorf("start import run: %w", err)
	}

	result, err := im.importContent(run, name, kind, source, location, r)
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		metrics.ImportsTotal.WithLabelValues(source, "error").Inc()
		log.Printf("import: %s failed: %v", name, err)
	} else {
		run.Success = true
		metrics.ImportsTotal.WithLabelValues(source, "ok").Inc()
		metrics.RecordsImported.WithLabelValues(name, string(kind)).Add(float64(result.Stored))
		log.Printf("import: %s (%s) stored %d records, %d flagged", name, kind, result.Stored, result.Flagged)
	}
	if cerr := im.store.CompleteImportRun(run); cerr != nil {
		log.Printf("import: complete run %d: %v", run.ID, cerr)
	}
	return result, err
}

func (im *Importer) importContent(run *store.ImportRun, name string, kind models.DatasetKind, source, location string, r io.Reader) (*ImportResult, error) {
	content, err := io.ReadAll(io.LimitReader(r, maxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(content) > maxImportSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidFile, maxImportSize)
	}
	run.SizeBytes = sql.NullInt64{Int64: int64(len(content)), Valid: true}

	records, err := dataset.ParseCSV(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	run.RecordsParsed = sql.NullInt64{Int64: int64(len(records)), Valid: true}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records in file", ErrInvalidFile)
	}

	result := &ImportResult{Dataset: name, Kind: kind, Parsed: len(records)}
	for i := range records {
		flags := dataset.ValidateRecord(records[i])
		if len(flags) > 0 {
			result.Flagged++
			records[i].QualityFlags = dataset.QualityFlagsToJSON(flags)
		}
	}
	run.RecordsFlagged = sql.NullInt64{Int64: int64(result.Flagged), Valid: true}

	existing, err := im.store.GetDataset(name)
	if err != nil {
		return nil, fmt.Errorf("lookup dataset: %w", err)
	}
	if existing != nil && existing.Kind != kind {
		return nil, fmt.Errorf("%w: dataset %s already exists as %s", ErrKindConflict, name, existing.Kind)
	}

	if err := im.store.UpsertDataset(models.Dataset{Name: name, Kind: kind, Source: source}); err != nil {
		return nil, fmt.Errorf("upsert dataset: %w", err)
	}
	result.Stored, err = im.store.UpsertRecords(name, records)
	if err != nil {
		return nil, err
	}
	run.RecordsStored = sql.NullInt64{Int64: int64(result.Stored), Valid: true}

	result.RawFileID, err = im.store.StoreRawFile(run.ID, name, location, content)
	if err != nil {
		// records are already stored; the raw copy is only kept for reprocessing
		log.Printf("import: store raw file for %s: %v", name, err)
	}
	return result, nil
}

// DatasetNameFromPath derives a dataset name from a file name.
func DatasetNameFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
