package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// HashContent returns the hex SHA-256 used to deduplicate raw files.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// StoreRawFile stores a compressed copy of an imported file.
// Returns the file ID, or 0 if the content was a duplicate (same hash).
func (s *Store) StoreRawFile(runID int64, dataset, location string, content []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(content); err != nil {
		return 0, fmt.Errorf("compress file: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	var importRunID sql.NullInt64
	if runID > 0 {
		importRunID = sql.NullInt64{Int64: runID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO raw_files (import_run_id, fetched_at, dataset, location, content_compressed, content_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`, importRunID, time.Now().UTC(), dataset, sql.NullString{String: location, Valid: location != ""},
		buf.Bytes(), HashContent(content))
	if err != nil {
		return 0, fmt.Errorf("insert raw file: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// GetRawFile retrieves and decompresses a stored file by ID.
func (s *Store) GetRawFile(id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT content_compressed FROM raw_files WHERE id = ?`, id).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// CleanupOldRawFiles deletes raw files older than the specified number of days.
// Returns the number of deleted files.
func (s *Store) CleanupOldRawFiles(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM raw_files
		WHERE fetched_at < ?
	`, time.Now().UTC().AddDate(0, 0, -retentionDays))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
