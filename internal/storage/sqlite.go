// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/medsage/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		format TEXT NOT NULL,
		chunks INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		warning TEXT NOT NULL DEFAULT '',
		source_path TEXT NOT NULL DEFAULT '',
		source_mtime INTEGER NOT NULL DEFAULT 0,
		source_size INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);
	CREATE INDEX IF NOT EXISTS idx_uploads_source_path ON uploads(source_path);
	`
	_, err := db.Exec(schema)
	return err
}

const uploadColumns = `id, filename, format, chunks, status, warning, source_path, source_mtime, source_size, created_at`

// UpsertUpload inserts rec, or replaces the record with the same ID. CreatedAt is set when zero.
func (s *SQLiteStorage) UpsertUpload(ctx context.Context, rec *models.UploadRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("upload id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (`+uploadColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			format = excluded.format,
			chunks = excluded.chunks,
			status = excluded.status,
			warning = excluded.warning,
			source_path = excluded.source_path,
			source_mtime = excluded.source_mtime,
			source_size = excluded.source_size,
			created_at = excluded.created_at`,
		rec.ID, rec.Filename, rec.Format, rec.Chunks, rec.Status, rec.Warning,
		rec.SourcePath, rec.SourceMtime, rec.SourceSize, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert upload %s: %w", rec.ID, err)
	}
	return nil
}

// GetUpload returns an upload by ID.
func (s *SQLiteStorage) GetUpload(ctx context.Context, id string) (*models.UploadRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)
	rec, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// FindBySourcePath returns the most recent upload ingested from path.
func (s *SQLiteStorage) FindBySourcePath(ctx context.Context, path string) (*models.UploadRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE source_path = ? ORDER BY created_at DESC LIMIT 1`, path)
	rec, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return rec, err
}

// ListUploads returns uploads newest first with offset and limit.
func (s *SQLiteStorage) ListUploads(ctx context.Context, offset, limit int) ([]*models.UploadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.UploadRecord
	for rows.Next() {
		rec, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteUpload removes an upload by ID. Deleting a missing ID is not an error.
func (s *SQLiteStorage) DeleteUpload(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id)
	return err
}

// DeleteAll removes every upload record.
func (s *SQLiteStorage) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM uploads`)
	return err
}

// CountUploads returns the total number of uploads.
func (s *SQLiteStorage) CountUploads(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&count)
	return count, err
}

// SumChunks returns the total number of chunks across all uploads.
func (s *SQLiteStorage) SumChunks(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(chunks), 0) FROM uploads`).Scan(&total)
	return total, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*models.UploadRecord, error) {
	var rec models.UploadRecord
	err := row.Scan(&rec.ID, &rec.Filename, &rec.Format, &rec.Chunks, &rec.Status, &rec.Warning,
		&rec.SourcePath, &rec.SourceMtime, &rec.SourceSize, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
