// Package storage defines the persistence interface for the upload ledger.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/medsage/internal/models"
)

// ErrNotFound is returned when a ledger record does not exist.
var ErrNotFound = errors.New("upload not found")

// Storage records accepted uploads. Vectors live in the vector store; the ledger only tracks
// what was ingested, from where, and how it went.
type Storage interface {
	// Upload operations
	UpsertUpload(ctx context.Context, rec *models.UploadRecord) error
	GetUpload(ctx context.Context, id string) (*models.UploadRecord, error)
	FindBySourcePath(ctx context.Context, path string) (*models.UploadRecord, error)
	ListUploads(ctx context.Context, offset, limit int) ([]*models.UploadRecord, error)
	DeleteUpload(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error

	// Stats
	CountUploads(ctx context.Context) (int64, error)
	SumChunks(ctx context.Context) (int64, error)

	Close() error
}
