// Package indexer provides chunking and ingestion of uploads and case datasets into the vector store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/medsage/internal/config"
	"github.com/hyperjump/medsage/internal/embedding"
	"github.com/hyperjump/medsage/internal/extract"
	"github.com/hyperjump/medsage/internal/fileid"
	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/hyperjump/medsage/internal/storage"
	"github.com/hyperjump/medsage/internal/vector"
	"go.uber.org/zap"
)

// Rejection messages returned to clients.
const (
	MsgUnreadable = "Unable to extract text from file."
	MsgNotMedical = "Document does not appear medical. Only medical files allowed."
)

// Ingestor runs the write path: extract, chunk, embed, upsert, and record in the ledger.
type Ingestor struct {
	extractor *extract.Extractor
	chunker   *Chunker
	embedder  embedding.Embedder
	store     vector.Store
	ledger    storage.Storage
	model     llm.Client
	config    *config.Config
	logger    *zap.Logger
	saveMu    sync.Mutex
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IngestorOption {
	return func(in *Ingestor) { in.logger = l }
}

// WithLLM sets the model used to summarize uploads. Without one, uploads get the default
// summary and questions.
func WithLLM(c llm.Client) IngestorOption {
	return func(in *Ingestor) { in.model = c }
}

// NewIngestor creates an ingestor with the given dependencies. ledger may be nil.
func NewIngestor(
	extractor *extract.Extractor,
	embedder embedding.Embedder,
	store vector.Store,
	ledger storage.Storage,
	cfg *config.Config,
	opts ...IngestorOption,
) *Ingestor {
	in := &Ingestor{
		extractor: extractor,
		chunker:   NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkStride),
		embedder:  embedder,
		store:     store,
		ledger:    ledger,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// source describes where a watched file came from.
type source struct {
	id    string
	path  string
	mtime int64
	size  int64
	prev  *models.UploadRecord
}

// Upload ingests an uploaded document and summarizes it. Client-side problems are returned
// wrapped in models.ErrRejected.
func (in *Ingestor) Upload(ctx context.Context, doc *models.Document) (*models.UploadResult, error) {
	rec, text, err := in.ingest(ctx, doc, nil)
	if err != nil {
		return nil, err
	}
	summary, questions := in.summarize(ctx, text)
	return &models.UploadResult{
		Status:             "success",
		ID:                 rec.ID,
		File:               rec.Filename,
		Chunks:             rec.Chunks,
		Summary:            summary,
		SuggestedQuestions: questions,
		Warning:            rec.Warning,
	}, nil
}

func (in *Ingestor) ingest(ctx context.Context, doc *models.Document, src *source) (*models.UploadRecord, string, error) {
	ext := doc.Ext
	if ext == "" {
		ext = extract.Ext(doc.Filename)
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if !ExtensionAllowed(ext, in.config.Upload.AllowedExtensions) {
		return nil, "", fmt.Errorf("%w: unsupported file type %q", models.ErrRejected, ext)
	}
	if limit := in.config.Upload.MaxBytes; limit > 0 && int64(len(doc.Content)) > limit {
		return nil, "", fmt.Errorf("%w: file exceeds %d bytes", models.ErrRejected, limit)
	}

	out := in.extractor.Extract(ctx, doc.Content, doc.Filename, ext)
	text := strings.TrimSpace(out.Text)
	if text == "" || out.Status == models.OutcomeFailed {
		return nil, "", fmt.Errorf("%w: %s", models.ErrRejected, MsgUnreadable)
	}
	if in.config.Upload.MedicalOnlyOrDefault() {
		// Placeholders never count as medical content.
		if out.Status == models.OutcomeDegraded {
			return nil, "", fmt.Errorf("%w: %s", models.ErrRejected, MsgUnreadable)
		}
		if !IsMedical(text, in.config.Upload.MedicalKeywords) {
			return nil, "", fmt.Errorf("%w: %s", models.ErrRejected, MsgNotMedical)
		}
	}

	chunks := in.chunker.Chunk(text)
	vectors, err := in.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, "", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	rec := &models.UploadRecord{
		ID:       uuid.NewString(),
		Filename: doc.Filename,
		Format:   strings.ToUpper(ext),
		Chunks:   len(chunks),
		Status:   string(models.OutcomeOK),
	}
	if !out.IsOK() {
		rec.Status = string(out.Status)
		rec.Warning = out.Reason
	}
	if src != nil {
		rec.ID = src.id
		rec.SourcePath = src.path
		rec.SourceMtime = src.mtime
		rec.SourceSize = src.size
	}

	records := make([]models.IndexRecord, len(chunks))
	for i, chunk := range chunks {
		idx := i
		id := uuid.NewString()
		if src != nil {
			id = fileid.ChunkID(src.id, i)
		}
		records[i] = models.IndexRecord{
			ID:     id,
			Vector: vectors[i],
			Payload: models.Payload{
				Text:     chunk,
				File:     doc.Filename,
				Type:     rec.Format,
				ChunkIdx: &idx,
			},
		}
	}
	collection := in.config.VectorStore.Collection
	if err := in.store.Upsert(ctx, collection, records); err != nil {
		return nil, "", fmt.Errorf("failed to index vectors: %w", err)
	}
	if src != nil && src.prev != nil && src.prev.Chunks > len(chunks) {
		stale := make([]string, 0, src.prev.Chunks-len(chunks))
		for i := len(chunks); i < src.prev.Chunks; i++ {
			stale = append(stale, fileid.ChunkID(src.id, i))
		}
		if err := in.store.Delete(ctx, collection, stale); err != nil {
			return nil, "", fmt.Errorf("failed to remove stale vectors: %w", err)
		}
	}
	if err := in.persist(); err != nil {
		return nil, "", err
	}
	if in.ledger != nil {
		if err := in.ledger.UpsertUpload(ctx, rec); err != nil {
			return nil, "", fmt.Errorf("failed to record upload: %w", err)
		}
	}
	in.logger.Info("file ingested",
		zap.String("file", rec.Filename),
		zap.Int("chunks", rec.Chunks),
		zap.String("status", rec.Status))
	return rec, text, nil
}

// IngestFile ingests a file from a watched directory. The record IDs are derived from the
// absolute path so re-ingesting replaces the previous vectors. It reports false when the file
// is already ingested with the same mtime and size.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	ext := extract.Ext(absPath)
	if !ExtensionAllowed(ext, in.config.Upload.AllowedExtensions) {
		return false, fmt.Errorf("%w: unsupported file type %q", models.ErrRejected, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return false, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("not a regular file: %s", absPath)
	}
	src := &source{
		id:    fileid.SourceID(absPath),
		path:  absPath,
		mtime: info.ModTime().UnixNano(),
		size:  info.Size(),
	}
	if in.ledger != nil {
		prev, err := in.ledger.FindBySourcePath(ctx, absPath)
		switch {
		case err == nil:
			if prev.SourceMtime == src.mtime && prev.SourceSize == src.size {
				in.logger.Debug("skipping unchanged file", zap.String("path", absPath))
				return false, nil
			}
			src.prev = prev
		case !errors.Is(err, storage.ErrNotFound):
			return false, fmt.Errorf("lookup ledger: %w", err)
		}
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return false, fmt.Errorf("read file: %w", err)
	}
	doc := &models.Document{
		Filename:   filepath.Base(absPath),
		Ext:        ext,
		Content:    content,
		SourcePath: absPath,
	}
	if _, _, err := in.ingest(ctx, doc, src); err != nil {
		return false, err
	}
	return true, nil
}

// IngestDirectory walks dir recursively and ingests each regular file with an allowed
// extension. Rejected files are logged and skipped. Returns the number of files ingested.
func (in *Ingestor) IngestDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !ExtensionAllowed(extract.Ext(path), in.config.Upload.AllowedExtensions) {
			return nil
		}
		ingested, ingestErr := in.IngestFile(ctx, path)
		if errors.Is(ingestErr, models.ErrRejected) {
			in.logger.Info("file rejected", zap.String("path", path), zap.Error(ingestErr))
			return nil
		}
		if ingestErr != nil {
			return ingestErr
		}
		if ingested {
			n++
		}
		return nil
	})
	return n, err
}

// RemoveFile deletes the vectors and ledger record of a watched file.
func (in *Ingestor) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	if in.ledger == nil {
		return nil
	}
	prev, err := in.ledger.FindBySourcePath(ctx, absPath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup ledger: %w", err)
	}
	ids := make([]string, prev.Chunks)
	for i := range ids {
		ids[i] = fileid.ChunkID(prev.ID, i)
	}
	if err := in.store.Delete(ctx, in.config.VectorStore.Collection, ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if err := in.persist(); err != nil {
		return err
	}
	if err := in.ledger.DeleteUpload(ctx, prev.ID); err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	in.logger.Info("file removed", zap.String("path", absPath), zap.Int("chunks", prev.Chunks))
	return nil
}

func (in *Ingestor) persist() error {
	in.saveMu.Lock()
	defer in.saveMu.Unlock()
	if err := vector.Persist(in.store, in.config.Storage.VectorIndexPath); err != nil {
		return fmt.Errorf("save vector snapshot: %w", err)
	}
	return nil
}

// IsMedical reports whether text contains any keyword, case-insensitively.
func IsMedical(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// ExtensionAllowed reports whether ext (with or without the dot) is in the allow-list.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	if extNorm == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
