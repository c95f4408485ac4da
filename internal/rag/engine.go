package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/medsage/internal/config"
	"github.com/hyperjump/medsage/internal/diagnose"
	"github.com/hyperjump/medsage/internal/embedding"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/hyperjump/medsage/internal/storage"
	"github.com/hyperjump/medsage/internal/vector"
	"go.uber.org/zap"
)

// ErrNoModel is returned by Ask and Consult when the engine was built without a language model.
var ErrNoModel = errors.New("no language model configured")

// Engine is the read path: it embeds a query, searches the active collection and hands the
// hits to the composer or the consultant.
type Engine struct {
	embedder   embedding.Embedder
	store      vector.Store
	ledger     storage.Storage
	composer   *Composer
	consultant *diagnose.Consultant
	config     *config.Config
	logger     *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for retrieval events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine with the given dependencies.
func NewEngine(
	embedder embedding.Embedder,
	store vector.Store,
	ledger storage.Storage,
	composer *Composer,
	consultant *diagnose.Consultant,
	cfg *config.Config,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		embedder:   embedder,
		store:      store,
		ledger:     ledger,
		composer:   composer,
		consultant: consultant,
		config:     cfg,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve embeds text and returns the nearest records from the active collection.
func (e *Engine) Retrieve(ctx context.Context, text string, opts vector.SearchOptions) ([]models.RetrievalHit, error) {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	hits, err := e.store.Search(ctx, e.config.VectorStore.Collection, vec, opts)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return hits, nil
}

// Ask answers a question from the collection. Only embedding and store failures are errors;
// model failures are reported inside the Answer.
func (e *Engine) Ask(ctx context.Context, req *models.AskRequest) (*models.Answer, error) {
	if e.composer == nil {
		return nil, ErrNoModel
	}
	if err := req.Validate(e.config.Retrieval.DefaultLimit, e.config.Retrieval.MaxLimit); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRejected, err)
	}
	hits, err := e.Retrieve(ctx, req.Question, vector.SearchOptions{
		Limit:  req.NResults,
		HNSWEf: e.config.VectorStore.HNSWEf,
	})
	if err != nil {
		return nil, err
	}
	ans := e.composer.Answer(ctx, req.Question, hits)
	e.logger.Debug("answered question",
		zap.Int("hits", len(hits)),
		zap.String("source_type", string(ans.SourceType)),
		zap.String("status", string(ans.Status)))
	return &ans, nil
}

// Consult retrieves similar cases from the configured domain and reasons over them.
func (e *Engine) Consult(ctx context.Context, req *models.ConsultRequest) (*models.Diagnosis, error) {
	if e.consultant == nil {
		return nil, ErrNoModel
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRejected, err)
	}
	hits, err := e.Retrieve(ctx, req.Symptoms, vector.SearchOptions{
		Limit:  e.config.Consult.TopK,
		Filter: vector.FieldEquals(models.PayloadDomain, e.config.Consult.Domain),
		HNSWEf: e.config.Consult.HNSWEf,
	})
	if err != nil {
		return nil, err
	}
	d := e.consultant.Consult(ctx, req.Symptoms, hits)
	e.logger.Debug("consulted",
		zap.Int("cases", len(hits)),
		zap.Bool("emergency", d.IsEmergency),
		zap.String("status", string(d.Status)))
	return &d, nil
}

// Clear drops and recreates the active collection and empties the upload ledger.
func (e *Engine) Clear(ctx context.Context) error {
	name := e.config.VectorStore.Collection
	if err := e.store.Clear(ctx, name); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	if err := vector.Persist(e.store, e.config.Storage.VectorIndexPath); err != nil {
		return fmt.Errorf("save vector snapshot: %w", err)
	}
	if e.ledger != nil {
		if err := e.ledger.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear upload ledger: %w", err)
		}
	}
	e.logger.Info("collection cleared", zap.String("collection", name))
	return nil
}

// Status reports store, ledger and model details. A missing collection counts as empty.
func (e *Engine) Status(ctx context.Context) (*models.Status, error) {
	st := &models.Status{
		VectorStore:    e.store.Type(),
		Collection:     e.config.VectorStore.Collection,
		EmbeddingModel: e.embedder.Name(),
		Dimensions:     e.embedder.Dimensions(),
		LLMProvider:    e.config.LLM.Provider,
		LLMModel:       e.config.LLM.Model,
	}
	if e.composer != nil {
		st.LLMProvider = e.composer.model.Provider()
		st.LLMModel = e.composer.model.Model()
	}
	n, err := e.store.Count(ctx, st.Collection)
	if err != nil && !errors.Is(err, vector.ErrCollectionNotFound) {
		return nil, fmt.Errorf("count records: %w", err)
	}
	st.Records = n
	if e.ledger != nil {
		if st.Uploads, err = e.ledger.CountUploads(ctx); err != nil {
			return nil, fmt.Errorf("count uploads: %w", err)
		}
		if st.Chunks, err = e.ledger.SumChunks(ctx); err != nil {
			return nil, fmt.Errorf("count chunks: %w", err)
		}
	}
	usage, err := storage.DiskUsageBytes(e.config.Storage.DatabasePath, e.config.Storage.VectorIndexPath)
	if err != nil {
		e.logger.Warn("disk usage unavailable", zap.Error(err))
	}
	st.DiskUsageBytes = usage
	return st, nil
}
