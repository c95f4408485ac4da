package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/medsage/internal/config"
	"github.com/hyperjump/medsage/internal/diagnose"
	"github.com/hyperjump/medsage/internal/embedding"
	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/hyperjump/medsage/internal/storage"
	"github.com/hyperjump/medsage/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine *Engine
	store  *vector.MemoryStore
	ledger *storage.SQLiteStorage
	emb    *embedding.HashEmbedder
	model  *llm.MockClient
	cfg    *config.Config
}

// scriptedModel answers by request kind so call order does not matter.
func scriptedModel() *llm.MockClient {
	m := llm.NewMockClient()
	m.Fallback = func(req *llm.Request) (string, error) {
		switch {
		case req.Schema != nil:
			return `{"reasoning":"r","diagnosis":"Influenza","recommendations":"rest","danger_signs":"none","next_questions":["Any travel recently?"],"is_emergency":false}`, nil
		case req.System == suggestWithContext || req.System == suggestNoContext:
			return threeQuestions, nil
		case strings.Contains(req.System, "triage"):
			return "Routine.", nil
		default:
			return "answer from " + req.System[:20], nil
		}
	}
	return m
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "uploads.db")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors.bin")
	cfg.VectorStore.Type = vector.TypeMemory

	emb := embedding.NewHashEmbedder(64)
	store := vector.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(ctx, cfg.VectorStore.Collection, emb.Dimensions(), vector.DistanceCosine))
	ledger, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	model := scriptedModel()
	composer := NewComposer(model, &cfg.Retrieval, nil)
	consultant := diagnose.NewConsultant(diagnose.NewReasoner(model, nil), diagnose.NewEscalationDetector(model), nil)
	return &engineFixture{
		engine: NewEngine(emb, store, ledger, composer, consultant, cfg),
		store:  store,
		ledger: ledger,
		emb:    emb,
		model:  model,
		cfg:    cfg,
	}
}

func (f *engineFixture) add(t *testing.T, id, text, domain string) {
	t.Helper()
	vec, err := f.emb.Embed(context.Background(), text)
	require.NoError(t, err)
	rec := models.IndexRecord{ID: id, Vector: vec, Payload: models.Payload{Text: text, File: id + ".txt", Domain: domain}}
	require.NoError(t, f.store.Upsert(context.Background(), f.cfg.VectorStore.Collection, []models.IndexRecord{rec}))
}

func TestEngine_Ask(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	ans, err := f.engine.Ask(ctx, &models.AskRequest{Question: "persistent dry cough"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceKnowledge, ans.SourceType)
	assert.Len(t, ans.SuggestedQuestions, 3)

	f.add(t, "a", "patient has a persistent dry cough at night", "")
	f.add(t, "b", "blood pressure readings were normal", "")
	ans, err = f.engine.Ask(ctx, &models.AskRequest{Question: "persistent dry cough", NResults: 1})
	require.NoError(t, err)
	assert.Equal(t, models.SourceDocument, ans.SourceType)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "a.txt", ans.Sources[0].File)
	assert.Equal(t, "answer from "+groundedSystem[:20], ans.Answer)
}

func TestEngine_Ask_rejectsEmptyQuestion(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.Ask(context.Background(), &models.AskRequest{Question: "   "})
	assert.True(t, errors.Is(err, models.ErrRejected))
}

func TestEngine_Ask_storeFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.cfg.VectorStore.Collection = "missing"
	_, err := f.engine.Ask(context.Background(), &models.AskRequest{Question: "cough"})
	assert.True(t, errors.Is(err, vector.ErrCollectionNotFound))
}

func TestEngine_Consult_filtersDomain(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.add(t, "hc", "fever chills and body aches for two days", "Healthcare")
	f.add(t, "other", "fever chills and body aches for two days in a spreadsheet", "")

	d, err := f.engine.Consult(ctx, &models.ConsultRequest{Symptoms: "fever and chills"})
	require.NoError(t, err)
	assert.Equal(t, "Influenza", d.Diagnosis)
	assert.False(t, d.IsEmergency)
	assert.Len(t, d.NextQuestions, 3)

	var reasonerPrompt string
	for _, req := range f.model.Requests() {
		if req.Schema != nil {
			reasonerPrompt = llm.PromptText(req)
		}
	}
	assert.Contains(t, reasonerPrompt, "Case: fever chills and body aches for two days")
	assert.NotContains(t, reasonerPrompt, "spreadsheet")

	_, err = f.engine.Consult(ctx, &models.ConsultRequest{})
	assert.True(t, errors.Is(err, models.ErrRejected))
}

func TestEngine_ClearAndStatus(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.add(t, "a", "patient report", "")
	require.NoError(t, f.ledger.UpsertUpload(ctx, &models.UploadRecord{ID: "u1", Filename: "a.txt", Format: "TXT", Chunks: 1, Status: "ok"}))

	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, vector.TypeMemory, st.VectorStore)
	assert.Equal(t, "Health_QA_CoT", st.Collection)
	assert.Equal(t, uint64(1), st.Records)
	assert.Equal(t, int64(1), st.Uploads)
	assert.Equal(t, int64(1), st.Chunks)
	assert.Equal(t, 64, st.Dimensions)
	assert.Equal(t, "feature-hash-64", st.EmbeddingModel, "status reports the embedder in use, not the configured model")
	assert.Equal(t, "mock", st.LLMProvider)
	assert.Greater(t, st.DiskUsageBytes, int64(0))

	require.NoError(t, f.engine.Clear(ctx))
	st, err = f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Records)
	assert.Zero(t, st.Uploads)

	// cleared collection keeps its dimension
	f.add(t, "b", "new record after clear", "")
	n, err := f.store.Count(ctx, f.cfg.VectorStore.Collection)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	reloaded := vector.NewMemoryStore()
	require.NoError(t, reloaded.Load(f.cfg.Storage.VectorIndexPath))
	n, err = reloaded.Count(ctx, f.cfg.VectorStore.Collection)
	require.NoError(t, err)
	assert.Zero(t, n, "snapshot written on clear")
}

func TestEngine_WithoutModel(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	bare := NewEngine(f.emb, f.store, f.ledger, nil, nil, f.cfg)

	_, err := bare.Ask(ctx, &models.AskRequest{Question: "fever"})
	assert.ErrorIs(t, err, ErrNoModel)
	_, err = bare.Consult(ctx, &models.ConsultRequest{Symptoms: "fever"})
	assert.ErrorIs(t, err, ErrNoModel)

	st, err := bare.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.cfg.LLM.Provider, st.LLMProvider)
	assert.Equal(t, f.cfg.LLM.Model, st.LLMModel)
	require.NoError(t, bare.Clear(ctx))
}
