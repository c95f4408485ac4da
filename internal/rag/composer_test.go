package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/medsage/internal/config"
	"github.com/hyperjump/medsage/internal/followup"
	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetrievalConfig() *config.RetrievalConfig {
	cfg := config.Default()
	return &cfg.Retrieval
}

func hit(text, file string, score float64) models.RetrievalHit {
	return models.RetrievalHit{ID: file, Score: score, Payload: models.Payload{Text: text, File: file, Type: "PDF"}}
}

const threeQuestions = "1. What dose is safe for adults?\n2. How long should treatment last?\n3. Are there drug interactions?"

func TestRoute(t *testing.T) {
	assert.Equal(t, models.SourceKnowledge, Route(nil, 0.15))
	assert.Equal(t, models.SourceFallback, Route([]models.RetrievalHit{hit("a", "a", 0.1), hit("b", "b", 0.149)}, 0.15))
	assert.Equal(t, models.SourceDocument, Route([]models.RetrievalHit{hit("a", "a", 0.1), hit("b", "b", 0.15)}, 0.15))
	assert.Equal(t, models.SourceDocument, Route([]models.RetrievalHit{hit("a", "a", 0.9)}, 0.15))
}

func TestComposer_noHits(t *testing.T) {
	model := llm.NewMockClient(llm.Reply("  Rest and fluids.  "), llm.Reply(threeQuestions))
	c := NewComposer(model, testRetrievalConfig(), nil)

	ans := c.Answer(context.Background(), "How do I treat a cold?", nil)
	assert.Equal(t, models.SourceKnowledge, ans.SourceType)
	assert.Equal(t, "Rest and fluids.", ans.Answer)
	assert.Equal(t, models.OutcomeOK, ans.Status)
	assert.Empty(t, ans.Sources)
	assert.NotNil(t, ans.Sources)
	assert.Equal(t, []string{"What dose is safe for adults?", "How long should treatment last?", "Are there drug interactions?"}, ans.SuggestedQuestions)

	reqs := model.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, knowledgeSystem, reqs[0].System)
	assert.Equal(t, "How do I treat a cold?", llm.PromptText(reqs[0]))
	assert.Equal(t, suggestNoContext, reqs[1].System)
	assert.Equal(t, "Original question: How do I treat a cold?", llm.PromptText(reqs[1]))
}

func TestSuggestPromptsRequestNumbering(t *testing.T) {
	for _, system := range []string{suggestWithContext, suggestNoContext} {
		assert.Contains(t, system, "exactly 3")
		assert.Contains(t, system, "Number them 1., 2., 3.")
	}
}

func TestComposer_weakHits(t *testing.T) {
	long := strings.Repeat("x", 5000)
	model := llm.NewMockClient(llm.Reply(threeQuestions), llm.Reply("Probably viral."))
	c := NewComposer(model, testRetrievalConfig(), nil)

	ans := c.Answer(context.Background(), "What is this?", []models.RetrievalHit{hit(long, "notes.txt", 0.1)})
	assert.Equal(t, models.SourceFallback, ans.SourceType)
	assert.Equal(t, "Probably viral.", ans.Answer)

	reqs := model.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, suggestWithContext, reqs[0].System)
	assert.Equal(t, suggestPrompt(strings.Repeat("x", 4000), "What is this?"), llm.PromptText(reqs[0]))
	assert.Equal(t, weakSystem, reqs[1].System)
	assert.Equal(t, weakPrompt(strings.Repeat("x", 3000), "What is this?"), llm.PromptText(reqs[1]))
}

func TestComposer_strongHits(t *testing.T) {
	model := llm.NewMockClient(llm.Reply("1. Is it contagious for long?"), llm.Reply("Take amoxicillin as prescribed."))
	c := NewComposer(model, testRetrievalConfig(), nil)

	hits := []models.RetrievalHit{
		hit("Patient prescribed amoxicillin 500mg.", "rx.pdf", 0.81234567),
		hit("Follow-up in two weeks.", "rx.pdf", 0.5),
	}
	ans := c.Answer(context.Background(), "What was prescribed?", hits)
	assert.Equal(t, models.SourceDocument, ans.SourceType)
	assert.Equal(t, "Take amoxicillin as prescribed.", ans.Answer)
	assert.Equal(t, []string{"Is it contagious for long?", followup.Generic[0], followup.Generic[1]}, ans.SuggestedQuestions)

	require.Len(t, ans.Sources, 2)
	assert.Equal(t, models.SourceSummary{Text: "Patient prescribed amoxicillin 500mg.", File: "rx.pdf", Type: "PDF", Score: 0.8123}, ans.Sources[0])

	reqs := model.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, groundedSystem, reqs[1].System)
	assert.Equal(t,
		groundedPrompt("Patient prescribed amoxicillin 500mg.\n\nFollow-up in two weeks.\n\n", "What was prescribed?"),
		llm.PromptText(reqs[1]))
}

func TestComposer_modelFailures(t *testing.T) {
	t.Run("answer call fails", func(t *testing.T) {
		model := llm.NewMockClient(llm.Reply(threeQuestions), llm.Fail(errors.New("quota")))
		ans := NewComposer(model, testRetrievalConfig(), nil).Answer(context.Background(), "q?", []models.RetrievalHit{hit("t", "f", 0.9)})
		assert.Equal(t, AnswerFailed, ans.Answer)
		assert.Equal(t, models.OutcomeFailed, ans.Status)
		assert.Len(t, ans.Sources, 1)
		assert.Len(t, ans.SuggestedQuestions, 3)
	})
	t.Run("empty answer", func(t *testing.T) {
		model := llm.NewMockClient(llm.Reply("   "), llm.Reply(""))
		ans := NewComposer(model, testRetrievalConfig(), nil).Answer(context.Background(), "q?", nil)
		assert.Equal(t, AnswerUnanswered, ans.Answer)
		assert.Equal(t, models.OutcomeDegraded, ans.Status)
		assert.Equal(t, followup.Generic, ans.SuggestedQuestions)
	})
	t.Run("suggestion call fails", func(t *testing.T) {
		model := llm.NewMockClient(llm.Fail(errors.New("down")), llm.Reply("Grounded answer."))
		ans := NewComposer(model, testRetrievalConfig(), nil).Answer(context.Background(), "q?", []models.RetrievalHit{hit("t", "f", 0.9)})
		assert.Equal(t, "Grounded answer.", ans.Answer)
		assert.Equal(t, followup.Generic, ans.SuggestedQuestions)
	})
}

func TestComposer_Sources(t *testing.T) {
	c := NewComposer(llm.NewMockClient(), testRetrievalConfig(), nil)
	long := strings.Repeat("a", 400)
	sources := c.Sources([]models.RetrievalHit{
		hit(long, "", 0.123456),
		{Score: 0.5, Payload: models.Payload{Text: "case text", Source: "cases.json"}},
	})
	require.Len(t, sources, 2)
	assert.Equal(t, strings.Repeat("a", 350)+"...", sources[0].Text)
	assert.Equal(t, 0.1235, sources[0].Score)
	assert.Equal(t, "case text", sources[1].Text)
	assert.Equal(t, "cases.json", sources[1].File)
}

func TestComposer_customThreshold(t *testing.T) {
	cfg := testRetrievalConfig()
	high := 0.6
	cfg.ConfidenceThreshold = &high
	model := llm.NewMockClient(llm.Reply(threeQuestions), llm.Reply("cautious"))
	ans := NewComposer(model, cfg, nil).Answer(context.Background(), "q?", []models.RetrievalHit{hit("t", "f", 0.5)})
	assert.Equal(t, models.SourceFallback, ans.SourceType)
}

func TestComposer_zeroThreshold(t *testing.T) {
	cfg := testRetrievalConfig()
	zero := 0.0
	cfg.ConfidenceThreshold = &zero
	model := llm.NewMockClient(llm.Reply(threeQuestions), llm.Reply("grounded"))
	ans := NewComposer(model, cfg, nil).Answer(context.Background(), "q?", []models.RetrievalHit{hit("t", "f", 0.01)})
	assert.Equal(t, models.SourceDocument, ans.SourceType)
	assert.Equal(t, "grounded", ans.Answer)
}
