// Package rag answers questions from retrieved context, routing between grounded and
// general-knowledge answers by retrieval confidence.
package rag

import (
	"context"
	"strings"

	"github.com/hyperjump/medsage/internal/config"
	"github.com/hyperjump/medsage/internal/followup"
	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/hyperjump/medsage/internal/vector"
	"github.com/hyperjump/medsage/pkg/utils"
	"go.uber.org/zap"
)

// Composer turns a question and its retrieval hits into an Answer.
type Composer struct {
	model  llm.Client
	config *config.RetrievalConfig
	logger *zap.Logger
}

// NewComposer creates a composer. logger may be nil.
func NewComposer(model llm.Client, cfg *config.RetrievalConfig, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{model: model, config: cfg, logger: logger}
}

// Route picks the answer source for hits: no hits means general knowledge, a best score below
// threshold means a cautious fallback, anything else is grounded in the documents.
func Route(hits []models.RetrievalHit, threshold float64) models.SourceType {
	if len(hits) == 0 {
		return models.SourceKnowledge
	}
	if vector.BestScore(hits) < threshold {
		return models.SourceFallback
	}
	return models.SourceDocument
}

// Answer composes the answer. It never fails: model errors become fixed answer text and a
// failed status, while sources and suggestions are still filled in.
func (c *Composer) Answer(ctx context.Context, question string, hits []models.RetrievalHit) models.Answer {
	ans := models.Answer{
		Question:   question,
		Sources:    c.Sources(hits),
		SourceType: Route(hits, c.config.ConfidenceThresholdOrDefault()),
	}

	if ans.SourceType == models.SourceKnowledge {
		ans.Answer, ans.Status = c.generate(ctx, llm.Prompt(knowledgeSystem, question))
		ans.SuggestedQuestions = c.suggest(ctx, llm.Prompt(suggestNoContext, "Original question: "+question))
		return ans
	}

	contextText := joinContext(hits)
	ans.SuggestedQuestions = c.suggest(ctx, llm.Prompt(suggestWithContext,
		suggestPrompt(utils.Clip(contextText, c.config.SuggestionContextChars), question)))

	var req *llm.Request
	if ans.SourceType == models.SourceFallback {
		req = llm.Prompt(weakSystem, weakPrompt(utils.Clip(contextText, c.config.WeakContextChars), question))
	} else {
		req = llm.Prompt(groundedSystem, groundedPrompt(utils.Clip(contextText, c.config.GroundedContextChars), question))
	}
	ans.Answer, ans.Status = c.generate(ctx, req)
	return ans
}

// Sources summarizes hits with truncated previews and scores rounded to four places.
func (c *Composer) Sources(hits []models.RetrievalHit) []models.SourceSummary {
	sources := make([]models.SourceSummary, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, models.SourceSummary{
			Text:  utils.Truncate(h.Payload.Text, c.config.PreviewChars),
			File:  h.Payload.Origin(),
			Type:  h.Payload.Type,
			Score: utils.Round(h.Score, 4),
		})
	}
	return sources
}

func (c *Composer) generate(ctx context.Context, req *llm.Request) (string, models.OutcomeStatus) {
	text, err := c.model.Generate(ctx, req)
	if err != nil {
		c.logger.Warn("answer generation failed", zap.Error(err))
		return AnswerFailed, models.OutcomeFailed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return AnswerUnanswered, models.OutcomeDegraded
	}
	return text, models.OutcomeOK
}

func (c *Composer) suggest(ctx context.Context, req *llm.Request) []string {
	text, err := c.model.Generate(ctx, req)
	if err != nil {
		c.logger.Warn("suggestion generation failed", zap.Error(err))
	}
	return followup.Parse(text)
}

// joinContext concatenates hit texts, each followed by a blank line.
func joinContext(hits []models.RetrievalHit) string {
	var b strings.Builder
	for _, h := range hits {
		b.WriteString(h.Payload.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}
