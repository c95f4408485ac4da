package indexer

import (
	"context"
	"strings"

	"github.com/hyperjump/medsage/internal/followup"
	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/pkg/utils"
	"go.uber.org/zap"
)

// DefaultSummary is used when the model is unavailable or returns no summary line.
const DefaultSummary = "File processed."

// DefaultUploadQuestions pad the questions suggested after an upload.
var DefaultUploadQuestions = []string{
	"What is this about?",
	"Can you summarize it?",
	"What are the key points?",
}

// minSummaryInput is the text length at or below which no summary call is made.
const minSummaryInput = 20

func summaryPrompt(text string) string {
	return "Here is text extracted from a file:\n\n" + text + "\n\n" +
		"Your task:\n" +
		"1. Give a clear 2-sentence summary of this content.\n" +
		"2. Suggest exactly 3 specific, intelligent short questions the user should ask about this document.\n\n" +
		"Format exactly like this:\n" +
		"SUMMARY: [your 2-sentence summary here]\n" +
		"QUESTION 1: [question]\n" +
		"QUESTION 2: [question]\n" +
		"QUESTION 3: [question]"
}

// summarize asks the model for a summary and three questions. It always returns usable values.
func (in *Ingestor) summarize(ctx context.Context, text string) (string, []string) {
	defaults := followup.Pad(nil, followup.Count, DefaultUploadQuestions)
	if in.model == nil || len(strings.TrimSpace(text)) <= minSummaryInput {
		return DefaultSummary, defaults
	}
	prompt := summaryPrompt(utils.Clip(Preprocess(text), in.config.Upload.SummaryContextChars))
	reply, err := in.model.Generate(ctx, &llm.Request{Parts: []llm.Part{llm.Text(prompt)}})
	if err != nil {
		in.logger.Warn("upload summary failed", zap.Error(err))
		return DefaultSummary, defaults
	}
	return ParseSummary(reply)
}

// ParseSummary reads a "SUMMARY:" line and "QUESTION n:" or numbered lines from reply.
// Missing parts fall back to DefaultSummary and DefaultUploadQuestions.
func ParseSummary(reply string) (string, []string) {
	summary := ""
	var questions []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "SUMMARY:"):
			if summary == "" {
				summary = strings.TrimSpace(line[len("SUMMARY:"):])
			}
		case strings.HasPrefix(upper, "QUESTION ") && strings.Contains(line, ":"):
			if q, ok := followup.CleanQuestion(line[strings.Index(line, ":")+1:]); ok {
				questions = append(questions, q)
			}
		default:
			if q, ok := followup.NumberedItem(line); ok {
				questions = append(questions, q)
			}
		}
	}
	if summary == "" {
		summary = DefaultSummary
	}
	return summary, followup.Pad(questions, followup.Count, DefaultUploadQuestions)
}
