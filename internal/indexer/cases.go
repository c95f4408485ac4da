package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/hyperjump/medsage/pkg/utils"
	"go.uber.org/zap"
)

// CaseDomain tags every record loaded from a case dataset.
const CaseDomain = "Healthcare"

// Payload field limits for case records.
const (
	maxCaseQuestion  = 2000
	maxCaseResponse  = 2000
	maxCaseReasoning = 3000
)

// CaseStats summarizes a dataset load.
type CaseStats struct {
	Entries int `json:"entries"`
	Chunks  int `json:"chunks"`
	Skipped int `json:"skipped"`
}

// CaseText joins the non-empty parts of c into the text that is embedded.
func CaseText(c *models.Case) string {
	var parts []string
	if q := strings.TrimSpace(c.Question); q != "" {
		parts = append(parts, "Question: "+q)
	}
	if r := strings.TrimSpace(c.ComplexCoT); r != "" {
		parts = append(parts, "Reasoning: "+r)
	}
	if a := strings.TrimSpace(c.Response); a != "" {
		parts = append(parts, "Answer: "+a)
	}
	return strings.Join(parts, "\n\n")
}

// LoadCases reads a JSON array, a single object, or one object per line from r and upserts
// every case into the active collection in batches. source names the dataset in payloads.
func (in *Ingestor) LoadCases(ctx context.Context, r io.Reader, source string) (*CaseStats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	stats := &CaseStats{}
	batchSize := in.config.Cases.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	buffer := make([]models.IndexRecord, 0, batchSize)
	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		if err := in.store.Upsert(ctx, in.config.VectorStore.Collection, buffer); err != nil {
			return fmt.Errorf("failed to index cases: %w", err)
		}
		buffer = buffer[:0]
		return nil
	}

	err = decodeCases(data, func(c *models.Case) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, err := in.caseRecords(ctx, c, source)
		if err != nil {
			return err
		}
		if records == nil {
			stats.Skipped++
			return nil
		}
		stats.Entries++
		stats.Chunks += len(records)
		buffer = append(buffer, records...)
		if len(buffer) >= batchSize {
			return flush()
		}
		return nil
	}, func(lineErr error) {
		stats.Skipped++
		in.logger.Warn("skipping invalid case line", zap.Error(lineErr))
	})
	if err != nil {
		return stats, err
	}
	if err := flush(); err != nil {
		return stats, err
	}
	if err := in.persist(); err != nil {
		return stats, err
	}
	in.logger.Info("cases loaded",
		zap.String("source", source),
		zap.Int("entries", stats.Entries),
		zap.Int("chunks", stats.Chunks),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// caseRecords embeds one case. Long texts are split into fixed-size character slices.
// Returns nil for a case with no text.
func (in *Ingestor) caseRecords(ctx context.Context, c *models.Case, source string) ([]models.IndexRecord, error) {
	text := CaseText(c)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	texts := []string{text}
	if len([]rune(text)) > in.config.Cases.MaxTextChars {
		texts = utils.SplitChars(text, in.config.Cases.SliceChars)
	}
	vectors, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	records := make([]models.IndexRecord, len(texts))
	for i, t := range texts {
		idx := i
		records[i] = models.IndexRecord{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: models.Payload{
				Text:       t,
				Question:   utils.Clip(c.Question, maxCaseQuestion),
				Response:   utils.Clip(c.Response, maxCaseResponse),
				ComplexCoT: utils.Clip(c.ComplexCoT, maxCaseReasoning),
				Source:     source,
				Domain:     CaseDomain,
				ChunkIdx:   &idx,
			},
		}
	}
	return records, nil
}

// decodeCases calls fn for each case in data. Whole-document JSON is tried first; otherwise
// each line starting with "{" is decoded on its own, with a trailing comma removed, and
// undecodable lines are reported to skip.
func decodeCases(data []byte, fn func(*models.Case) error, skip func(error)) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	var list []models.Case
	if err := json.Unmarshal(trimmed, &list); err == nil {
		for i := range list {
			if err := fn(&list[i]); err != nil {
				return err
			}
		}
		return nil
	}
	var single models.Case
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &single); err == nil {
			return fn(&single)
		}
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		line = bytes.TrimSuffix(line, []byte(","))
		var c models.Case
		if err := json.Unmarshal(line, &c); err != nil {
			skip(err)
			continue
		}
		if err := fn(&c); err != nil {
			return err
		}
	}
	return nil
}
