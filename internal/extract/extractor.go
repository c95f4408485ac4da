// Package extract converts uploaded bytes into plain text, dispatching on the file extension.
// Extraction never fails outright: decoder errors become bracketed diagnostics in a degraded
// outcome so the caller always has usable text.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"go.uber.org/zap"
)

// Placeholder texts returned in degraded outcomes.
const (
	PlaceholderUploaded     = "[File uploaded]"
	PlaceholderNoImageText  = "[No text in image]"
	PlaceholderNoTranscript = "[No transcript returned]"
)

// Extractor extracts plain text from uploaded files. Images and audio go through an LLM.
type Extractor struct {
	model   llm.Client
	tempDir string
	logger  *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLLM sets the model used for image text extraction and audio transcription.
func WithLLM(c llm.Client) Option {
	return func(e *Extractor) {
		e.model = c
	}
}

// WithTempDir sets where audio is staged before upload. Empty means os.TempDir().
func WithTempDir(dir string) Option {
	return func(e *Extractor) {
		e.tempDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ext returns the lower-case extension of filename without the leading dot.
func Ext(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// ExtractFile reads the file at path and extracts it. Read errors are returned as failed outcomes.
func (e *Extractor) ExtractFile(ctx context.Context, path string) models.Outcome {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.Failed(warning(err), err.Error())
	}
	return e.Extract(ctx, content, filepath.Base(path), Ext(path))
}

// Extract returns the text of content. ext is lower-case without the leading dot.
func (e *Extractor) Extract(ctx context.Context, content []byte, filename, ext string) (out models.Outcome) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%v", r)
			e.logger.Warn("decoder panic", zap.String("file", filename), zap.Error(err))
			out = models.Degraded(warning(err), err.Error())
		}
	}()

	switch ext {
	case "png", "jpg", "jpeg", "webp":
		return e.extractImage(ctx, content, ext)
	case "mp3", "wav", "m4a", "ogg":
		return e.extractAudio(ctx, content, ext)
	}

	var (
		text string
		err  error
	)
	switch ext {
	case "pdf":
		text, err = extractPDF(content)
	case "docx":
		text, err = extractDOCX(content)
	case "pptx":
		text, err = extractPPTX(content)
	case "xlsx":
		text, err = extractSpreadsheet(content)
	case "xls":
		text, err = extractXLS(content)
	case "csv":
		text, err = extractCSV(content)
	case "txt", "md":
		text, err = extractPlain(content)
	case "json":
		text, err = extractJSON(content)
	case "ppt":
		text, err = extractPPT(content)
	case "doc":
		text, err = extractWord(content)
	case "odt", "rtf":
		text, err = extractCat(content, ext)
	case "odp":
		text, err = extractODP(content)
	case "ods":
		text, err = extractODS(content)
	default:
		return models.Degraded(PlaceholderUploaded, "no decoder for ."+ext)
	}
	if err != nil {
		e.logger.Warn("extraction degraded", zap.String("file", filename), zap.String("ext", ext), zap.Error(err))
		return models.Degraded(warning(err), err.Error())
	}
	return models.OK(text)
}

func warning(err error) string {
	return fmt.Sprintf("[File processed with warning: %s]", err)
}
