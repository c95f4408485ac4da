package extract

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"go.uber.org/zap"
)

const (
	imagePrompt = "Extract ALL visible text from this image exactly as it appears. Include handwriting, labels, numbers. Return ONLY the text."
	audioPrompt = "Transcribe this audio file completely and accurately. Include timestamps if possible. Return only the transcript."
)

var errNoModel = errors.New("no language model configured")

var mimeTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"ogg":  "audio/ogg",
}

func (e *Extractor) extractImage(ctx context.Context, content []byte, ext string) models.Outcome {
	if e.model == nil {
		return models.Degraded(imageError(errNoModel), errNoModel.Error())
	}
	text, err := e.model.Generate(ctx, &llm.Request{
		Parts: []llm.Part{llm.Text(imagePrompt), llm.Bytes(content, mimeTypes[ext])},
	})
	if err != nil {
		e.logger.Warn("image extraction failed", zap.Error(err))
		return models.Degraded(imageError(err), err.Error())
	}
	if text == "" {
		return models.Degraded(PlaceholderNoImageText, "empty model response")
	}
	return models.OK(text)
}

// extractAudio stages content in a temp file, which is removed on every return path.
func (e *Extractor) extractAudio(ctx context.Context, content []byte, ext string) models.Outcome {
	if e.model == nil {
		return models.Degraded(audioError(errNoModel), errNoModel.Error())
	}
	f, err := os.CreateTemp(e.tempDir, "medsage-audio-*."+ext)
	if err != nil {
		return models.Degraded(audioError(err), err.Error())
	}
	path := f.Name()
	defer os.Remove(path)

	_, werr := f.Write(content)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return models.Degraded(audioError(werr), werr.Error())
	}

	text, err := e.model.Generate(ctx, &llm.Request{
		Parts: []llm.Part{llm.Text(audioPrompt), llm.File(path, mimeTypes[ext])},
	})
	if err != nil {
		e.logger.Warn("audio transcription failed", zap.Error(err))
		return models.Degraded(audioError(err), err.Error())
	}
	if text == "" {
		return models.Degraded(PlaceholderNoTranscript, "empty model response")
	}
	return models.OK(text)
}

func imageError(err error) string {
	return fmt.Sprintf("[Image error: %s]", err)
}

func audioError(err error) string {
	return fmt.Sprintf("[Audio error: %s]", err)
}
