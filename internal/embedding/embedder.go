// Package embedding turns text into fixed-dimension vectors via ONNX Runtime or feature hashing.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/medsage/internal/config"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text. EmbedBatch returns one vector per input, in order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the model that produced the vectors.
	Name() string
	Close() error
}

// Provider names accepted in embedding.provider.
const (
	ProviderONNX = "onnx"
	ProviderHash = "hash"
)

// New builds the configured embedder. When the ONNX model cannot be loaded the hash
// embedder is returned instead and a warning is logged.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case ProviderHash:
		return NewHashEmbedder(cfg.Dimensions), nil
	case ProviderONNX, "":
		emb, err := NewONNXEmbedder(ONNXOptions{
			ModelName:   cfg.ModelName,
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			VocabPath:   cfg.VocabPath,
			OutputName:  cfg.OutputName,
			Dimensions:  cfg.Dimensions,
			MaxTokens:   cfg.MaxTokens,
			CacheSize:   cfg.CacheSize,
		})
		if err != nil {
			logger.Warn("onnx embedder unavailable, falling back to hash embedder",
				zap.String("model", cfg.ModelName),
				zap.String("model_path", cfg.ModelPath),
				zap.Error(err))
			return NewHashEmbedder(cfg.Dimensions), nil
		}
		logger.Info("onnx embedder loaded", zap.String("model", cfg.ModelName), zap.Int("dimensions", cfg.Dimensions))
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, hash)", cfg.Provider)
	}
}
