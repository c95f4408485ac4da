package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/medsage/internal/config"
	"go.uber.org/zap"
)

// New creates the configured client. Supported providers: "gemini" (default), "openai".
func New(ctx context.Context, cfg *config.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, GeminiOptions{
			APIKey:          cfg.APIKey(),
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		}, logger)
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm.base_url is required for provider %s", cfg.Provider)
		}
		return NewOpenAIClient(OpenAIOptions{
			BaseURL:         cfg.BaseURL,
			APIKey:          cfg.APIKey(),
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
			Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s (supported: gemini, openai)", cfg.Provider)
	}
}
