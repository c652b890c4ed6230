package ai

import (
	"context"
	"time"

	"enlitens/pkg/errors"
)

// ProviderName identifies a chat backend.
type ProviderName string

const (
	ProviderNameOpenAI ProviderName = "openai"
	ProviderNameGemini ProviderName = "gemini"
)

// FactoryConfig selects and configures a chat provider.
type FactoryConfig struct {
	Provider  ProviderName
	OpenAIKey string
	GeminiKey string
	Timeout   time.Duration
	RPS       float64
	Burst     int
}

// NewChatProvider creates the configured chat provider.
func NewChatProvider(ctx context.Context, cfg FactoryConfig) (ChatProvider, error) {
	switch cfg.Provider {
	case ProviderNameOpenAI:
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:  cfg.OpenAIKey,
			Timeout: cfg.Timeout,
			RPS:     cfg.RPS,
			Burst:   cfg.Burst,
		}), nil
	case ProviderNameGemini:
		return NewGeminiProvider(ctx, GeminiOptions{
			APIKey: cfg.GeminiKey,
			RPS:    cfg.RPS,
			Burst:  cfg.Burst,
		})
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported chat provider: %s", cfg.Provider)
	}
}
