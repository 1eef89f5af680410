package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/apperrors"
)

// Supported vision providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// DefaultMaxTokens bounds the length of a vision response.
const DefaultMaxTokens = 4096

// Config holds configuration for creating a vision client.
type Config struct {
	Provider  string // "anthropic" (default) or "openai"
	Endpoint  string // Optional base URL override
	Model     string // Provider default when empty
	APIKey    string
	MaxTokens int // DefaultMaxTokens when <= 0
}

func (c *Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return c.MaxTokens
}

// NewVisionClient creates the client for the configured provider.
// A missing credential returns apperrors.ErrVisionUnavailable so callers can
// disable vision analysis instead of failing.
func NewVisionClient(cfg *Config, logger *zap.Logger) (VisionClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderAnthropic
	}

	switch provider {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY not set", apperrors.ErrVisionUnavailable)
		}
		client, err := NewAnthropicVisionClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	case ProviderOpenAI:
		if cfg.APIKey == "" && cfg.Endpoint == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", apperrors.ErrVisionUnavailable)
		}
		client, err := NewOpenAIVisionClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}
}
