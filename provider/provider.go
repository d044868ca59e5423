package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/researcher/config"
	openai_provider "github.com/mohammad-safakhou/researcher/provider/openai"
	"go.uber.org/zap"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
	Gemini    Client = "gemini"
)

// TextGenerator is the single-turn, stateless text service every research
// phase talks to. Callers pass the full context in each prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ErrUnsupportedProvider is returned for unknown or unimplemented clients.
var ErrUnsupportedProvider = errors.New("unsupported LLM provider")

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) (TextGenerator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := Client(cfg.Provider)
	if client == "" {
		client = OpenAI
	}
	switch client {
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key (or OPENAI_API_KEY) not set")
		}
		return openai_provider.NewOpenAIClient(openai_provider.Options{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			MaxRetries:  cfg.MaxRetries,
			Timeout:     cfg.Timeout,
		}, logger), nil
	case Anthropic:
		return nil, fmt.Errorf("%w: anthropic client not implemented yet", ErrUnsupportedProvider)
	case Gemini:
		return nil, fmt.Errorf("%w: gemini client not implemented yet", ErrUnsupportedProvider)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}
