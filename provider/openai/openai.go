package openai_provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const defaultModel = "gpt-4o-mini"

// ErrEmptyCompletion is returned when the API answers without any text.
var ErrEmptyCompletion = errors.New("openai: empty completion")

// Options configures the chat-completions client.
type Options struct {
	APIKey      string
	BaseURL     string // OpenAI-compatible endpoint, empty for api.openai.com
	Model       string
	Temperature float64
	MaxTokens   int
	MaxRetries  int
	Timeout     time.Duration
}

// client implements provider.TextGenerator using OpenAI's chat completions
type client struct {
	api         openai.Client
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(opts Options, logger *zap.Logger) *client {
	if logger == nil {
		logger = zap.NewNop()
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	return &client{
		api:         openai.NewClient(reqOpts...),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		logger:      logger.Named("llm"),
	}
}

// GenerateText sends prompt as a single user message and returns the first choice.
func (c *client) GenerateText(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		c.logger.Warn("Completion request failed.", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	c.logger.Debug("Completion received.",
		zap.String("model", c.model),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("response_chars", len(content)),
		zap.Duration("elapsed", time.Since(start)))
	return content, nil
}
