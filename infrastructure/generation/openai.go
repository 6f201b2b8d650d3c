package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig configures the OpenAI completer
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// OpenAICompleter talks to the chat completions API in JSON mode
type OpenAICompleter struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *zap.Logger
}

// NewOpenAICompleter creates a completer; BaseURL may point at any
// OpenAI-compatible endpoint
func NewOpenAICompleter(cfg OpenAIConfig, logger *zap.Logger) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger.Info("Initializing OpenAI client", zap.String("model", cfg.Model))
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (c *OpenAICompleter) Name() string { return "openai" }

func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.cfg.Temperature,
	}
	if c.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = c.cfg.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			c.logger.Debug("OpenAI API error",
				zap.Int("status", apiErr.HTTPStatusCode),
				zap.Any("code", apiErr.Code),
			)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}

	c.logger.Debug("Received response from OpenAI",
		zap.String("finishReason", string(resp.Choices[0].FinishReason)),
		zap.Int("totalTokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
