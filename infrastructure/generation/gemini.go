package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini completer
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int32

	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client
}

// GeminiCompleter talks to the Gemini API with a JSON response MIME type
type GeminiCompleter struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *zap.Logger
}

// NewGeminiCompleter creates a Gemini API client
func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating GenAI client: %w", err)
	}

	logger.Info("Initializing Gemini client", zap.String("model", cfg.Model))
	return &GeminiCompleter{client: client, cfg: cfg, logger: logger}, nil
}

func (c *GeminiCompleter) Name() string { return "gemini" }

func (c *GeminiCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
	}
	if c.cfg.Temperature > 0 {
		temp := c.cfg.Temperature
		config.Temperature = &temp
	}
	if c.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = c.cfg.MaxTokens
	}

	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: user}}}}
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty completion response")
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist:
		return "", fmt.Errorf("completion blocked: %s", candidate.FinishReason)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}

	c.logger.Debug("Received response from Gemini",
		zap.String("finishReason", string(candidate.FinishReason)),
	)
	return b.String(), nil
}
