package generation

import (
	"context"
	"fmt"
	"strings"

	"canvas-backend/application/ports"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Provider names accepted by New
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderStatic = "static"
)

// Config selects and configures a generation provider
type Config struct {
	Provider        string
	OpenAI          OpenAIConfig
	Gemini          GeminiConfig
	StaticFollowUps int
	Resilience      ResilienceConfig
}

// New builds the generation service stack for cfg: provider, then circuit
// breaker and throttle, then tracing when tracer is non-nil. The static
// provider is returned bare since it cannot fail.
func New(ctx context.Context, cfg Config, tracer trace.Tracer, logger *zap.Logger) (ports.GenerationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var completer Completer
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		c, err := NewOpenAICompleter(cfg.OpenAI, logger)
		if err != nil {
			return nil, err
		}
		completer = c
	case ProviderGemini:
		c, err := NewGeminiCompleter(ctx, cfg.Gemini, logger)
		if err != nil {
			return nil, err
		}
		completer = c
	case ProviderStatic, "":
		logger.Info("Using offline generation provider")
		return NewStaticService(cfg.StaticFollowUps), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}

	if cfg.Resilience.Name == "" {
		cfg.Resilience = DefaultResilienceConfig(completer.Name())
	}

	var svc ports.GenerationService = NewService(completer, logger)
	svc = NewResilientService(svc, cfg.Resilience, logger)
	if tracer != nil {
		svc = NewTracedService(svc, tracer)
	}
	return svc, nil
}
