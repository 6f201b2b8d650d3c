// Package generation adapts text-generation providers to ports.GenerationService.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"canvas-backend/application/ports"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Completer sends one system/user prompt pair to a model and returns the raw
// text of its reply. The reply is expected to be a JSON object.
type Completer interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Service implements ports.GenerationService on top of a Completer. It builds
// the prompts, decodes the JSON reply and validates required fields.
type Service struct {
	completer Completer
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewService creates a generation service backed by completer
func NewService(completer Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		completer: completer,
		validate:  validator.New(),
		logger:    logger.With(zap.String("provider", completer.Name())),
	}
}

func (s *Service) Query(ctx context.Context, text string) (ports.Answer, error) {
	var answer ports.Answer
	err := s.generate(ctx, "query", answerSystemPrompt, queryPrompt(text), &answer)
	return answer, err
}

func (s *Service) FollowUp(ctx context.Context, text string, trail []string) (ports.Answer, error) {
	var answer ports.Answer
	err := s.generate(ctx, "follow_up", answerSystemPrompt, followUpPrompt(text, trail), &answer)
	return answer, err
}

func (s *Service) Topic(ctx context.Context, term string, trail []string) (ports.TopicExplanation, error) {
	var explanation ports.TopicExplanation
	err := s.generate(ctx, "topic", topicSystemPrompt, topicPrompt(term, trail), &explanation)
	return explanation, err
}

func (s *Service) Synthesize(ctx context.Context, contexts []string, customPrompt string) (ports.Synthesis, error) {
	var synthesis ports.Synthesis
	err := s.generate(ctx, "synthesize", synthesisSystemPrompt, synthesisPrompt(contexts, customPrompt), &synthesis)
	return synthesis, err
}

func (s *Service) generate(ctx context.Context, operation, system, user string, dst interface{}) error {
	start := time.Now()
	raw, err := s.completer.Complete(ctx, system, user)
	if err != nil {
		s.logger.Warn("Generation request failed",
			zap.String("operation", operation),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", s.completer.Name(), operation, err)
	}

	if err := decodeReply(raw, dst); err != nil {
		s.logger.Warn("Generation reply rejected",
			zap.String("operation", operation),
			zap.Int("replyLength", len(raw)),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", s.completer.Name(), operation, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%s %s: invalid reply: %w", s.completer.Name(), operation, err)
	}

	s.logger.Debug("Generation completed",
		zap.String("operation", operation),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// decodeReply parses a JSON object, tolerating a surrounding markdown fence
func decodeReply(raw string, dst interface{}) error {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(raw, "```")
		raw = strings.TrimSpace(raw)
	}
	if raw == "" {
		return fmt.Errorf("empty reply")
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("reply is not valid JSON: %w", err)
	}
	return nil
}
