package generation

import (
	"context"
	"fmt"
	"strings"

	"canvas-backend/application/ports"
)

// StaticService is a deterministic offline generator. It only fails once ctx is done, and
// proposes the same follow-ups for the same question, which makes canvases
// reproducible without network access.
type StaticService struct {
	followUps int
}

// NewStaticService creates an offline generator proposing n follow-ups per answer
func NewStaticService(n int) *StaticService {
	if n < 0 {
		n = 0
	}
	return &StaticService{followUps: n}
}

var followUpTemplates = []string{
	"Why does %s matter?",
	"How does %s work in practice?",
	"What are the alternatives to %s?",
	"What are common misconceptions about %s?",
	"Where did %s come from?",
}

func (s *StaticService) Query(ctx context.Context, text string) (ports.Answer, error) {
	return s.answer(text), ctx.Err()
}

func (s *StaticService) FollowUp(ctx context.Context, text string, trail []string) (ports.Answer, error) {
	answer := s.answer(text)
	if len(trail) > 0 {
		answer.Answer = fmt.Sprintf("%s (building on %d earlier steps)", answer.Answer, len(trail))
	}
	return answer, ctx.Err()
}

func (s *StaticService) Topic(ctx context.Context, term string, trail []string) (ports.TopicExplanation, error) {
	return ports.TopicExplanation{
		Explanation: fmt.Sprintf("%s is a term used in this discussion. Offline mode has no further detail.", term),
	}, ctx.Err()
}

func (s *StaticService) Synthesize(ctx context.Context, contexts []string, customPrompt string) (ports.Synthesis, error) {
	title := fmt.Sprintf("Synthesis of %d threads", len(contexts))
	body := strings.Join(contexts, "\n\n---\n\n")
	if customPrompt != "" {
		body = customPrompt + "\n\n" + body
	}
	return ports.Synthesis{Title: title, Content: body}, ctx.Err()
}

func (s *StaticService) answer(text string) ports.Answer {
	subject := strings.TrimRight(strings.TrimSpace(text), "?.!")
	if subject == "" {
		subject = "this"
	}

	n := s.followUps
	if n > len(followUpTemplates) {
		n = len(followUpTemplates)
	}
	followUps := make([]string, 0, n)
	for _, tmpl := range followUpTemplates[:n] {
		followUps = append(followUps, fmt.Sprintf(tmpl, subject))
	}

	return ports.Answer{
		Answer:    "Offline answer to: " + strings.TrimSpace(text),
		FollowUps: followUps,
	}
}
