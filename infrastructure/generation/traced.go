package generation

import (
	"context"

	"canvas-backend/application/ports"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedService records a span around every generation call
type TracedService struct {
	inner  ports.GenerationService
	tracer trace.Tracer
}

// NewTracedService wraps inner with tracing
func NewTracedService(inner ports.GenerationService, tracer trace.Tracer) *TracedService {
	return &TracedService{inner: inner, tracer: tracer}
}

func (t *TracedService) Query(ctx context.Context, text string) (ports.Answer, error) {
	ctx, span := t.tracer.Start(ctx, "Generation.Query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("prompt.length", len(text))),
	)
	defer span.End()

	answer, err := t.inner.Query(ctx, text)
	finish(span, err)
	span.SetAttributes(attribute.Int("followups.count", len(answer.FollowUps)))
	return answer, err
}

func (t *TracedService) FollowUp(ctx context.Context, text string, trail []string) (ports.Answer, error) {
	ctx, span := t.tracer.Start(ctx, "Generation.FollowUp",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("prompt.length", len(text)),
			attribute.Int("context.depth", len(trail)),
		),
	)
	defer span.End()

	answer, err := t.inner.FollowUp(ctx, text, trail)
	finish(span, err)
	span.SetAttributes(attribute.Int("followups.count", len(answer.FollowUps)))
	return answer, err
}

func (t *TracedService) Topic(ctx context.Context, term string, trail []string) (ports.TopicExplanation, error) {
	ctx, span := t.tracer.Start(ctx, "Generation.Topic",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("topic.term", term),
			attribute.Int("context.depth", len(trail)),
		),
	)
	defer span.End()

	explanation, err := t.inner.Topic(ctx, term, trail)
	finish(span, err)
	return explanation, err
}

func (t *TracedService) Synthesize(ctx context.Context, contexts []string, customPrompt string) (ports.Synthesis, error) {
	ctx, span := t.tracer.Start(ctx, "Generation.Synthesize",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("contexts.count", len(contexts)),
			attribute.Bool("has_custom_prompt", customPrompt != ""),
		),
	)
	defer span.End()

	synthesis, err := t.inner.Synthesize(ctx, contexts, customPrompt)
	finish(span, err)
	return synthesis, err
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return
	}
	span.SetStatus(codes.Ok, "")
}
