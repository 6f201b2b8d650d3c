package ports

import (
	"context"
)

// Answer is the result of a query or follow-up generation
type Answer struct {
	Answer    string   `json:"answer" validate:"required"`
	FollowUps []string `json:"followUps" validate:"dive,required"`
}

// TopicExplanation is the result of a topic generation
type TopicExplanation struct {
	Explanation string `json:"explanation" validate:"required"`
}

// Synthesis is the result of combining several context trails
type Synthesis struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// GenerationService is the external text-generation collaborator.
// Every method may fail; callers treat failure as recoverable.
type GenerationService interface {
	// Query answers a fresh top-level question
	Query(ctx context.Context, text string) (Answer, error)

	// FollowUp answers a question given its root-first ancestor context
	FollowUp(ctx context.Context, text string, context []string) (Answer, error)

	// Topic explains a highlighted term in the context of a node
	Topic(ctx context.Context, term string, context []string) (TopicExplanation, error)

	// Synthesize combines several context trails into one document
	Synthesize(ctx context.Context, contexts []string, customPrompt string) (Synthesis, error)
}
