package generation

import (
	"context"
	"errors"
	"time"

	"canvas-backend/application/ports"
	pkgerrors "canvas-backend/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResilienceConfig configures the circuit breaker and client-side throttle
type ResilienceConfig struct {
	Name              string
	RequestsPerSecond float64
	Burst             int

	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultResilienceConfig returns a default configuration
func DefaultResilienceConfig(name string) ResilienceConfig {
	return ResilienceConfig{
		Name:              name,
		RequestsPerSecond: 5,
		Burst:             10,
		MaxRequests:       2,
		Interval:          30 * time.Second,
		Timeout:           30 * time.Second,
		FailureThreshold:  0.6,
		MinRequests:       5,
	}
}

// ResilientService guards a generation service with a rate limiter and a
// circuit breaker. Requests rejected by either fail fast with an
// UNAVAILABLE error; the orchestrator turns that into a placeholder.
type ResilientService struct {
	inner   ports.GenerationService
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewResilientService wraps inner
func NewResilientService(inner ports.GenerationService, cfg ResilienceConfig, logger *zap.Logger) *ResilientService {
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Generation circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// a caller giving up says nothing about the provider's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &ResilientService{
		inner:   inner,
		breaker: breaker,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// State reports the breaker state
func (r *ResilientService) State() gobreaker.State {
	return r.breaker.State()
}

func (r *ResilientService) Query(ctx context.Context, text string) (ports.Answer, error) {
	return guarded(ctx, r, func(ctx context.Context) (ports.Answer, error) {
		return r.inner.Query(ctx, text)
	})
}

func (r *ResilientService) FollowUp(ctx context.Context, text string, trail []string) (ports.Answer, error) {
	return guarded(ctx, r, func(ctx context.Context) (ports.Answer, error) {
		return r.inner.FollowUp(ctx, text, trail)
	})
}

func (r *ResilientService) Topic(ctx context.Context, term string, trail []string) (ports.TopicExplanation, error) {
	return guarded(ctx, r, func(ctx context.Context) (ports.TopicExplanation, error) {
		return r.inner.Topic(ctx, term, trail)
	})
}

func (r *ResilientService) Synthesize(ctx context.Context, contexts []string, customPrompt string) (ports.Synthesis, error) {
	return guarded(ctx, r, func(ctx context.Context) (ports.Synthesis, error) {
		return r.inner.Synthesize(ctx, contexts, customPrompt)
	})
}

func guarded[T any](ctx context.Context, r *ResilientService, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := r.limiter.Wait(ctx); err != nil {
		return zero, pkgerrors.NewUnavailableError("generation service").WithCause(err)
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.Debug("Generation request rejected by circuit breaker", zap.Error(err))
			return zero, pkgerrors.NewUnavailableError("generation service").WithCause(err)
		}
		return zero, pkgerrors.NewExternalError("generation service", err)
	}
	return out.(T), nil
}
