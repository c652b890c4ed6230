package ai

import (
	"context"

	"golang.org/x/time/rate"

	"enlitens/pkg/errors"
)

// RateLimiter throttles outbound provider requests.
type RateLimiter interface {
	// Wait blocks until a request can proceed or the context is cancelled.
	Wait(ctx context.Context) error

	// Allow reports whether a request can proceed without blocking.
	Allow() bool

	// Limit returns the configured requests per second.
	Limit() float64
}

// tokenLimiter wraps x/time/rate with the provider name for error context.
type tokenLimiter struct {
	limiter  *rate.Limiter
	provider string
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst. Non-positive rps disables throttling.
func NewRateLimiter(provider string, rps float64, burst int) RateLimiter {
	if rps <= 0 {
		return &tokenLimiter{limiter: rate.NewLimiter(rate.Inf, 1), provider: provider}
	}
	if burst < 1 {
		burst = 1
	}
	return &tokenLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst), provider: provider}
}

func (l *tokenLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(errors.ErrRateLimitExceeded, "provider %s: %v", l.provider, err)
	}
	return nil
}

func (l *tokenLimiter) Allow() bool { return l.limiter.Allow() }

func (l *tokenLimiter) Limit() float64 { return float64(l.limiter.Limit()) }
