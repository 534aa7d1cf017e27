package clients

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a Reasoner with a token bucket.
type RateLimited struct {
	next    Reasoner
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond calls with the given burst.
func NewRateLimited(next Reasoner, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *RateLimited) Name() string { return r.next.Name() }

// Generate waits for a token, then forwards the request.
func (r *RateLimited) Generate(ctx context.Context, req *ReasoningRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s rate limiter: %w", r.next.Name(), err)
	}
	return r.next.Generate(ctx, req)
}

// HealthCheck forwards to the wrapped backend when it has one. Health
// checks do not consume tokens.
func (r *RateLimited) HealthCheck(ctx context.Context) error {
	if hc, ok := r.next.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
