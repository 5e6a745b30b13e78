package httpclient

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the client's own limiter rejects an
// attempt. It is not transient: the call fails at once.
var ErrRateLimited = errors.New("httpclient: rate limit exceeded")

// RateLimitConfig configures client-level rate limiting.
//
// The limiter is shared by every call of the Client and gates each
// attempt, retries included.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithRateLimit(httpclient.RateLimitConfig{
//	        RequestsPerSecond: 2,
//	        Burst:             1,
//	        WaitOnLimit:       true,
//	    }),
//	)
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained attempt rate. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the number of attempts allowed at once.
	// Values below 1 are raised to 1.
	Burst int

	// WaitOnLimit blocks until a token is free (bounded by the call's
	// context). When false, attempts beyond the rate fail with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig returns 10 attempts per second, burst 5, waiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             5,
		WaitOnLimit:       true,
	}
}

// WithRateLimit enables client-level rate limiting.
func WithRateLimit(c RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = &c
	}
}

// RateLimiterStats provides visibility into rate limiter state.
type RateLimiterStats struct {
	// Limit is the maximum rate per second.
	Limit float64
	// Burst is the maximum burst size.
	Burst int
	// TokensAvailable is the current number of tokens.
	TokensAvailable float64
}

// rateLimiter gates attempts. A nil *rateLimiter allows everything.
type rateLimiter struct {
	limiter *rate.Limiter
	wait    bool
}

func newRateLimiter(cfg *RateLimitConfig) *rateLimiter {
	if cfg == nil || cfg.RequestsPerSecond <= 0 {
		return nil
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		wait:    cfg.WaitOnLimit,
	}
}

// acquire takes a token for one attempt.
func (r *rateLimiter) acquire(ctx context.Context) error {
	if r == nil {
		return nil
	}

	if !r.wait {
		if !r.limiter.Allow() {
			return ErrRateLimited
		}
		return nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The wait would outlast the context deadline.
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return nil
}

func (r *rateLimiter) stats() RateLimiterStats {
	if r == nil {
		return RateLimiterStats{}
	}
	return RateLimiterStats{
		Limit:           float64(r.limiter.Limit()),
		Burst:           r.limiter.Burst(),
		TokensAvailable: r.limiter.Tokens(),
	}
}
