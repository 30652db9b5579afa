package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter limits how fast an endpoint accepts new connections, using a
// token bucket from golang.org/x/time/rate.
//
// Each accepted socket consumes one token. Tokens are refilled at the
// configured rate up to the burst size, so short spikes above the sustained
// rate are absorbed while a flood is rejected.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing perSecond events per second with the
// given burst capacity.
//
// Special cases:
//   - perSecond <= 0: unlimited
//   - burst <= 0: burst equals the rounded-up rate (at least 1)
//
// Example:
//
//	// Accept 200 connections/s sustained, 500 at once
//	limiter := New(200, 500)
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = max(1, int(perSecond+0.999))
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow consumes a token if one is available.
//
// Returns:
//   - true if the event is allowed
//   - false if it should be rejected
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Unlimited reports whether the limiter lets everything through.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// SetLimit updates the sustained rate. perSecond <= 0 removes the limit.
func (r *RateLimiter) SetLimit(perSecond float64) {
	if perSecond <= 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(perSecond))
}

// SetBurst updates the bucket capacity.
func (r *RateLimiter) SetBurst(burst int) {
	r.limiter.SetBurst(burst)
}

// Tokens returns the number of tokens currently available. Intended for
// monitoring; the value may change immediately after the call.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
