package model

import (
	"context"

	"golang.org/x/time/rate"
)

// limited enforces a shared requests-per-minute cap in front of a backend.
// Providers meter quota per account, not per loop instance, so the cap sits
// above the router where every concurrent task passes through it.
type limited struct {
	next    Client
	limiter *rate.Limiter
}

// WithRateLimit wraps next so no more than rpm requests start per minute.
// Non-positive rpm disables the cap and returns next unchanged.
func WithRateLimit(next Client, rpm float64) Client {
	if rpm <= 0 {
		return next
	}
	return &limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rpm/60.0), 1),
	}
}

func (l *limited) Name() string { return l.next.Name() }

func (l *limited) Close() error { return l.next.Close() }

// Generate blocks until the limiter grants a slot, then delegates. A context
// cancelled while waiting surfaces as the context's own error.
func (l *limited) Generate(ctx context.Context, req Request) (Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}
	return l.next.Generate(ctx, req)
}
