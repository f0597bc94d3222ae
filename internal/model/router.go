package model

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Router dispatches each request to the backend configured for its tier. It
// implements Client itself, so callers stay ignorant of tier wiring.
type Router struct {
	clients map[Tier]Client
	logger  *zap.Logger
}

// NewRouter wires the tier map. Either backend may be nil as long as one is
// set; the missing tier falls back to the other.
func NewRouter(fast, powerful Client, logger *zap.Logger) (*Router, error) {
	if fast == nil && powerful == nil {
		return nil, errors.New("router requires at least one backend client")
	}
	if fast == nil {
		fast = powerful
	}
	if powerful == nil {
		powerful = fast
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		clients: map[Tier]Client{
			TierFast:     fast,
			TierPowerful: powerful,
		},
		logger: logger.Named("model.router"),
	}, nil
}

func (r *Router) Name() string { return "router" }

// Generate routes by the request's tier. An empty or unknown tier goes to
// the powerful backend.
func (r *Router) Generate(ctx context.Context, req Request) (Response, error) {
	return r.pick(req.Tier).Generate(ctx, req)
}

func (r *Router) pick(tier Tier) Client {
	if client, ok := r.clients[tier]; ok {
		return client
	}
	if tier != "" {
		r.logger.Warn("Unknown model tier requested, falling back to powerful",
			zap.String("tier", string(tier)),
		)
	}
	return r.clients[TierPowerful]
}

// Close closes every distinct backend exactly once. Both tiers may share one
// client.
func (r *Router) Close() error {
	closed := make(map[Client]bool, len(r.clients))
	var firstErr error
	for _, client := range r.clients {
		if closed[client] {
			continue
		}
		closed[client] = true
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
