// Package model is the uniform gateway to the configured LLM backends. It
// owns the request/response contract every provider adapter maps onto, the
// tier router, the prompt construction for step decisions and the parser
// that turns raw replies back into loop decisions.
package model

import "context"

// Tier selects a model by a preference for speed versus capability rather
// than by concrete identifier. The router resolves it against configuration.
type Tier string

const (
	// TierFast prefers a quicker, cheaper model. Step decisions default to
	// it; they are frequent and individually low-stakes.
	TierFast Tier = "fast"
	// TierPowerful prefers the most capable configured model. Planning and
	// verification default to it.
	TierPowerful Tier = "powerful"
)

// Options tunes a single generation.
type Options struct {
	// Temperature controls randomness. Zero means the backend default.
	Temperature float64 `json:"temperature,omitempty"`
	// MaxTokens caps the completion length. Zero means the configured
	// per-model default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// ForceJSON asks the backend for a JSON-only reply where the provider
	// supports enforcing it. The prompt demands JSON regardless.
	ForceJSON bool `json:"force_json,omitempty"`
}

// Request is one complete generation request.
type Request struct {
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	Tier         Tier    `json:"tier,omitempty"`
	Options      Options `json:"options"`
}

// Usage reports the token cost of one generation as the provider metered it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response carries the completed text plus provider-side metadata.
type Response struct {
	Text string `json:"text"`
	// StopReason is the provider's own termination label, normalized only
	// to a string. Logged, never branched on.
	StopReason string `json:"stop_reason,omitempty"`
	// ModelID is the concrete model that served the request.
	ModelID string `json:"model_id,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Client is the capability every backend adapter implements. Failures
// surface as *ProviderError so callers can distinguish transient from
// permanent without knowing the provider.
type Client interface {
	// Generate produces a completion for the request.
	Generate(ctx context.Context, req Request) (Response, error)
	// Name identifies the backend in logs and errors.
	Name() string
	// Close releases any connections or SDK resources held by the client.
	Close() error
}
