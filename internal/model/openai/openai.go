// Package openai adapts the OpenAI Chat Completions API to the model
// gateway contract. Endpoint overrides make it serve any OpenAI-compatible
// gateway as well.
package openai

import (
	"context"
	"errors"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/model"
)

const (
	providerName = "openai"
	opGenerate   = "generate"
)

// ChatClient captures the subset of the OpenAI SDK used by the adapter. It
// is satisfied by *sdk.ChatCompletionService, so tests can pass a fake.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Client implements the model gateway over Chat Completions.
type Client struct {
	chat        ChatClient
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// New builds an OpenAI-backed client from one model entry.
func New(cfg config.ModelConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, model.NewProviderError(providerName, "init", model.KindAuth, "api key is required", nil)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	sdkClient := sdk.NewClient(opts...)
	return NewWithChat(&sdkClient.Chat.Completions, cfg, logger), nil
}

// NewWithChat wires the adapter over any ChatClient. Used directly by tests
// and by New with the real SDK.
func NewWithChat(chat ChatClient, cfg config.ModelConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		chat:        chat,
		model:       cfg.Model,
		temperature: float64(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("model.openai"),
	}
}

func (c *Client) Name() string { return providerName }

// Close is a no-op; the SDK client holds no resources needing release.
func (c *Client) Close() error { return nil }

// Generate issues one Chat Completions call and maps the reply.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(c.model),
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, sdk.SystemMessage(req.SystemPrompt))
	}
	params.Messages = append(params.Messages, sdk.UserMessage(req.UserPrompt))
	if t := effectiveTemperature(req.Options.Temperature, c.temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}
	if mt := effectiveMaxTokens(req.Options.MaxTokens, c.maxTokens); mt > 0 {
		params.MaxTokens = sdk.Int(int64(mt))
	}

	start := time.Now()
	completion, err := c.chat.New(ctx, params)
	if err != nil {
		return model.Response{}, classify(err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return model.Response{}, model.NewProviderError(providerName, opGenerate, model.KindMalformedReply, "reply carried no choices", nil)
	}

	choice := completion.Choices[0]
	if choice.Message.Content == "" {
		return model.Response{}, model.NewProviderError(providerName, opGenerate, model.KindMalformedReply, "reply carried no content", nil)
	}

	out := model.Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		ModelID:    completion.Model,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	if out.ModelID == "" {
		out.ModelID = c.model
	}

	c.logger.Debug("Generation complete",
		zap.String("model", out.ModelID),
		zap.String("stop_reason", out.StopReason),
		zap.Int("output_tokens", out.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return model.NewStatusError(providerName, opGenerate, apiErr.StatusCode, "", err)
	}
	return model.WrapTransport(providerName, opGenerate, err)
}

func effectiveTemperature(requested, configured float64) float64 {
	if requested > 0 {
		return requested
	}
	return configured
}

func effectiveMaxTokens(requested, configured int) int {
	if requested > 0 {
		return requested
	}
	return configured
}
