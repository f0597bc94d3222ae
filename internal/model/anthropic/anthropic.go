// Package anthropic adapts the Anthropic Messages API to the model gateway
// contract.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/model"
)

const (
	providerName = "anthropic"
	opGenerate   = "generate"
	// defaultMaxTokens applies when neither the request nor the model entry
	// caps the completion. The Messages API requires an explicit value.
	defaultMaxTokens = 4096
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter. It is satisfied by *sdk.MessageService, so tests can pass a fake.
type MessagesClient interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements the model gateway over Anthropic Messages.
type Client struct {
	messages    MessagesClient
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// New builds an Anthropic-backed client from one model entry.
func New(cfg config.ModelConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, model.NewProviderError(providerName, "init", model.KindAuth, "api key is required", nil)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	sdkClient := sdk.NewClient(opts...)
	return NewWithMessages(&sdkClient.Messages, cfg, logger), nil
}

// NewWithMessages wires the adapter over any MessagesClient. Used directly
// by tests and by New with the real SDK.
func NewWithMessages(messages MessagesClient, cfg config.ModelConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		messages:    messages,
		model:       cfg.Model,
		temperature: float64(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("model.anthropic"),
	}
}

func (c *Client) Name() string { return providerName }

// Close is a no-op; the SDK client holds no resources needing release.
func (c *Client) Close() error { return nil }

// Generate issues one Messages.New call and maps the reply.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if t := effectiveTemperature(req.Options.Temperature, c.temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}

	start := time.Now()
	msg, err := c.messages.New(ctx, params)
	if err != nil {
		return model.Response{}, classify(err)
	}
	if msg == nil {
		return model.Response{}, model.NewProviderError(providerName, opGenerate, model.KindMalformedReply, "nil reply message", nil)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := b.String()
	if text == "" {
		return model.Response{}, model.NewProviderError(providerName, opGenerate, model.KindMalformedReply, "reply carried no text blocks", nil)
	}

	out := model.Response{
		Text:       text,
		StopReason: string(msg.StopReason),
		ModelID:    string(msg.Model),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
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
