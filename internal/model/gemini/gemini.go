// Package gemini adapts the Google GenAI SDK to the model gateway contract.
package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/model"
)

const (
	providerName = "gemini"
	opGenerate   = "generate"
)

// Generator captures the slice of the GenAI SDK the adapter calls. It is
// satisfied by *genai.Models, so tests can substitute a fake.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements the model gateway over the Gemini API.
type Client struct {
	generator   Generator
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// New builds a Gemini-backed client from one model entry.
func New(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, model.NewProviderError(providerName, "init", model.KindAuth, "api key is required", nil)
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.Endpoint
	}
	sdkClient, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, model.NewProviderError(providerName, "init", model.KindUnknown, "creating sdk client", err)
	}
	return NewWithGenerator(sdkClient.Models, cfg, logger), nil
}

// NewWithGenerator wires the adapter over any Generator. Used directly by
// tests and by New with the real SDK.
func NewWithGenerator(generator Generator, cfg config.ModelConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		generator:   generator,
		model:       cfg.Model,
		temperature: float64(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("model.gemini"),
	}
}

func (c *Client) Name() string { return providerName }

// Close is a no-op; the SDK client holds no resources needing release.
func (c *Client) Close() error { return nil }

// Generate issues one GenerateContent call and maps the reply.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	genCfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if t := effectiveTemperature(req.Options.Temperature, c.temperature); t > 0 {
		tf := float32(t)
		genCfg.Temperature = &tf
	}
	if mt := effectiveMaxTokens(req.Options.MaxTokens, c.maxTokens); mt > 0 {
		genCfg.MaxOutputTokens = int32(mt)
	}
	if req.Options.ForceJSON {
		genCfg.ResponseMIMEType = "application/json"
	}
	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}

	start := time.Now()
	resp, err := c.generator.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		return model.Response{}, classify(err)
	}

	text := collectText(resp)
	if text == "" {
		return model.Response{}, model.NewProviderError(providerName, opGenerate, model.KindMalformedReply, "reply carried no text parts", nil)
	}

	out := model.Response{Text: text, ModelID: c.model}
	if len(resp.Candidates) > 0 {
		out.StopReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	c.logger.Debug("Generation complete",
		zap.String("model", c.model),
		zap.String("stop_reason", out.StopReason),
		zap.Int("output_tokens", out.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// collectText concatenates the text parts of the first candidate.
func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return model.NewStatusError(providerName, opGenerate, apiErr.Code, apiErr.Message, err)
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
