package openai

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/model"
)

type fakeChat struct {
	completion *sdk.ChatCompletion
	err        error

	lastParams sdk.ChatCompletionNewParams
}

func (f *fakeChat) New(_ context.Context, params sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func textCompletion(text string) *sdk.ChatCompletion {
	return &sdk.ChatCompletion{
		Model: "gpt-4o-mini",
		Choices: []sdk.ChatCompletionChoice{
			{
				Message:      sdk.ChatCompletionMessage{Content: text},
				FinishReason: "stop",
			},
		},
		Usage: sdk.CompletionUsage{
			PromptTokens:     90,
			CompletionTokens: 12,
		},
	}
}

func testModelConfig() config.ModelConfig {
	return config.ModelConfig{
		Provider:    config.ProviderOpenAI,
		Model:       "gpt-4o-mini",
		Temperature: 0.1,
		MaxTokens:   512,
	}
}

func TestGenerate(t *testing.T) {
	req := model.Request{
		SystemPrompt: "You drive the screen.",
		UserPrompt:   "Goal: open settings",
	}

	t.Run("maps request and response", func(t *testing.T) {
		chat := &fakeChat{completion: textCompletion(`{"action": "wait", "wait_ms": 800}`)}
		client := NewWithChat(chat, testModelConfig(), zap.NewNop())

		resp, err := client.Generate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, `{"action": "wait", "wait_ms": 800}`, resp.Text)
		assert.Equal(t, "stop", resp.StopReason)
		assert.Equal(t, "gpt-4o-mini", resp.ModelID)
		assert.Equal(t, 90, resp.Usage.InputTokens)
		assert.Equal(t, 12, resp.Usage.OutputTokens)

		params := chat.lastParams
		assert.Equal(t, sdk.ChatModel("gpt-4o-mini"), params.Model)
		require.Len(t, params.Messages, 2)
		assert.Equal(t, int64(512), params.MaxTokens.Or(0))
		assert.InDelta(t, 0.1, params.Temperature.Or(0), 1e-6)
	})

	t.Run("system prompt is optional", func(t *testing.T) {
		chat := &fakeChat{completion: textCompletion("ok")}
		client := NewWithChat(chat, testModelConfig(), zap.NewNop())

		bare := req
		bare.SystemPrompt = ""
		_, err := client.Generate(context.Background(), bare)
		require.NoError(t, err)
		assert.Len(t, chat.lastParams.Messages, 1)
	})

	t.Run("reply without choices is a malformed reply error", func(t *testing.T) {
		chat := &fakeChat{completion: &sdk.ChatCompletion{}}
		client := NewWithChat(chat, testModelConfig(), zap.NewNop())

		_, err := client.Generate(context.Background(), req)
		pe, ok := model.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, model.KindMalformedReply, pe.Kind)
		assert.False(t, pe.Retryable())
	})

	t.Run("api errors classify by status", func(t *testing.T) {
		chat := &fakeChat{err: &sdk.Error{StatusCode: 429}}
		client := NewWithChat(chat, testModelConfig(), zap.NewNop())

		_, err := client.Generate(context.Background(), req)
		pe, ok := model.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, model.KindRateLimited, pe.Kind)
		assert.True(t, pe.Retryable())

		chat.err = &sdk.Error{StatusCode: 400}
		_, err = client.Generate(context.Background(), req)
		pe, ok = model.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, model.KindInvalidRequest, pe.Kind)
		assert.False(t, pe.Retryable())
	})

	t.Run("transport errors stay retryable", func(t *testing.T) {
		chat := &fakeChat{err: errors.New("dial tcp: i/o timeout")}
		client := NewWithChat(chat, testModelConfig(), zap.NewNop())

		_, err := client.Generate(context.Background(), req)
		pe, ok := model.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, model.KindUnavailable, pe.Kind)
	})
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.ModelConfig{Model: "gpt-4o-mini"}, zap.NewNop())
	pe, ok := model.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindAuth, pe.Kind)
}
