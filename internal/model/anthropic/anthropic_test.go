package anthropic

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/model"
)

type fakeMessages struct {
	msg *sdk.Message
	err error

	lastParams sdk.MessageNewParams
}

func (f *fakeMessages) New(_ context.Context, params sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.msg, nil
}

func textMessage(text string) *sdk.Message {
	return &sdk.Message{
		Model: "claude-haiku-4-5",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: text},
		},
		StopReason: sdk.StopReasonEndTurn,
		Usage: sdk.Usage{
			InputTokens:  200,
			OutputTokens: 25,
		},
	}
}

func testModelConfig() config.ModelConfig {
	return config.ModelConfig{
		Provider:    config.ProviderAnthropic,
		Model:       "claude-haiku-4-5",
		Temperature: 0.2,
		MaxTokens:   1024,
	}
}

func TestGenerate(t *testing.T) {
	req := model.Request{
		SystemPrompt: "You drive the screen.",
		UserPrompt:   "Goal: open settings",
	}

	t.Run("maps request and response", func(t *testing.T) {
		messages := &fakeMessages{msg: textMessage(`{"action": "tap", "x": 10, "y": 20}`)}
		client := NewWithMessages(messages, testModelConfig(), zap.NewNop())

		resp, err := client.Generate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, `{"action": "tap", "x": 10, "y": 20}`, resp.Text)
		assert.Equal(t, string(sdk.StopReasonEndTurn), resp.StopReason)
		assert.Equal(t, "claude-haiku-4-5", resp.ModelID)
		assert.Equal(t, 200, resp.Usage.InputTokens)
		assert.Equal(t, 25, resp.Usage.OutputTokens)

		params := messages.lastParams
		assert.Equal(t, sdk.Model("claude-haiku-4-5"), params.Model)
		assert.Equal(t, int64(1024), params.MaxTokens)
		require.Len(t, params.System, 1)
		assert.Equal(t, "You drive the screen.", params.System[0].Text)
		require.Len(t, params.Messages, 1)
		assert.InDelta(t, 0.2, params.Temperature.Or(0), 1e-6)
	})

	t.Run("caps completion length when nothing is configured", func(t *testing.T) {
		messages := &fakeMessages{msg: textMessage("ok")}
		cfg := testModelConfig()
		cfg.MaxTokens = 0
		client := NewWithMessages(messages, cfg, zap.NewNop())

		_, err := client.Generate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, int64(defaultMaxTokens), messages.lastParams.MaxTokens)
	})

	t.Run("joins multiple text blocks and skips the rest", func(t *testing.T) {
		messages := &fakeMessages{msg: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "hello "},
				{Type: "tool_use"},
				{Type: "text", Text: "world"},
			},
		}}
		client := NewWithMessages(messages, testModelConfig(), zap.NewNop())

		resp, err := client.Generate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "hello world", resp.Text)
	})

	t.Run("reply without text is a malformed reply error", func(t *testing.T) {
		messages := &fakeMessages{msg: &sdk.Message{}}
		client := NewWithMessages(messages, testModelConfig(), zap.NewNop())

		_, err := client.Generate(context.Background(), req)
		pe, ok := model.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, model.KindMalformedReply, pe.Kind)
		assert.False(t, pe.Retryable())
	})

	t.Run("api errors classify by status", func(t *testing.T) {
		messages := &fakeMessages{err: &sdk.Error{StatusCode: 529}}
		client := NewWithMessages(messages, testModelConfig(), zap.NewNop())

		_, err := client.Generate(context.Background(), req)
		pe, ok := model.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, model.KindUnavailable, pe.Kind)
		assert.True(t, pe.Retryable())

		messages.err = &sdk.Error{StatusCode: 401}
		_, err = client.Generate(context.Background(), req)
		pe, ok = model.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, model.KindAuth, pe.Kind)
		assert.False(t, pe.Retryable())
	})

	t.Run("transport errors stay retryable", func(t *testing.T) {
		messages := &fakeMessages{err: errors.New("read tcp: connection reset")}
		client := NewWithMessages(messages, testModelConfig(), zap.NewNop())

		_, err := client.Generate(context.Background(), req)
		pe, ok := model.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, model.KindUnavailable, pe.Kind)
		assert.True(t, pe.Retryable())
	})
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.ModelConfig{Model: "claude-haiku-4-5"}, zap.NewNop())
	pe, ok := model.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindAuth, pe.Kind)
}
