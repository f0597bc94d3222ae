package model

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfault/droidpilot/internal/agent"
)

func TestParseDecision(t *testing.T) {
	t.Run("bare json object", func(t *testing.T) {
		d, err := ParseDecision("test", `{"action": "tap", "x": 540, "y": 1200, "rationale": "open settings"}`)
		require.NoError(t, err)
		assert.Equal(t, agent.DecisionTap, d.Kind)
		assert.Equal(t, 540, d.X)
		assert.Equal(t, 1200, d.Y)
		assert.Equal(t, "open settings", d.Rationale)
	})

	t.Run("fenced json block", func(t *testing.T) {
		raw := "```json\n{\"action\": \"type\", \"text\": \"hello\"}\n```"
		d, err := ParseDecision("test", raw)
		require.NoError(t, err)
		assert.Equal(t, agent.DecisionType, d.Kind)
		assert.Equal(t, "hello", d.Text)
	})

	t.Run("object wrapped in prose", func(t *testing.T) {
		raw := "Here is my next move:\n{\"action\": \"swipe\", \"dx\": 0, \"dy\": -600}\nGood luck."
		d, err := ParseDecision("test", raw)
		require.NoError(t, err)
		assert.Equal(t, agent.DecisionSwipe, d.Kind)
		assert.Equal(t, -600, d.DY)
	})

	t.Run("finish carries explicit success flag", func(t *testing.T) {
		d, err := ParseDecision("test", `{"action": "finish", "success": false, "rationale": "login wall"}`)
		require.NoError(t, err)
		terminal, success := d.Finished()
		assert.True(t, terminal)
		assert.False(t, success)
	})

	t.Run("empty reply rejected", func(t *testing.T) {
		_, err := ParseDecision("test", "   \n ")
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, KindMalformedReply, pe.Kind)
		assert.False(t, pe.Retryable())
	})

	t.Run("no json object rejected", func(t *testing.T) {
		_, err := ParseDecision("test", "I would tap the settings icon.")
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, KindMalformedReply, pe.Kind)
		assert.Contains(t, err.Error(), "no JSON object")
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		_, err := ParseDecision("test", `{"action": "tap", "x": }`)
		_, ok := AsProviderError(err)
		require.True(t, ok)
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		_, err := ParseDecision("test", `{"action": "long_press", "x": 10, "y": 10}`)
		pe, ok := AsProviderError(err)
		require.True(t, ok)
		assert.Contains(t, pe.Message, "long_press")
	})

	t.Run("finish without success flag rejected", func(t *testing.T) {
		_, err := ParseDecision("test", `{"action": "finish"}`)
		_, ok := AsProviderError(err)
		require.True(t, ok)
	})

	t.Run("oversized wait rejected", func(t *testing.T) {
		_, err := ParseDecision("test", `{"action": "wait", "wait_ms": 600000}`)
		_, ok := AsProviderError(err)
		require.True(t, ok)
	})

	t.Run("long replies quoted truncated", func(t *testing.T) {
		_, err := ParseDecision("test", strings.Repeat("x", 5000))
		require.Error(t, err)
		assert.Less(t, len(err.Error()), 400)
	})
}

// FuzzParseDecision asserts the parser never panics and never hands back a
// decision that fails its own validation.
func FuzzParseDecision(f *testing.F) {
	f.Add(`{"action": "tap", "x": 10, "y": 20}`)
	f.Add("```json\n{\"action\": \"finish\", \"success\": true}\n```")
	f.Add(`{"action": "wait", "wait_ms": 500}`)
	f.Add("no json at all")
	f.Add(`{"action": "tap", "x": -5, "y": 3}`)
	f.Fuzz(func(t *testing.T, raw string) {
		d, err := ParseDecision("fuzz", raw)
		if err != nil {
			if _, ok := AsProviderError(err); !ok {
				t.Fatalf("parse failure is not a provider error: %v", err)
			}
			return
		}
		if verr := d.Validate(); verr != nil {
			t.Fatalf("parsed decision fails validation: %v", verr)
		}
	})
}

// FuzzDecisionRoundTrip renders arbitrary valid decisions to JSON and checks
// the parser reads them back with the same shape.
func FuzzDecisionRoundTrip(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		var d agent.Decision
		if err := fuzzConsumer.GenerateStruct(&d); err != nil {
			return
		}
		if d.Validate() != nil {
			return
		}
		raw, err := json.Marshal(d)
		if err != nil {
			return
		}

		parsed, perr := ParseDecision("fuzz", string(raw))
		require.NoError(t, perr)
		assert.Equal(t, d.Kind, parsed.Kind)
		assert.Equal(t, d.X, parsed.X)
		assert.Equal(t, d.Y, parsed.Y)
		assert.Equal(t, d.DX, parsed.DX)
		assert.Equal(t, d.DY, parsed.DY)
		assert.Equal(t, d.WaitMS, parsed.WaitMS)
	})
}
