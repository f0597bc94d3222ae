package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/perception"
	"github.com/zfault/droidpilot/internal/retry"
	"github.com/zfault/droidpilot/internal/surface"
)

type tapCall struct{ x, y int }

type swipeCall struct {
	fromX, fromY, toX, toY int
	dur                    time.Duration
}

// fakeSurface records delivered input and serves a fixed coordinate space.
type fakeSurface struct {
	size      surface.Size
	boundsErr error
	tapErr    error
	swipeErr  error
	typeErr   error

	taps   []tapCall
	swipes []swipeCall
	typed  []string
}

func (f *fakeSurface) Capture(context.Context) (surface.Frame, error) {
	return surface.Frame{}, errors.New("capture not supported by fake")
}

func (f *fakeSurface) Bounds(context.Context) (surface.Size, error) {
	if f.boundsErr != nil {
		return surface.Size{}, f.boundsErr
	}
	return f.size, nil
}

func (f *fakeSurface) Tap(_ context.Context, x, y int) error {
	if f.tapErr != nil {
		return f.tapErr
	}
	f.taps = append(f.taps, tapCall{x, y})
	return nil
}

func (f *fakeSurface) Swipe(_ context.Context, fromX, fromY, toX, toY int, dur time.Duration) error {
	if f.swipeErr != nil {
		return f.swipeErr
	}
	f.swipes = append(f.swipes, swipeCall{fromX, fromY, toX, toY, dur})
	return nil
}

func (f *fakeSurface) TypeText(_ context.Context, text string) error {
	if f.typeErr != nil {
		return f.typeErr
	}
	f.typed = append(f.typed, text)
	return nil
}

func (f *fakeSurface) Key(context.Context, surface.KeyCode) error { return nil }

func (f *fakeSurface) Close() error { return nil }

func newTestExecutor(t *testing.T, fake *fakeSurface, cfg Config) *Executor {
	t.Helper()
	return New(fake, cfg, zaptest.NewLogger(t))
}

func TestExecutorAct(t *testing.T) {
	phoneSize := surface.Size{Width: 1080, Height: 1920}

	t.Run("tap inside bounds is delivered", func(t *testing.T) {
		fake := &fakeSurface{size: phoneSize}
		ex := newTestExecutor(t, fake, Config{})

		result, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionTap, X: 120, Y: 44})
		require.NoError(t, err)
		assert.Equal(t, agent.ExecutionSucceeded, result.Status)
		assert.Contains(t, result.Detail, "tapped (120,44)")
		require.Len(t, fake.taps, 1)
		assert.Equal(t, tapCall{120, 44}, fake.taps[0])
	})

	t.Run("tap outside bounds never reaches the surface", func(t *testing.T) {
		fake := &fakeSurface{size: phoneSize}
		ex := newTestExecutor(t, fake, Config{})

		result, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionTap, X: 1200, Y: 44})
		require.Error(t, err)
		var invalid *InvalidActionError
		require.ErrorAs(t, err, &invalid)
		assert.Contains(t, invalid.Reason, "outside surface bounds 1080x1920")
		assert.False(t, retry.IsRetryable(err))
		assert.Equal(t, agent.ErrCodeInvalidAction, agent.ErrorCodeOf(err))
		assert.Equal(t, agent.ExecutionFailed, result.Status)
		assert.Empty(t, fake.taps)
	})

	t.Run("structurally invalid decision is rejected before bounds query", func(t *testing.T) {
		fake := &fakeSurface{boundsErr: errors.New("should not be called")}
		ex := newTestExecutor(t, fake, Config{})

		_, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionTap, X: -5, Y: 10})
		var invalid *InvalidActionError
		require.ErrorAs(t, err, &invalid)
		assert.False(t, retry.IsRetryable(err))
	})

	t.Run("overlong wait is rejected", func(t *testing.T) {
		fake := &fakeSurface{size: phoneSize}
		ex := newTestExecutor(t, fake, Config{})

		_, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionWait, WaitMS: 60_000})
		var invalid *InvalidActionError
		require.ErrorAs(t, err, &invalid)
		assert.False(t, retry.IsRetryable(err))
	})

	t.Run("surface failure wraps as retryable execution error", func(t *testing.T) {
		fake := &fakeSurface{size: phoneSize, tapErr: errors.New("device offline")}
		ex := newTestExecutor(t, fake, Config{})

		result, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionTap, X: 10, Y: 10})
		require.Error(t, err)
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "tap", execErr.Op)
		assert.True(t, retry.IsRetryable(err))
		assert.Equal(t, agent.ErrCodeExecution, agent.ErrorCodeOf(err))
		assert.Equal(t, agent.ExecutionFailed, result.Status)
	})

	t.Run("bounds query failure wraps as execution error", func(t *testing.T) {
		fake := &fakeSurface{boundsErr: errors.New("wm size: no devices")}
		ex := newTestExecutor(t, fake, Config{})

		_, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionTap, X: 10, Y: 10})
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "bounds", execErr.Op)
		assert.True(t, retry.IsRetryable(err))
	})

	t.Run("type delivers literal text", func(t *testing.T) {
		fake := &fakeSurface{size: phoneSize}
		ex := newTestExecutor(t, fake, Config{})

		result, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionType, Text: "hello world"})
		require.NoError(t, err)
		assert.Equal(t, agent.ExecutionSucceeded, result.Status)
		require.Len(t, fake.typed, 1)
		assert.Equal(t, "hello world", fake.typed[0])
	})

	t.Run("swipe is centered and uses the configured duration", func(t *testing.T) {
		fake := &fakeSurface{size: surface.Size{Width: 1000, Height: 2000}}
		ex := newTestExecutor(t, fake, Config{SwipeDuration: 150 * time.Millisecond})

		result, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionSwipe, DX: 0, DY: -400})
		require.NoError(t, err)
		assert.Equal(t, agent.ExecutionSucceeded, result.Status)
		require.Len(t, fake.swipes, 1)
		assert.Equal(t, swipeCall{500, 1200, 500, 800, 150 * time.Millisecond}, fake.swipes[0])
	})

	t.Run("wait pauses for the requested duration", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		fake := &fakeSurface{size: phoneSize}
		ex := newTestExecutor(t, fake, Config{})

		start := time.Now()
		result, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionWait, WaitMS: 20})
		require.NoError(t, err)
		assert.Equal(t, agent.ExecutionSucceeded, result.Status)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("wait honors cancellation", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		fake := &fakeSurface{size: phoneSize}
		ex := newTestExecutor(t, fake, Config{})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := ex.Act(ctx, agent.Decision{Kind: agent.DecisionWait, WaitMS: 5000})
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, retry.IsRetryable(err))
	})

	t.Run("finish decision is rejected", func(t *testing.T) {
		fake := &fakeSurface{size: phoneSize}
		ex := newTestExecutor(t, fake, Config{})

		success := true
		_, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionFinish, Success: &success})
		var invalid *InvalidActionError
		require.ErrorAs(t, err, &invalid)
		assert.Contains(t, invalid.Reason, "never dispatched")
	})
}

func TestSwipeEndpoints(t *testing.T) {
	size := surface.Size{Width: 1000, Height: 2000}
	tests := []struct {
		name                   string
		dx, dy                 int
		fromX, fromY, toX, toY int
	}{
		{"scroll up", 0, -400, 500, 1200, 500, 800},
		{"scroll down", 0, 400, 500, 800, 500, 1200},
		{"swipe left", -300, 0, 650, 1000, 350, 1000},
		{"odd displacement keeps its length", 5, 0, 498, 1000, 503, 1000},
		{"oversized displacement clamps to the screen", 3000, 0, 0, 1000, 999, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fromX, fromY, toX, toY := swipeEndpoints(size, tt.dx, tt.dy)
			assert.Equal(t, [4]int{tt.fromX, tt.fromY, tt.toX, tt.toY}, [4]int{fromX, fromY, toX, toY})
		})
	}
}

// A region's reported center must be a tappable point that lands back inside
// that region, otherwise the model could never reliably hit what it saw.
func TestRegionCenterTapHitsRegion(t *testing.T) {
	region := perception.Region{
		Text:       "Submit",
		Box:        perception.Box{X: 10, Y: 10, W: 40, H: 20},
		Confidence: 0.95,
	}
	obs := perception.Observation{Width: 100, Height: 100, Regions: []perception.Region{region}}

	x, y := region.Box.Center()
	assert.Equal(t, 30, x)
	assert.Equal(t, 20, y)

	fake := &fakeSurface{size: surface.Size{Width: obs.Width, Height: obs.Height}}
	ex := newTestExecutor(t, fake, Config{})
	_, err := ex.Act(context.Background(), agent.Decision{Kind: agent.DecisionTap, X: x, Y: y})
	require.NoError(t, err)

	require.Len(t, fake.taps, 1)
	hit, ok := obs.RegionAt(fake.taps[0].x, fake.taps[0].y)
	require.True(t, ok)
	assert.Equal(t, "Submit", hit.Text)
}
