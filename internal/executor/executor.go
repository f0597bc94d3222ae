// Package executor dispatches model decisions onto a surface. It is the only
// place decisions are validated against the live input space; everything
// upstream treats coordinates as opaque numbers.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/surface"
)

// defaultSwipeDuration is used when the configuration leaves the swipe
// duration unset.
const defaultSwipeDuration = 300 * time.Millisecond

// Config tunes dispatch behavior.
type Config struct {
	// SwipeDuration is how long a swipe gesture takes from press to release.
	SwipeDuration time.Duration
}

// Executor implements the loop's Actor against a Surface.
type Executor struct {
	surface  surface.Surface
	swipeDur time.Duration
	logger   *zap.Logger
}

// New wires an executor for the given surface.
func New(s surface.Surface, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	dur := cfg.SwipeDuration
	if dur <= 0 {
		dur = defaultSwipeDuration
	}
	return &Executor{
		surface:  s,
		swipeDur: dur,
		logger:   logger.Named("executor"),
	}
}

// Act validates and dispatches one decision. Structural problems and
// out-of-bounds coordinates return InvalidActionError before the surface is
// touched; failures from the surface itself return ExecutionError. A finish
// decision is terminal for the loop and never reaches dispatch, so one
// arriving here is rejected.
func (e *Executor) Act(ctx context.Context, decision agent.Decision) (agent.ExecutionResult, error) {
	start := time.Now()
	if err := decision.Validate(); err != nil {
		return e.failed(start, &InvalidActionError{Decision: decision.String(), Reason: err.Error()})
	}

	e.logger.Debug("dispatching", zap.String("decision", decision.String()))

	var detail string
	switch decision.Kind {
	case agent.DecisionTap:
		size, err := e.bounds(ctx, decision)
		if err != nil {
			return e.failed(start, err)
		}
		if !size.Contains(decision.X, decision.Y) {
			return e.failed(start, &InvalidActionError{
				Decision: decision.String(),
				Reason:   fmt.Sprintf("point outside surface bounds %dx%d", size.Width, size.Height),
			})
		}
		if err := e.surface.Tap(ctx, decision.X, decision.Y); err != nil {
			return e.failed(start, wrapSurface("tap", decision, err))
		}
		detail = fmt.Sprintf("tapped (%d,%d)", decision.X, decision.Y)

	case agent.DecisionType:
		if err := e.surface.TypeText(ctx, decision.Text); err != nil {
			return e.failed(start, wrapSurface("type", decision, err))
		}
		detail = fmt.Sprintf("typed %d chars", len(decision.Text))

	case agent.DecisionSwipe:
		size, err := e.bounds(ctx, decision)
		if err != nil {
			return e.failed(start, err)
		}
		fromX, fromY, toX, toY := swipeEndpoints(size, decision.DX, decision.DY)
		if err := e.surface.Swipe(ctx, fromX, fromY, toX, toY, e.swipeDur); err != nil {
			return e.failed(start, wrapSurface("swipe", decision, err))
		}
		detail = fmt.Sprintf("swiped (%d,%d)->(%d,%d)", fromX, fromY, toX, toY)

	case agent.DecisionWait:
		if err := sleep(ctx, time.Duration(decision.WaitMS)*time.Millisecond); err != nil {
			return e.failed(start, err)
		}
		detail = fmt.Sprintf("waited %dms", decision.WaitMS)

	case agent.DecisionFinish:
		return e.failed(start, &InvalidActionError{
			Decision: decision.String(),
			Reason:   "finish is terminal and is never dispatched",
		})

	default:
		return e.failed(start, &InvalidActionError{
			Decision: decision.String(),
			Reason:   "unknown action kind",
		})
	}

	return agent.ExecutionResult{
		Status:  agent.ExecutionSucceeded,
		Detail:  detail,
		Elapsed: time.Since(start),
	}, nil
}

// bounds queries the live input space. The query is device I/O and failures
// are treated like any other dispatch failure.
func (e *Executor) bounds(ctx context.Context, decision agent.Decision) (surface.Size, error) {
	size, err := e.surface.Bounds(ctx)
	if err != nil {
		return surface.Size{}, wrapSurface("bounds", decision, err)
	}
	return size, nil
}

func (e *Executor) failed(start time.Time, err error) (agent.ExecutionResult, error) {
	return agent.ExecutionResult{
		Status:  agent.ExecutionFailed,
		Detail:  err.Error(),
		Elapsed: time.Since(start),
	}, err
}

// wrapSurface classifies a surface failure. Cancellation passes through
// untouched so the loop can report it as such instead of a step failure.
func wrapSurface(op string, decision agent.Decision, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ExecutionError{Op: op, Decision: decision.String(), Cause: err}
}

// swipeEndpoints places the displacement vector around the screen center and
// clamps both endpoints into the input space. A displacement larger than the
// screen is delivered clamped rather than rejected.
func swipeEndpoints(size surface.Size, dx, dy int) (fromX, fromY, toX, toY int) {
	cx, cy := size.Width/2, size.Height/2
	fromX = clamp(cx-dx/2, 0, size.Width-1)
	fromY = clamp(cy-dy/2, 0, size.Height-1)
	toX = clamp(cx-dx/2+dx, 0, size.Width-1)
	toY = clamp(cy-dy/2+dy, 0, size.Height-1)
	return fromX, fromY, toX, toY
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sleep blocks for d or until the context ends, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
