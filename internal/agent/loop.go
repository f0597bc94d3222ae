package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/perception"
	"github.com/zfault/droidpilot/internal/retry"
)

// summaryRegions caps how many observation regions are rendered into a
// step's history summary.
const summaryRegions = 12

// Perceiver produces a fresh structured observation of the surface.
type Perceiver interface {
	Observe(ctx context.Context) (perception.Observation, error)
}

// Decider chooses the next action from the task, the bounded history window
// and the current observation.
type Decider interface {
	Decide(ctx context.Context, task Task, history []StepRecord, obs perception.Observation) (Decision, error)
}

// Actor dispatches one decision onto the surface.
type Actor interface {
	Act(ctx context.Context, decision Decision) (ExecutionResult, error)
}

// Leaser serializes access to a surface shared between loop instances. The
// returned release func must always be called.
type Leaser interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Recorder receives per-step artifacts (frames, step records) as they are
// produced. Recording failures are logged, never fatal.
type Recorder interface {
	RecordFrame(step int, frame []byte) error
	RecordStep(rec StepRecord) error
}

type nopRecorder struct{}

func (nopRecorder) RecordFrame(int, []byte) error { return nil }
func (nopRecorder) RecordStep(StepRecord) error   { return nil }

// LoopConfig bounds a loop instance. Zero timeouts disable the per-call
// deadline.
type LoopConfig struct {
	StepBudget     int
	HistoryWindow  int
	ObserveTimeout time.Duration
	DecideTimeout  time.Duration
	ActTimeout     time.Duration
}

// LoopConfigFrom maps the agent configuration section.
func LoopConfigFrom(cfg config.AgentConfig) LoopConfig {
	return LoopConfig{
		StepBudget:     cfg.StepBudget,
		HistoryWindow:  cfg.HistoryWindow,
		ObserveTimeout: cfg.ObserveTimeout,
		DecideTimeout:  cfg.DecideTimeout,
		ActTimeout:     cfg.ActTimeout,
	}
}

func (c LoopConfig) normalized() LoopConfig {
	if c.StepBudget <= 0 {
		c.StepBudget = 10
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 8
	}
	return c
}

// Deps bundles the loop's collaborators. Lease and Recorder are optional;
// everything else is required.
type Deps struct {
	Perceiver Perceiver
	Decider   Decider
	Actor     Actor
	Lease     Leaser
	Recorder  Recorder
	Policy    retry.Policy
	Logger    *zap.Logger
}

// Loop drives one task through perceive/decide/act cycles until a finish
// decision, budget exhaustion, cancellation or an unrecoverable error. A
// Loop owns no shared mutable state, so independent instances may run
// concurrently as long as they target distinct surfaces or hold a lease.
type Loop struct {
	perceiver Perceiver
	decider   Decider
	actor     Actor
	lease     Leaser
	recorder  Recorder
	policy    retry.Policy
	cfg       LoopConfig
	logger    *zap.Logger
}

// NewLoop wires a loop instance. A nil Recorder records nothing, a nil Lease
// means the surface is exclusively ours.
func NewLoop(deps Deps, cfg LoopConfig) *Loop {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		perceiver: deps.Perceiver,
		decider:   deps.Decider,
		actor:     deps.Actor,
		lease:     deps.Lease,
		recorder:  recorder,
		policy:    deps.Policy,
		cfg:       cfg.normalized(),
		logger:    logger.Named("agent"),
	}
}

// loopState is owned by a single Run call and dies with it.
type loopState struct {
	steps    int
	window   int
	history  []StepRecord
	terminal bool
}

func newLoopState(window int) *loopState {
	return &loopState{window: window}
}

func (s *loopState) append(rec StepRecord) {
	s.history = append(s.history, rec)
	if len(s.history) > s.window {
		s.history = s.history[len(s.history)-s.window:]
	}
}

// recent returns a copy of the window so callers cannot alias loop state.
func (s *loopState) recent() []StepRecord {
	out := make([]StepRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Run executes the task until a terminal state. The decision each cycle is
// always grounded in the observation captured that same cycle. Cancellation
// is honored between steps, never mid-step; a step already dispatching
// completes or fails on its own terms.
func (l *Loop) Run(ctx context.Context, task Task) Outcome {
	start := time.Now()
	cfg := l.cfg
	budget := task.StepBudget
	if budget <= 0 {
		budget = cfg.StepBudget
	}

	logger := l.logger.With(zap.String("task_id", task.ID))
	logger.Info("starting agent loop",
		zap.String("goal", task.Goal),
		zap.Int("step_budget", budget),
	)

	state := newLoopState(cfg.HistoryWindow)
	var lastObs *perception.Observation

	finish := func(status TerminalStatus, success bool, err error) Outcome {
		state.terminal = true
		out := Outcome{
			TaskID:           task.ID,
			Status:           status,
			Success:          success,
			Steps:            state.steps,
			FinalObservation: lastObs,
			History:          state.recent(),
			Err:              err,
			Duration:         time.Since(start),
		}
		if err != nil {
			out.ErrCode = ErrorCodeOf(err)
			out.ErrMsg = err.Error()
		}
		logger.Info("agent loop terminated",
			zap.String("status", string(status)),
			zap.Bool("success", out.Success),
			zap.Int("steps", out.Steps),
			zap.Duration("duration", out.Duration),
			zap.Error(err),
		)
		return out
	}

	for state.steps < budget {
		select {
		case <-ctx.Done():
			return finish(StatusCancelled, false, nil)
		default:
		}

		obs, err := l.observe(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return finish(StatusCancelled, false, nil)
			}
			return finish(StatusFailed, false, err)
		}
		lastObs = &obs
		if err := l.recorder.RecordFrame(state.steps+1, obs.Frame); err != nil {
			logger.Warn("failed to record frame", zap.Error(err))
		}

		decision, err := l.decide(ctx, task, state.recent(), obs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return finish(StatusCancelled, false, nil)
			}
			return finish(StatusFailed, false, err)
		}
		logger.Debug("model decision",
			zap.Int("step", state.steps+1),
			zap.String("decision", decision.String()),
			zap.String("rationale", decision.Rationale),
		)

		if terminal, success := decision.Finished(); terminal {
			return finish(StatusFinished, success, nil)
		}

		result, err := l.act(ctx, decision)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return finish(StatusCancelled, false, nil)
			}
			return finish(StatusFailed, false, err)
		}

		rec := StepRecord{
			Step:               state.steps + 1,
			ObservationSummary: obs.Summary(summaryRegions),
			Decision:           decision,
			Result:             result.Status,
			At:                 time.Now(),
		}
		state.append(rec)
		state.steps++
		if err := l.recorder.RecordStep(rec); err != nil {
			logger.Warn("failed to record step", zap.Error(err))
		}
	}

	return finish(StatusBudgetExceeded, false, nil)
}

// observe captures one observation. Perception runs its own internal OCR
// retry, so a surfaced error here is already final for this step.
func (l *Loop) observe(ctx context.Context) (perception.Observation, error) {
	octx, cancel := withTimeout(ctx, l.cfg.ObserveTimeout)
	defer cancel()
	return l.perceiver.Observe(octx)
}

// decide asks the model for the next action under the retry policy. Each
// attempt gets its own deadline.
func (l *Loop) decide(ctx context.Context, task Task, history []StepRecord, obs perception.Observation) (Decision, error) {
	var decision Decision
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		dctx, cancel := withTimeout(ctx, l.cfg.DecideTimeout)
		defer cancel()
		d, err := l.decider.Decide(dctx, task, history, obs)
		if err != nil {
			return err
		}
		decision = d
		return nil
	})
	return decision, err
}

// act dispatches under the surface lease, retrying transient execution
// failures. The lease spans all attempts of a single decision so another
// loop cannot interleave half-delivered input.
func (l *Loop) act(ctx context.Context, decision Decision) (ExecutionResult, error) {
	if l.lease != nil {
		release, err := l.lease.Acquire(ctx)
		if err != nil {
			return ExecutionResult{}, fmt.Errorf("acquiring surface lease: %w", err)
		}
		defer release()
	}

	var result ExecutionResult
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		actx, cancel := withTimeout(ctx, l.cfg.ActTimeout)
		defer cancel()
		r, err := l.actor.Act(actx, decision)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
