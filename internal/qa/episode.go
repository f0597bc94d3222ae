package qa

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/config"
)

// LoopRunner executes one task to a terminal outcome. *agent.Loop satisfies
// it; tests substitute a scripted runner.
type LoopRunner interface {
	Run(ctx context.Context, task agent.Task) agent.Outcome
}

// EpisodeConfig bounds one episode.
type EpisodeConfig struct {
	// EpisodeBudget caps dispatched actions summed over every step's inner
	// loop. The episode stops when it is spent.
	EpisodeBudget int
	// StepBudget caps a single step's inner loop.
	StepBudget int
	// MaxReplans caps recovery plans per episode. Zero disables replanning.
	MaxReplans int
}

// EpisodeConfigFrom maps the QA configuration section. The confidence
// threshold from the same section belongs to VerifierConfig.
func EpisodeConfigFrom(cfg config.QAConfig) EpisodeConfig {
	return EpisodeConfig{
		EpisodeBudget: cfg.EpisodeBudget,
		StepBudget:    cfg.StepBudget,
		MaxReplans:    cfg.MaxReplans,
	}
}

func (c EpisodeConfig) normalized() EpisodeConfig {
	if c.EpisodeBudget <= 0 {
		c.EpisodeBudget = 50
	}
	if c.StepBudget <= 0 {
		c.StepBudget = 10
	}
	if c.MaxReplans < 0 {
		c.MaxReplans = 0
	}
	return c
}

// Episode orchestrates one full QA run: plan, then per step a bounded inner
// loop plus verification, replanning on failure, and finally the supervisor
// report.
type Episode struct {
	planner    *Planner
	verifier   *Verifier
	supervisor *Supervisor
	loop       LoopRunner
	cfg        EpisodeConfig
	logger     *zap.Logger
}

// NewEpisode wires an episode over its collaborators.
func NewEpisode(planner *Planner, verifier *Verifier, supervisor *Supervisor, loop LoopRunner, cfg EpisodeConfig, logger *zap.Logger) *Episode {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Episode{
		planner:    planner,
		verifier:   verifier,
		supervisor: supervisor,
		loop:       loop,
		cfg:        cfg.normalized(),
		logger:     logger.Named("qa.episode"),
	}
}

// Run executes the goal end to end and returns the supervisor's report. An
// error is returned only when the episode could not start; everything after
// planning lands in the report.
func (e *Episode) Run(ctx context.Context, goal string) (EpisodeReport, error) {
	start := time.Now()
	id := uuid.New().String()[:8]
	logger := e.logger.With(zap.String("episode_id", id))
	logger.Info("starting QA episode", zap.String("goal", goal))

	queue, err := e.planner.Plan(ctx, goal)
	if err != nil {
		return EpisodeReport{}, fmt.Errorf("planning episode: %w", err)
	}

	var (
		results   []StepOutcome
		consumed  int
		replans   int
		cancelled bool
		exhausted bool
	)

	for i := 0; i < len(queue); i++ {
		step := queue[i]

		if ctx.Err() != nil {
			cancelled = true
			break
		}

		remaining := e.cfg.EpisodeBudget - consumed
		if remaining <= 0 {
			logger.Warn("episode budget exhausted",
				zap.Int("completed_steps", len(results)),
				zap.Int("remaining_plan_steps", len(queue)-i),
			)
			exhausted = true
			break
		}

		task := agent.NewTask(step.Description, min(e.cfg.StepBudget, remaining))
		task.SuccessCriteria = step.ExpectedResult
		logger.Info("executing plan step",
			zap.Int("step_id", step.ID),
			zap.String("description", step.Description),
			zap.Int("step_budget", task.StepBudget),
		)

		outcome := e.loop.Run(ctx, task)
		consumed += outcome.Steps

		if outcome.Status == agent.StatusCancelled {
			results = append(results, StepOutcome{
				Step:    step,
				Outcome: outcome,
				Verification: Verification{
					Verdict:    VerdictFailed,
					Reason:     "episode cancelled mid-step",
					Confidence: 1,
					Heuristic:  true,
				},
			})
			cancelled = true
			break
		}

		verification := e.verifier.Verify(ctx, step, outcome)
		results = append(results, StepOutcome{
			Step:         step,
			Outcome:      outcome,
			Verification: verification,
		})
		logger.Info("step verified",
			zap.Int("step_id", step.ID),
			zap.String("verdict", string(verification.Verdict)),
			zap.Float64("confidence", verification.Confidence),
			zap.String("reason", verification.Reason),
		)

		if verification.Verdict != VerdictFailed {
			continue
		}
		if replans >= e.cfg.MaxReplans {
			logger.Warn("replan budget exhausted, aborting remaining steps",
				zap.Int("replans", replans),
			)
			break
		}

		replans++
		recovery, err := e.planner.Replan(ctx, goal, step, verification.Reason, screenSummary(outcome))
		if err != nil {
			logger.Warn("replanning failed, aborting remaining steps", zap.Error(err))
			break
		}
		results[len(results)-1].Replanned = true
		queue = append(queue[:i+1], recovery...)
		logger.Info("recovery plan adopted", zap.Int("steps", len(recovery)))
	}

	report := e.supervisor.Report(ctx, id, goal, start, replans, results)
	if cancelled {
		report.Status = EpisodeCancelled
	} else if exhausted && report.Status == EpisodePassed {
		report.Status = EpisodePartial
	}
	return report, nil
}

func screenSummary(outcome agent.Outcome) string {
	if outcome.FinalObservation == nil {
		return "screen state unavailable"
	}
	return outcome.FinalObservation.Summary(screenRegions)
}
