// Package runner executes independent agent tasks concurrently and owns the
// composition root that wires surfaces, the model stack, perception, leases
// and the optional archive into ready-to-run loops.
package runner

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zfault/droidpilot/internal/agent"
)

// TaskRunner executes one task to a terminal outcome. *agent.Loop satisfies
// it.
type TaskRunner interface {
	Run(ctx context.Context, task agent.Task) agent.Outcome
}

// Factory builds a fresh runner per task so concurrent instances never share
// mutable state.
type Factory func(task agent.Task) (TaskRunner, error)

// Runner fans tasks out over a bounded worker group.
type Runner struct {
	factory Factory
	limit   int
	logger  *zap.Logger
}

// New creates a runner. A non-positive limit runs everything sequentially.
func New(factory Factory, limit int, logger *zap.Logger) *Runner {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		factory: factory,
		limit:   limit,
		logger:  logger.Named("runner"),
	}
}

// RunAll executes every task and returns outcomes in task order. A task that
// fails does not cancel its siblings; its error lives in its own outcome.
// Cancelling ctx stops the remaining work through each loop's own
// cancellation handling.
func (r *Runner) RunAll(ctx context.Context, tasks []agent.Task) []agent.Outcome {
	outcomes := make([]agent.Outcome, len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	r.logger.Info("running task batch",
		zap.Int("tasks", len(tasks)),
		zap.Int("concurrency", r.limit),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, task := range tasks {
		g.Go(func() error {
			loop, err := r.factory(task)
			if err != nil {
				r.logger.Error("failed to build task runner",
					zap.String("task_id", task.ID),
					zap.Error(err),
				)
				outcomes[i] = agent.Outcome{
					TaskID:  task.ID,
					Status:  agent.StatusFailed,
					Err:     err,
					ErrCode: agent.ErrorCodeOf(err),
					ErrMsg:  err.Error(),
				}
				return nil
			}
			outcomes[i] = loop.Run(gctx, task)
			return nil
		})
	}
	// Workers only ever return nil; the group exists for the limit and for
	// panic/context propagation.
	_ = g.Wait()

	return outcomes
}
