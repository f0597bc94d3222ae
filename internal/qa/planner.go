package qa

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/model"
)

// Planner turns a QA goal into an executable step plan, and produces recovery
// plans when a step fails verification.
type Planner struct {
	client model.Client
	logger *zap.Logger
}

// NewPlanner wires a planner over any model client, typically the tier
// router. Plans route to the powerful tier; they run once per episode and
// their quality bounds everything downstream.
func NewPlanner(client model.Client, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		client: client,
		logger: logger.Named("qa.planner"),
	}
}

// Plan requests the initial step plan for the goal.
func (p *Planner) Plan(ctx context.Context, goal string) ([]PlanStep, error) {
	return p.request(ctx, "plan", plannerUserPrompt(goal))
}

// Replan requests a recovery plan after a failed step. The returned steps
// replace the remainder of the current plan, so they carry the goal through
// to the end.
func (p *Planner) Replan(ctx context.Context, goal string, failed PlanStep, reason, screen string) ([]PlanStep, error) {
	return p.request(ctx, "replan", replanUserPrompt(goal, failed, reason, screen))
}

func (p *Planner) request(ctx context.Context, op, userPrompt string) ([]PlanStep, error) {
	req := model.Request{
		SystemPrompt: plannerSystemPrompt(),
		UserPrompt:   userPrompt,
		Tier:         model.TierPowerful,
		Options: model.Options{
			Temperature: 0.3,
			ForceJSON:   true,
		},
	}

	start := time.Now()
	resp, err := p.client.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", op, err)
	}

	steps, err := ParsePlan(p.client.Name(), resp.Text)
	if err != nil {
		return nil, err
	}

	p.logger.Info("plan created",
		zap.String("op", op),
		zap.Int("steps", len(steps)),
		zap.String("model", resp.ModelID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return steps, nil
}
