package model

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/perception"
)

// DeciderConfig tunes how step decisions are requested.
type DeciderConfig struct {
	// Tier routes per-step decisions. Defaults to fast; steps are frequent
	// and individually cheap to redo.
	Tier Tier
	// Temperature for decisions. Defaults low to keep runs reproducible.
	Temperature float64
}

// Decider turns observations into loop decisions through the model gateway.
// It implements the loop's Decider contract.
type Decider struct {
	client Client
	cfg    DeciderConfig
	logger *zap.Logger
}

// NewDecider wires a decider over any Client, typically the tier router.
func NewDecider(client Client, cfg DeciderConfig, logger *zap.Logger) *Decider {
	if cfg.Tier == "" {
		cfg.Tier = TierFast
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decider{
		client: client,
		cfg:    cfg,
		logger: logger.Named("model.decider"),
	}
}

// Decide requests the next action for the current screen. The reply must be
// the single decision JSON object; anything else surfaces as a non-retryable
// provider error.
func (d *Decider) Decide(ctx context.Context, task agent.Task, history []agent.StepRecord, obs perception.Observation) (agent.Decision, error) {
	req := Request{
		SystemPrompt: systemPrompt(),
		UserPrompt:   userPrompt(task, history, obs),
		Tier:         d.cfg.Tier,
		Options: Options{
			Temperature: d.cfg.Temperature,
			ForceJSON:   true,
		},
	}

	start := time.Now()
	resp, err := d.client.Generate(ctx, req)
	if err != nil {
		return agent.Decision{}, fmt.Errorf("requesting decision: %w", err)
	}

	decision, err := ParseDecision(d.client.Name(), resp.Text)
	if err != nil {
		return agent.Decision{}, err
	}

	d.logger.Debug("Decision received",
		zap.String("task_id", task.ID),
		zap.String("decision", decision.String()),
		zap.String("model", resp.ModelID),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return decision, nil
}
