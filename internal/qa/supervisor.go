package qa

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/model"
)

// Supervisor aggregates a finished episode into its report and asks the
// model for improvement suggestions.
type Supervisor struct {
	client model.Client
	logger *zap.Logger
}

// NewSupervisor wires a supervisor over any model client.
func NewSupervisor(client model.Client, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		client: client,
		logger: logger.Named("qa.supervisor"),
	}
}

// Report builds the episode report: verdict counts, the bug list, the
// aggregate status and one round of improvement suggestions. Suggestion
// failures degrade to canned defaults; the report itself never fails.
func (s *Supervisor) Report(ctx context.Context, id, goal string, startedAt time.Time, replans int, steps []StepOutcome) EpisodeReport {
	report := EpisodeReport{
		ID:        id,
		Goal:      goal,
		Steps:     steps,
		Replans:   replans,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}

	for _, step := range steps {
		report.TotalSteps++
		switch step.Verification.Verdict {
		case VerdictPassed:
			report.PassedSteps++
		case VerdictFailed:
			report.FailedSteps++
		case VerdictBug:
			report.Bugs = append(report.Bugs, Bug{
				Step:        step.Step.ID,
				Description: step.Verification.BugDescription,
				Reason:      step.Verification.Reason,
			})
		}
	}
	report.Status = overallStatus(steps)

	report.Improvements = s.improvements(ctx, report)

	s.logger.Info("episode report built",
		zap.String("episode_id", id),
		zap.String("status", string(report.Status)),
		zap.Int("passed", report.PassedSteps),
		zap.Int("failed", report.FailedSteps),
		zap.Int("bugs", len(report.Bugs)),
		zap.Duration("duration", report.Duration),
	)
	return report
}

// overallStatus folds per-step verdicts into the episode verdict. Bugs
// dominate, then failures; a clean sweep passes; anything else is partial.
func overallStatus(steps []StepOutcome) EpisodeStatus {
	if len(steps) == 0 {
		return EpisodePartial
	}
	passed, failed, bugs := 0, 0, 0
	for _, step := range steps {
		switch step.Verification.Verdict {
		case VerdictPassed:
			passed++
		case VerdictFailed:
			failed++
		case VerdictBug:
			bugs++
		}
	}
	switch {
	case bugs > 0:
		return EpisodeBug
	case failed > 0:
		return EpisodeFailed
	case passed == len(steps):
		return EpisodePassed
	default:
		return EpisodePartial
	}
}

func (s *Supervisor) improvements(ctx context.Context, report EpisodeReport) []Improvement {
	req := model.Request{
		SystemPrompt: supervisorSystemPrompt(),
		UserPrompt:   supervisorUserPrompt(report),
		Tier:         model.TierPowerful,
		Options: model.Options{
			Temperature: 0.4,
			ForceJSON:   true,
		},
	}

	resp, err := s.client.Generate(ctx, req)
	if err == nil {
		var improvements []Improvement
		improvements, err = ParseImprovements(s.client.Name(), resp.Text)
		if err == nil && len(improvements) > 0 {
			return improvements
		}
	}
	s.logger.Warn("improvement suggestions unavailable, using defaults", zap.Error(err))
	return defaultImprovements(report)
}

// defaultImprovements are the canned suggestions used when the model cannot
// be consulted.
func defaultImprovements(report EpisodeReport) []Improvement {
	var improvements []Improvement
	if report.FailedSteps > 0 {
		improvements = append(improvements, Improvement{
			Type:       "robustness",
			Suggestion: "Add wait steps between actions so the UI settles before verification",
			Priority:   "high",
		})
	}
	if len(report.Bugs) > 0 {
		improvements = append(improvements, Improvement{
			Type:       "bug_reporting",
			Suggestion: "File a detailed bug report with the recorded reproduction steps",
			Priority:   "high",
		})
	}
	improvements = append(improvements, Improvement{
		Type:       "coverage",
		Suggestion: "Cover adjacent edge cases such as airplane mode or an empty state",
		Priority:   "medium",
	})
	return improvements
}
