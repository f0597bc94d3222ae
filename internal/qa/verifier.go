package qa

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/model"
	"github.com/zfault/droidpilot/internal/perception"
)

// defaultConfidenceThreshold is the minimum confidence at which a PASSED
// verdict is accepted as a pass.
const defaultConfidenceThreshold = 0.6

// fallbackConfidence is attached to verdicts synthesized when the model
// could not be consulted.
const fallbackConfidence = 0.3

// VerifierConfig tunes step verification.
type VerifierConfig struct {
	// ConfidenceThreshold downgrades PASSED verdicts below it to FAILED. A
	// pass the verifier itself does not believe is not a pass.
	ConfidenceThreshold float64
}

// Verifier judges executed steps. Verification never returns an error: when
// the model cannot be consulted the verdict degrades to a conservative
// heuristic, because an episode with an unjudged step is worthless as a QA
// artifact.
type Verifier struct {
	client    model.Client
	threshold float64
	logger    *zap.Logger
}

// NewVerifier wires a verifier over any model client.
func NewVerifier(client model.Client, cfg VerifierConfig, logger *zap.Logger) *Verifier {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultConfidenceThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		client:    client,
		threshold: threshold,
		logger:    logger.Named("qa.verifier"),
	}
}

// Verify judges one executed step. Order of judgement: execution failures
// fail outright, fully satisfied criteria pass without a model call, and
// only the ambiguous remainder goes to the model.
func (v *Verifier) Verify(ctx context.Context, step PlanStep, outcome agent.Outcome) Verification {
	if outcome.Status != agent.StatusFinished || !outcome.Success {
		reason := outcome.ErrMsg
		if reason == "" {
			reason = fmt.Sprintf("execution ended with status %s", outcome.Status)
		}
		return Verification{
			Verdict:    VerdictFailed,
			Reason:     reason,
			Confidence: 1,
			Heuristic:  true,
		}
	}

	if verdict, ok := v.heuristic(step, outcome.FinalObservation); ok {
		return verdict
	}

	verdict, err := v.consult(ctx, step, outcome)
	if err != nil {
		v.logger.Warn("model verification unavailable, failing conservatively",
			zap.Int("step", step.ID),
			zap.Error(err),
		)
		return Verification{
			Verdict:    VerdictFailed,
			Reason:     fmt.Sprintf("could not verify expected outcome: %v", err),
			Confidence: fallbackConfidence,
			Heuristic:  true,
		}
	}

	if verdict.Verdict == VerdictPassed && verdict.Confidence < v.threshold {
		v.logger.Debug("downgrading low-confidence pass",
			zap.Int("step", step.ID),
			zap.Float64("confidence", verdict.Confidence),
			zap.Float64("threshold", v.threshold),
		)
		verdict.Verdict = VerdictFailed
		verdict.Reason = fmt.Sprintf("pass confidence %.2f below threshold %.2f: %s", verdict.Confidence, v.threshold, verdict.Reason)
	}
	return verdict
}

// heuristic passes a step without a model call when every verification
// criterion is visible on screen. Anything weaker stays undecided.
func (v *Verifier) heuristic(step PlanStep, obs *perception.Observation) (Verification, bool) {
	if obs == nil || len(step.VerificationCriteria) == 0 {
		return Verification{}, false
	}

	var screen strings.Builder
	for _, r := range obs.Regions {
		screen.WriteString(strings.ToLower(r.Text))
		screen.WriteByte(' ')
	}
	visible := screen.String()

	for _, criterion := range step.VerificationCriteria {
		if !criterionVisible(criterion, visible) {
			return Verification{}, false
		}
	}
	return Verification{
		Verdict:    VerdictPassed,
		Reason:     "all verification criteria visible on screen",
		Confidence: 0.9,
		Heuristic:  true,
	}, true
}

// criterionVisible matches a criterion against the flattened screen text by
// its significant words. Short filler words carry no signal and are skipped.
func criterionVisible(criterion, visible string) bool {
	significant := 0
	for _, word := range strings.Fields(strings.ToLower(criterion)) {
		if len(word) < 4 {
			continue
		}
		significant++
		if !strings.Contains(visible, word) {
			return false
		}
	}
	return significant > 0
}

func (v *Verifier) consult(ctx context.Context, step PlanStep, outcome agent.Outcome) (Verification, error) {
	req := model.Request{
		SystemPrompt: verifierSystemPrompt(),
		UserPrompt:   verifierUserPrompt(step, outcome),
		Tier:         model.TierPowerful,
		Options: model.Options{
			Temperature: 0.1,
			ForceJSON:   true,
		},
	}
	resp, err := v.client.Generate(ctx, req)
	if err != nil {
		return Verification{}, fmt.Errorf("requesting verification: %w", err)
	}
	return ParseVerification(v.client.Name(), resp.Text)
}
