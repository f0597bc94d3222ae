// Package qa layers a plan/execute/verify/supervise episode on top of the
// single-task agent loop. A planner decomposes the QA goal into ordered
// steps, each step runs as its own bounded loop task, a verifier judges the
// result against the step's criteria, and a supervisor aggregates the
// episode into a report.
package qa

import (
	"fmt"
	"strings"
	"time"

	"github.com/zfault/droidpilot/internal/agent"
)

// PlanStep is one planned action with its expected outcome. The model
// produces these as strict JSON; field names mirror the reply contract.
type PlanStep struct {
	ID          int    `json:"step_id"`
	Action      string `json:"action"`
	Description string `json:"description"`
	// ExpectedResult is what the screen should show once the step worked.
	ExpectedResult string `json:"expected_result"`
	// VerificationCriteria are concrete texts or states the verifier looks
	// for. Optional; the expected result alone is enough for verification.
	VerificationCriteria []string `json:"verification_criteria,omitempty"`
	// ActionType is the planner's coarse classification (navigation, touch,
	// verify, ...). Informational only.
	ActionType string `json:"action_type,omitempty"`
	// TimeoutSec is the planner's per-step time estimate. Informational only.
	TimeoutSec int `json:"timeout,omitempty"`
}

// Validate rejects steps the episode could not execute or verify.
func (s PlanStep) Validate() error {
	if strings.TrimSpace(s.Description) == "" {
		return fmt.Errorf("plan step %d has no description", s.ID)
	}
	if strings.TrimSpace(s.ExpectedResult) == "" {
		return fmt.Errorf("plan step %d has no expected result", s.ID)
	}
	return nil
}

func (s PlanStep) String() string {
	return fmt.Sprintf("step %d: %s", s.ID, s.Description)
}

// Verdict is the verifier's judgement for one executed step.
type Verdict string

const (
	VerdictPassed Verdict = "PASSED"
	VerdictFailed Verdict = "FAILED"
	// VerdictBug means the step worked but exposed misbehavior in the app
	// under test. Bugs do not stop the episode; finding them is the point.
	VerdictBug Verdict = "BUG_DETECTED"
)

// Verification is one step's judgement with the evidence behind it.
type Verification struct {
	Verdict    Verdict `json:"status"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	// BugDescription is set only for BUG_DETECTED verdicts.
	BugDescription string `json:"bug_description,omitempty"`
	// Heuristic marks verdicts produced without a model call.
	Heuristic bool `json:"heuristic,omitempty"`
}

// Validate checks a model-produced verification for structural sanity.
func (v Verification) Validate() error {
	switch v.Verdict {
	case VerdictPassed, VerdictFailed, VerdictBug:
	default:
		return fmt.Errorf("unknown verdict %q", v.Verdict)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %.2f", v.Confidence)
	}
	return nil
}

// StepOutcome pairs a plan step with its loop execution and verification.
type StepOutcome struct {
	Step         PlanStep      `json:"step"`
	Outcome      agent.Outcome `json:"outcome"`
	Verification Verification  `json:"verification"`
	// Replanned marks the step whose failure triggered a recovery plan.
	Replanned bool `json:"replanned,omitempty"`
}

// Bug is one defect surfaced during the episode.
type Bug struct {
	Step        int    `json:"step"`
	Description string `json:"description"`
	Reason      string `json:"reason,omitempty"`
}

// Improvement is one supervisor suggestion for hardening the test.
type Improvement struct {
	Type       string `json:"type"`
	Suggestion string `json:"suggestion"`
	Priority   string `json:"priority"`
}

// EpisodeStatus is the aggregate judgement over a whole episode.
type EpisodeStatus string

const (
	EpisodePassed EpisodeStatus = "PASSED"
	EpisodeFailed EpisodeStatus = "FAILED"
	EpisodeBug    EpisodeStatus = "BUG_DETECTED"
	// EpisodePartial means the executed subset passed but the plan was not
	// completed, typically because the episode budget ran out.
	EpisodePartial   EpisodeStatus = "PARTIAL_PASS"
	EpisodeCancelled EpisodeStatus = "CANCELLED"
)

// EpisodeReport is the supervisor's final artifact for one episode.
type EpisodeReport struct {
	ID           string        `json:"episode_id"`
	Goal         string        `json:"goal"`
	Status       EpisodeStatus `json:"status"`
	TotalSteps   int           `json:"total_steps"`
	PassedSteps  int           `json:"passed_steps"`
	FailedSteps  int           `json:"failed_steps"`
	Bugs         []Bug         `json:"bugs,omitempty"`
	Steps        []StepOutcome `json:"steps"`
	Improvements []Improvement `json:"improvements,omitempty"`
	Replans      int           `json:"replans"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}
