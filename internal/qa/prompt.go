package qa

import (
	"fmt"
	"strings"

	"github.com/zfault/droidpilot/internal/agent"
)

// screenRegions caps how many observation regions are rendered into verifier
// and replan prompts.
const screenRegions = 24

func plannerSystemPrompt() string {
	return `You are the test planner of an automated QA system driving a real device.

You turn a high-level QA goal into an ordered test plan. Your reply MUST be a single valid JSON array of step objects and nothing else. No prose before or after it.

Each step object:
{
  "step_id": 1,
  "action": "tap_wifi_option",
  "description": "Tap on the WiFi settings entry",
  "expected_result": "WiFi settings screen opens",
  "verification_criteria": ["WiFi settings title", "toggle switch visible"],
  "action_type": "touch",
  "timeout": 10
}

Rules:
1. "description" is the instruction a screen operator will follow literally. Make it specific and self-contained.
2. "expected_result" states what the screen should show once the step worked.
3. "verification_criteria" lists texts or states that must be visible afterwards.
4. "action_type" is one of: navigation, touch, type, verify, wait.
5. Keep the plan minimal. Five to ten steps covers most goals.
6. Number step_id from 1 upward.`
}

func plannerUserPrompt(goal string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a detailed test plan for the following QA goal: %s\n", goal)
	b.WriteString("\nReply with the JSON array of plan steps.")
	return b.String()
}

func replanUserPrompt(goal string, failed PlanStep, reason, screen string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The original QA goal was: %s\n", goal)
	fmt.Fprintf(&b, "\nThis step failed:\n  %s\n  expected: %s\n", failed.String(), failed.ExpectedResult)
	fmt.Fprintf(&b, "Failure reason: %s\n", reason)
	fmt.Fprintf(&b, "\nCurrent screen:\n%s\n", screen)
	b.WriteString(`
Create a recovery plan that either:
1. works around the issue and continues toward the goal,
2. dismisses whatever is blocking the flow, or
3. returns to a known screen and retries from there.

The recovery plan replaces the remaining steps, so it must carry the goal through to the end. Reply with the JSON array of recovery steps.`)
	return b.String()
}

func verifierSystemPrompt() string {
	return `You are the verifier of an automated QA system. You judge whether an executed test step produced its expected result, based on the text regions visible on the device screen afterwards.

Your reply MUST be a single valid JSON object and nothing else:
{
  "status": "PASSED" or "FAILED" or "BUG_DETECTED",
  "reason": "one-sentence explanation grounded in the screen content",
  "confidence": 0.0 to 1.0,
  "bug_description": "only when status is BUG_DETECTED: what misbehaves and how to reproduce it"
}

Rules:
1. PASSED means the expected result is evident on screen.
2. FAILED means the expected result is absent or contradicted.
3. BUG_DETECTED means the step executed but the app itself misbehaves (crash dialog, impossible state, corrupted content).
4. Judge only from the provided screen content. Do not assume unseen state.`
}

func verifierUserPrompt(step PlanStep, outcome agent.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Executed step: %s\n", step.Description)
	fmt.Fprintf(&b, "Expected result: %s\n", step.ExpectedResult)
	if len(step.VerificationCriteria) > 0 {
		fmt.Fprintf(&b, "Verification criteria: %s\n", strings.Join(step.VerificationCriteria, "; "))
	}
	fmt.Fprintf(&b, "Execution: %d actions, ended %s\n", outcome.Steps, outcome.Status)
	b.WriteString("\nScreen after execution:\n")
	if outcome.FinalObservation != nil {
		b.WriteString(outcome.FinalObservation.Summary(screenRegions))
	} else {
		b.WriteString("screen state unavailable")
	}
	b.WriteString("\n\nReply with the JSON verification object.")
	return b.String()
}

func supervisorSystemPrompt() string {
	return `You are the supervisor of an automated QA system. You review a finished test episode and suggest improvements.

Your reply MUST be a single valid JSON array of improvement objects and nothing else:
[
  {"type": "robustness", "suggestion": "add a wait after toggling so the state settles", "priority": "high"}
]

"type" is one of: robustness, bug_reporting, coverage, prompting. "priority" is high, medium or low. Provide root-cause analysis for failures, ways to make the test more robust, and additional scenarios worth covering. Three to six suggestions.`
}

func supervisorUserPrompt(report EpisodeReport) string {
	var b strings.Builder
	b.WriteString("Analyze this test episode and suggest improvements.\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", report.Goal)
	fmt.Fprintf(&b, "Overall status: %s\n", report.Status)
	fmt.Fprintf(&b, "Pass rate: %d/%d\n", report.PassedSteps, report.TotalSteps)
	fmt.Fprintf(&b, "Replans used: %d\n", report.Replans)

	if len(report.Bugs) > 0 {
		b.WriteString("\nBugs found:\n")
		for _, bug := range report.Bugs {
			fmt.Fprintf(&b, "  step %d: %s\n", bug.Step, bug.Description)
		}
	}
	var failed []string
	for _, s := range report.Steps {
		if s.Verification.Verdict == VerdictFailed {
			failed = append(failed, fmt.Sprintf("  %s (%s)", s.Step.String(), s.Verification.Reason))
		}
	}
	if len(failed) > 0 {
		b.WriteString("\nFailed steps:\n")
		b.WriteString(strings.Join(failed, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nReply with the JSON array of improvements.")
	return b.String()
}
