package model

import (
	"fmt"
	"strings"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/perception"
)

// promptRegions caps how many screen regions are rendered into the user
// prompt. Busy screens can carry hundreds; the leading ones in reading order
// hold most of the signal.
const promptRegions = 40

// systemPrompt returns the fixed operator instructions. The reply contract
// mirrors the decision JSON shape exactly; parsing depends on it.
func systemPrompt() string {
	return `You are "DroidPilot", an expert operator driving a real device screen toward a stated goal.

Each turn you receive the goal, the steps taken so far, and the text regions currently visible on screen. Every region has a bounding box rendered as box=(x,y,w,h): x,y is the top-left corner in absolute screen pixels (origin top-left), w,h is the size.

Your reply MUST be a single valid JSON object and nothing else. No prose before or after it.

Available actions:
{"action": "tap", "x": 540, "y": 1200, "rationale": "open the settings entry"}
{"action": "type", "text": "hello world", "rationale": "fill the focused search field"}
{"action": "swipe", "dx": 0, "dy": -600, "rationale": "scroll to reveal content further down"}
{"action": "wait", "wait_ms": 1500, "rationale": "screen is still loading"}
{"action": "finish", "success": true, "rationale": "goal reached"}

Rules:
1. Tap the center of a listed region. Never invent coordinates for elements that are not in the observation.
2. Tap an input field to focus it before using "type".
3. A swipe drags from the screen center by (dx,dy) pixels; negative dy drags upward and reveals content below.
4. Use "wait" only when the screen is visibly mid-transition, 10000 ms at most.
5. The moment the goal is complete, or clearly impossible, reply "finish" with the honest success flag. Do not keep acting past the goal.
6. Exactly one action per reply.`
}

// userPrompt renders one decision turn: the goal, the recent step window and
// the current screen.
func userPrompt(task agent.Task, history []agent.StepRecord, obs perception.Observation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", task.Goal)
	if task.SuccessCriteria != "" {
		fmt.Fprintf(&b, "Success criteria: %s\n", task.SuccessCriteria)
	}
	b.WriteString("\nSteps so far:\n")
	if len(history) == 0 {
		b.WriteString("  none\n")
	} else {
		for _, rec := range history {
			fmt.Fprintf(&b, "  %d. %s -> %s\n", rec.Step, rec.Decision.String(), rec.Result)
		}
	}
	fmt.Fprintf(&b, "\nCurrent screen:\n%s\n", obs.Summary(promptRegions))
	b.WriteString("\nReply with the JSON object for the single next action.")
	return b.String()
}
