package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zfault/droidpilot/internal/perception"
)

// Task is the immutable goal handed to a loop. Create it once at invocation
// and treat it as read only afterwards.
type Task struct {
	ID string `json:"id"`
	// Goal is the natural-language instruction the model works toward.
	Goal string `json:"goal"`
	// StepBudget caps perceive/decide/act cycles. Zero means "use the loop
	// default".
	StepBudget int `json:"step_budget"`
	// SuccessCriteria is extra guidance for the model's finish decision and
	// for episode verification. Optional.
	SuccessCriteria string    `json:"success_criteria,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewTask mints a Task with a short unique ID.
func NewTask(goal string, stepBudget int) Task {
	return Task{
		ID:         uuid.New().String()[:8],
		Goal:       goal,
		StepBudget: stepBudget,
		CreatedAt:  time.Now(),
	}
}

// DecisionKind discriminates the Decision union. The set is closed: the
// executor switches exhaustively over it and anything else is rejected at
// parse time.
type DecisionKind string

const (
	DecisionTap    DecisionKind = "tap"
	DecisionType   DecisionKind = "type"
	DecisionSwipe  DecisionKind = "swipe"
	DecisionWait   DecisionKind = "wait"
	DecisionFinish DecisionKind = "finish"
)

// maxWaitMS bounds a single wait decision so a confused model cannot stall
// the loop past the act timeout.
const maxWaitMS = 10_000

// Decision is the model's chosen next action. Exactly one kind's fields are
// meaningful; the rest stay zero.
type Decision struct {
	Kind DecisionKind `json:"action"`
	// tap: absolute surface pixels.
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`
	// type: literal text for the focused input.
	Text string `json:"text,omitempty"`
	// swipe: displacement vector in pixels, applied around screen center.
	DX int `json:"dx,omitempty"`
	DY int `json:"dy,omitempty"`
	// wait: pause duration.
	WaitMS int `json:"wait_ms,omitempty"`
	// finish: whether the goal was achieved. Pointer so a missing flag is
	// distinguishable from false.
	Success *bool `json:"success,omitempty"`
	// Rationale is the model's own explanation. Logged and reported, never
	// interpreted.
	Rationale string `json:"rationale,omitempty"`
}

// Validate checks structural validity of the union. Coordinate bounds are the
// executor's concern; this only rejects shapes no surface could accept.
func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionTap:
		if d.X < 0 || d.Y < 0 {
			return fmt.Errorf("tap coordinates must be non-negative, got (%d,%d)", d.X, d.Y)
		}
	case DecisionType:
		if d.Text == "" {
			return fmt.Errorf("type decision requires non-empty text")
		}
	case DecisionSwipe:
		if d.DX == 0 && d.DY == 0 {
			return fmt.Errorf("swipe decision requires a non-zero displacement")
		}
	case DecisionWait:
		if d.WaitMS <= 0 || d.WaitMS > maxWaitMS {
			return fmt.Errorf("wait_ms must be in (0, %d], got %d", maxWaitMS, d.WaitMS)
		}
	case DecisionFinish:
		if d.Success == nil {
			return fmt.Errorf("finish decision requires an explicit success flag")
		}
	default:
		return fmt.Errorf("unknown action %q", d.Kind)
	}
	return nil
}

// Finished reports whether this decision terminates the loop, and with what
// success flag.
func (d Decision) Finished() (terminal, success bool) {
	if d.Kind != DecisionFinish {
		return false, false
	}
	return true, d.Success != nil && *d.Success
}

// String renders a compact form for logs and history summaries.
func (d Decision) String() string {
	switch d.Kind {
	case DecisionTap:
		return fmt.Sprintf("tap(%d,%d)", d.X, d.Y)
	case DecisionType:
		text := d.Text
		if len(text) > 24 {
			text = text[:24] + "..."
		}
		return fmt.Sprintf("type(%q)", text)
	case DecisionSwipe:
		return fmt.Sprintf("swipe(%d,%d)", d.DX, d.DY)
	case DecisionWait:
		return fmt.Sprintf("wait(%dms)", d.WaitMS)
	case DecisionFinish:
		return fmt.Sprintf("finish(success=%v)", d.Success != nil && *d.Success)
	default:
		return string(d.Kind)
	}
}

// ExecutionStatus is the executor's report for one dispatched decision.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionResult is the structured return of an Act call.
type ExecutionResult struct {
	Status  ExecutionStatus `json:"status"`
	Detail  string          `json:"detail,omitempty"`
	Elapsed time.Duration   `json:"elapsed"`
}

// StepRecord is one completed cycle: what was seen, what was decided, how the
// dispatch went.
type StepRecord struct {
	Step               int             `json:"step"`
	ObservationSummary string          `json:"observation_summary"`
	Decision           Decision        `json:"decision"`
	Result             ExecutionStatus `json:"result,omitempty"`
	At                 time.Time       `json:"at"`
}

// TerminalStatus says why a loop stopped. Budget exhaustion and cancellation
// are expected terminations, not errors; only StatusFailed carries an error.
type TerminalStatus string

const (
	StatusFinished       TerminalStatus = "finished"
	StatusBudgetExceeded TerminalStatus = "budget_exceeded"
	StatusCancelled      TerminalStatus = "cancelled"
	StatusFailed         TerminalStatus = "failed"
)

// Outcome is the result of one Run.
type Outcome struct {
	TaskID  string         `json:"task_id"`
	Status  TerminalStatus `json:"status"`
	Success bool           `json:"success"`
	// Steps counts dispatched actions. A finish decision terminates the
	// cycle it was produced in without counting it.
	Steps            int                     `json:"steps"`
	FinalObservation *perception.Observation `json:"final_observation,omitempty"`
	// History is the bounded window as it stood at termination.
	History  []StepRecord  `json:"history,omitempty"`
	Err      error         `json:"-"`
	ErrCode  ErrorCode     `json:"error_code,omitempty"`
	ErrMsg   string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Terminal reports whether the outcome status is one of the defined terminal
// states. Always true for outcomes produced by Run; useful for report
// consumers handling zero values.
func (o Outcome) Terminal() bool {
	switch o.Status {
	case StatusFinished, StatusBudgetExceeded, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// summarizeHistory renders the bounded window for prompts and logs.
func summarizeHistory(records []StepRecord) string {
	if len(records) == 0 {
		return "no steps taken yet"
	}
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "step %d: %s -> %s", r.Step, r.Decision.String(), r.Result)
	}
	return b.String()
}
