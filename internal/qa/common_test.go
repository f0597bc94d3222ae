package qa

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/model"
	"github.com/zfault/droidpilot/internal/perception"
)

// canned is one scripted model exchange.
type canned struct {
	text string
	err  error
}

// fakeClient replays scripted replies and records every request it sees.
type fakeClient struct {
	mu       sync.Mutex
	queue    []canned
	requests []model.Request
}

func (f *fakeClient) reply(texts ...string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range texts {
		f.queue = append(f.queue, canned{text: t})
	}
	return f
}

func (f *fakeClient) fail(err error) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, canned{err: err})
	return f
}

func (f *fakeClient) Generate(_ context.Context, req model.Request) (model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.queue) == 0 {
		return model.Response{}, errors.New("fake client: no scripted reply left")
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	if next.err != nil {
		return model.Response{}, next.err
	}
	return model.Response{Text: next.text, ModelID: "fake-model"}, nil
}

func (f *fakeClient) Name() string { return "fake" }
func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClient) request(i int) model.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

// fakeLoop replays scripted outcomes and records the tasks it was given.
type fakeLoop struct {
	mu       sync.Mutex
	outcomes []agent.Outcome
	tasks    []agent.Task
}

func (f *fakeLoop) Run(_ context.Context, task agent.Task) agent.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	if len(f.outcomes) == 0 {
		return agent.Outcome{TaskID: task.ID, Status: agent.StatusFailed, ErrMsg: "fake loop: no scripted outcome left"}
	}
	out := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	out.TaskID = task.ID
	return out
}

// screenWith builds an observation whose regions carry the given texts.
func screenWith(texts ...string) *perception.Observation {
	obs := perception.Observation{
		TakenAt: time.Now(),
		Width:   1080,
		Height:  1920,
	}
	for i, text := range texts {
		obs.Regions = append(obs.Regions, perception.Region{
			Text:       text,
			Box:        perception.Box{X: 40, Y: 100 + i*80, W: 400, H: 48},
			Confidence: 0.95,
		})
	}
	return &obs
}

// finishedOutcome is a successful loop run that ended on the given screen.
func finishedOutcome(steps int, obs *perception.Observation) agent.Outcome {
	return agent.Outcome{
		Status:           agent.StatusFinished,
		Success:          true,
		Steps:            steps,
		FinalObservation: obs,
		Duration:         time.Duration(steps) * 100 * time.Millisecond,
	}
}

func failedOutcome(steps int, msg string) agent.Outcome {
	return agent.Outcome{
		Status:  agent.StatusFailed,
		Steps:   steps,
		ErrCode: agent.ErrCodeExecution,
		ErrMsg:  msg,
	}
}

// step builds a plan step for tests.
func step(id int, desc, expected string, criteria ...string) PlanStep {
	return PlanStep{
		ID:                   id,
		Action:               "act",
		Description:          desc,
		ExpectedResult:       expected,
		VerificationCriteria: criteria,
		ActionType:           "touch",
	}
}

// planReply marshals steps into the JSON array a planner reply carries.
func planReply(t *testing.T, steps ...PlanStep) string {
	t.Helper()
	data, err := json.Marshal(steps)
	require.NoError(t, err)
	return string(data)
}
