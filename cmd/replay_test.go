package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/qa"
	"github.com/zfault/droidpilot/internal/session"
)

func writeArtifact(t *testing.T, dir, name string, artifact interface{}) {
	t.Helper()
	data, err := json.MarshalIndent(artifact, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func executeReplay(t *testing.T, args ...string) (string, error) {
	t.Helper()
	replayCmd := newReplayCmd()

	buf := new(bytes.Buffer)
	replayCmd.SetOut(buf)
	replayCmd.SetErr(buf)
	replayCmd.SetArgs(args)
	err := replayCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestReplayCmd_Episode(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "episode.json", session.EpisodeFile{
		TaskID:   "abc12345",
		Status:   "finished",
		Success:  true,
		Steps:    2,
		Duration: "42s",
		Recorded: []agent.StepRecord{
			{
				Step:               1,
				ObservationSummary: "login screen",
				Decision:           agent.Decision{Kind: agent.DecisionTap, X: 30, Y: 20},
				Result:             agent.ExecutionSucceeded,
				At:                 time.Now(),
			},
			{
				Step:     2,
				Decision: agent.Decision{Kind: agent.DecisionType, Text: "hello"},
				Result:   agent.ExecutionSucceeded,
				At:       time.Now(),
			},
		},
	})

	output, err := executeReplay(t, dir)
	require.NoError(t, err)
	assert.Contains(t, output, "Task abc12345: finished")
	assert.Contains(t, output, "tap(30,20)")
	assert.Contains(t, output, `type("hello")`)
	assert.Contains(t, output, "saw: login screen")
	assert.Contains(t, output, "succeeded")
}

func TestReplayCmd_QAReport(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "report.json", qa.EpisodeReport{
		ID:          "ep-1a2b",
		Goal:        "Create a contact",
		Status:      qa.EpisodeFailed,
		TotalSteps:  2,
		PassedSteps: 1,
		FailedSteps: 1,
		Steps: []qa.StepOutcome{
			{
				Step:         qa.PlanStep{ID: 1, Description: "Open the contacts app"},
				Verification: qa.Verification{Verdict: qa.VerdictPassed, Reason: "app visible"},
			},
			{
				Step:         qa.PlanStep{ID: 2, Description: "Save the new contact"},
				Verification: qa.Verification{Verdict: qa.VerdictFailed, Reason: "save button missing"},
				Replanned:    true,
			},
		},
	})

	output, err := executeReplay(t, dir)
	require.NoError(t, err)
	assert.Contains(t, output, "Episode ep-1a2b: FAILED")
	assert.Contains(t, output, "Open the contacts app")
	assert.Contains(t, output, "save button missing")
	assert.Contains(t, output, "R step  2")
}

func TestReplayCmd_JSONDump(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "report.json", qa.EpisodeReport{ID: "ep-1a2b", Goal: "g", Status: qa.EpisodePassed})

	output, err := executeReplay(t, dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, output, `"episode_id": "ep-1a2b"`)
}

func TestReplayCmd_MissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	_, err := executeReplay(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session artifacts")
}
