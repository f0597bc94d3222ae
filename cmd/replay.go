package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/zfault/droidpilot/internal/qa"
	"github.com/zfault/droidpilot/internal/session"
)

// newReplayCmd creates and configures the `replay` command.
func newReplayCmd() *cobra.Command {
	var asJSON bool

	replayCmd := &cobra.Command{
		Use:   "replay <session-dir>",
		Short: "Print the recorded steps of a past session",
		Long: `Reads the artifacts a run or qa invocation left in its session directory.
QA episodes replay from report.json with per-step verdicts; plain runs replay
from episode.json with the recorded decisions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			reportPath := filepath.Join(dir, "report.json")
			if _, err := os.Stat(reportPath); err == nil {
				var report qa.EpisodeReport
				if err := readArtifact(reportPath, &report); err != nil {
					return err
				}
				if asJSON {
					return dumpJSON(cmd, report)
				}
				replayReport(cmd, report, dir)
				return nil
			}

			var episode session.EpisodeFile
			if err := readArtifact(filepath.Join(dir, "episode.json"), &episode); err != nil {
				return fmt.Errorf("no session artifacts in %s: %w", dir, err)
			}
			if asJSON {
				return dumpJSON(cmd, episode)
			}
			replayEpisode(cmd, episode)
			return nil
		},
	}

	replayCmd.Flags().BoolVar(&asJSON, "json", false, "Dump the raw artifact instead of the step listing.")

	return replayCmd
}

func readArtifact(path string, into interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func dumpJSON(cmd *cobra.Command, artifact interface{}) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize artifact: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func replayReport(cmd *cobra.Command, report qa.EpisodeReport, dir string) {
	printReport(cmd, report, "")
	for _, step := range report.Steps {
		marker := " "
		if step.Replanned {
			marker = "R"
		}
		cmd.Printf("  %s step %2d [%s] %s\n", marker, step.Step.ID, step.Verification.Verdict, step.Step.Description)
		if step.Verification.Reason != "" {
			cmd.Printf("        %s\n", step.Verification.Reason)
		}
	}
	cmd.Printf("  frames: %s\n", filepath.Join(dir, "step_*.png"))
}

func replayEpisode(cmd *cobra.Command, episode session.EpisodeFile) {
	cmd.Printf("\nTask %s: %s\n", episode.TaskID, episode.Status)
	cmd.Printf("  success: %t  steps: %d  duration: %s\n", episode.Success, episode.Steps, episode.Duration)
	if episode.Error != "" {
		cmd.Printf("  error: %s\n", episode.Error)
	}
	for _, rec := range episode.Recorded {
		cmd.Printf("  step %2d  %-20s %s\n", rec.Step, rec.Decision.String(), rec.Result)
		if rec.ObservationSummary != "" {
			cmd.Printf("           saw: %s\n", rec.ObservationSummary)
		}
	}
}
