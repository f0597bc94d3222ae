package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/observability"
	"github.com/zfault/droidpilot/internal/qa"
	"github.com/zfault/droidpilot/internal/runner"
)

// newQACmd creates and configures the `qa` command.
func newQACmd() *cobra.Command {
	var (
		label    string
		output   string
		headless bool
	)

	qaCmd := &cobra.Command{
		Use:   "qa <goal>",
		Short: "Run a planned, verified QA episode for a single goal",
		Long: `The goal is expanded into a test plan. Every plan step runs as its own
bounded task, a verifier judges each step against its expected result and a
supervisor folds the verdicts into a final report including any bugs found.
The report lands in the session directory and, when configured, in the
PostgreSQL archive.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headless") {
				cfg.Surface.Web.Headless = headless
			}
			goal := strings.Join(args, " ")

			services, err := runner.NewServices(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize services: %w", err)
			}
			defer services.Shutdown()

			episode, store, err := services.NewEpisode(label)
			if err != nil {
				return fmt.Errorf("failed to prepare episode: %w", err)
			}

			report, err := episode.Run(ctx, goal)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("episode aborted by user signal")
				}
				return err
			}

			if err := store.WriteJSON("report.json", report); err != nil {
				logger.Warn("Failed to write episode report", zap.Error(err))
			}
			if services.Archive != nil {
				if err := services.Archive.SaveReport(ctx, report); err != nil {
					logger.Warn("Failed to archive episode report", zap.Error(err))
				}
			}

			printReport(cmd, report, store.Dir())

			if output != "" {
				if err := writeReportFile(report, output); err != nil {
					return err
				}
				cmd.Printf("Report copy written to %s\n", output)
			}
			return nil
		},
	}

	qaCmd.Flags().StringVar(&label, "label", "qa", "Label used in the session directory name.")
	qaCmd.Flags().StringVarP(&output, "output", "o", "", "Write a copy of the report JSON to this path.")
	qaCmd.Flags().BoolVar(&headless, "headless", true, "Run the web surface without a visible browser window.")

	return qaCmd
}

func printReport(cmd *cobra.Command, report qa.EpisodeReport, dir string) {
	cmd.Printf("\nEpisode %s: %s\n", report.ID, report.Status)
	cmd.Printf("  goal: %s\n", report.Goal)
	cmd.Printf("  steps: %d passed, %d failed of %d  replans: %d  duration: %s\n",
		report.PassedSteps, report.FailedSteps, report.TotalSteps, report.Replans,
		report.Duration.Round(time.Millisecond))
	for _, bug := range report.Bugs {
		cmd.Printf("  bug at step %d: %s\n", bug.Step, bug.Description)
	}
	if dir != "" {
		cmd.Printf("  artifacts: %s\n", dir)
	}
}

func writeReportFile(report qa.EpisodeReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
