package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/observability"
	"github.com/zfault/droidpilot/internal/runner"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		steps       int
		criteria    string
		concurrency int
		headless    bool
	)

	runCmd := &cobra.Command{
		Use:   "run [goals...]",
		Short: "Execute one or more task goals against the configured surface",
		Long: `Each goal becomes an independent task with its own step budget and session
directory. Tasks run concurrently up to runner.concurrency; the shared surface
is serialized through the configured lease.`,
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
			if cmd.Flags().Changed("concurrency") {
				cfg.Runner.Concurrency = concurrency
			}

			tasks := make([]agent.Task, 0, len(args))
			for _, goal := range args {
				task := agent.NewTask(goal, steps)
				task.SuccessCriteria = criteria
				tasks = append(tasks, task)
			}

			logger.Info("Starting run",
				zap.Int("tasks", len(tasks)),
				zap.String("surface", string(cfg.Surface.Kind)),
				zap.Int("concurrency", cfg.Runner.Concurrency),
			)

			services, err := runner.NewServices(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize services: %w", err)
			}
			defer services.Shutdown()

			outcomes := runner.New(services.Factory(), cfg.Runner.Concurrency, logger).RunAll(ctx, tasks)

			failed := 0
			for i, outcome := range outcomes {
				printOutcome(cmd, tasks[i], outcome)
				if outcome.Status == agent.StatusFailed {
					failed++
				}
			}

			if ctx.Err() != nil {
				return fmt.Errorf("run aborted by user signal")
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tasks failed", failed, len(outcomes))
			}
			return nil
		},
	}

	runCmd.Flags().IntVarP(&steps, "steps", "s", 0, "Step budget per task. (Overrides agent.step_budget)")
	runCmd.Flags().StringVar(&criteria, "criteria", "", "Success criteria the model checks before finishing.")
	runCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Number of tasks executed in parallel. (Overrides runner.concurrency)")
	runCmd.Flags().BoolVar(&headless, "headless", true, "Run the web surface without a visible browser window.")

	return runCmd
}

func printOutcome(cmd *cobra.Command, task agent.Task, outcome agent.Outcome) {
	cmd.Printf("\nTask %s: %s\n", outcome.TaskID, task.Goal)
	cmd.Printf("  status: %s  success: %t  steps: %d  duration: %s\n",
		outcome.Status, outcome.Success, outcome.Steps, outcome.Duration.Round(time.Millisecond))
	if outcome.ErrMsg != "" {
		cmd.Printf("  error: %s (%s)\n", outcome.ErrMsg, outcome.ErrCode)
	}
}
