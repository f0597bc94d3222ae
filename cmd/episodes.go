package cmd

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/zfault/droidpilot/internal/archive"
	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/observability"
	"github.com/zfault/droidpilot/internal/qa"
	"github.com/zfault/droidpilot/internal/runner"
)

// episodeSource is the slice of the archive the episodes command reads.
type episodeSource interface {
	RecentEpisodes(ctx context.Context, limit int) ([]archive.Summary, error)
	GetReport(ctx context.Context, id string) (qa.EpisodeReport, error)
}

// archiveOpener creates the episode source. Production connects to
// PostgreSQL; tests inject a fake.
type archiveOpener interface {
	Open(ctx context.Context, cfg *config.Config) (episodeSource, func(), error)
}

type defaultArchiveOpener struct{}

func newArchiveOpener() archiveOpener { return defaultArchiveOpener{} }

func (defaultArchiveOpener) Open(ctx context.Context, cfg *config.Config) (episodeSource, func(), error) {
	if !cfg.Archive.Enabled {
		return nil, nil, fmt.Errorf("the episode archive is disabled (set archive.enabled and archive.postgres)")
	}
	arch, cleanup, err := runner.InitializeArchive(ctx, cfg.Archive, observability.GetLogger())
	if err != nil {
		return nil, nil, err
	}
	return arch, cleanup, nil
}

// newEpisodesCmd creates and configures the `episodes` command.
func newEpisodesCmd(opener archiveOpener) *cobra.Command {
	var (
		id    string
		limit int
	)

	episodesCmd := &cobra.Command{
		Use:   "episodes",
		Short: "List or inspect archived QA episodes",
		Long: `Reads the PostgreSQL episode archive. Without flags the most recent episodes
are listed; --id prints one full report as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			source, cleanup, err := opener.Open(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open episode archive: %w", err)
			}
			if cleanup != nil {
				defer cleanup()
			}

			if id != "" {
				return printArchivedReport(ctx, cmd, source, id)
			}
			return printRecentEpisodes(ctx, cmd, source, limit)
		},
	}

	episodesCmd.Flags().StringVar(&id, "id", "", "Print the full report for this episode ID.")
	episodesCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of episodes to list.")

	return episodesCmd
}

func printArchivedReport(ctx context.Context, cmd *cobra.Command, source episodeSource, id string) error {
	report, err := source.GetReport(ctx, id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printRecentEpisodes(ctx context.Context, cmd *cobra.Command, source episodeSource, limit int) error {
	summaries, err := source.RecentEpisodes(ctx, limit)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		cmd.Println("No archived episodes.")
		return nil
	}

	cmd.Printf("%-10s %-14s %-7s %-17s %-9s %s\n", "EPISODE", "STATUS", "STEPS", "STARTED", "DURATION", "GOAL")
	for _, s := range summaries {
		cmd.Printf("%-10s %-14s %3d/%-3d %-17s %-9s %s\n",
			s.ID, s.Status, s.PassedSteps, s.TotalSteps,
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.Duration.Round(time.Second), s.Goal)
	}
	return nil
}
