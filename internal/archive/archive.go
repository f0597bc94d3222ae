// Package archive persists finished episode reports to PostgreSQL so runs
// can be listed and replayed later. It expects an `episodes` table keyed by
// episode_id with the full report as jsonb, plus an `episode_bugs` table
// carrying one row per surfaced bug.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/qa"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts the pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Archive is the PostgreSQL episode store.
type Archive struct {
	pool DBPool
	log  *zap.Logger
}

// New creates an archive over the pool and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Archive, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Archive{
		pool: pool,
		log:  logger.Named("archive"),
	}, nil
}

const sqlUpsertEpisode = `
	INSERT INTO episodes (id, goal, status, total_steps, passed_steps, failed_steps, replans, report, started_at, duration_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		goal = EXCLUDED.goal,
		status = EXCLUDED.status,
		total_steps = EXCLUDED.total_steps,
		passed_steps = EXCLUDED.passed_steps,
		failed_steps = EXCLUDED.failed_steps,
		replans = EXCLUDED.replans,
		report = EXCLUDED.report,
		started_at = EXCLUDED.started_at,
		duration_ms = EXCLUDED.duration_ms;
`

const sqlDeleteBugs = `DELETE FROM episode_bugs WHERE episode_id = $1;`

// SaveReport upserts one episode and replaces its bug rows in a single
// transaction. Saving the same episode twice overwrites the earlier state.
func (a *Archive) SaveReport(ctx context.Context, report qa.EpisodeReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal episode report: %w", err)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			a.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, sqlUpsertEpisode,
		report.ID, report.Goal, string(report.Status),
		report.TotalSteps, report.PassedSteps, report.FailedSteps,
		report.Replans, payload,
		report.StartedAt.UTC(), report.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert episode %s: %w", report.ID, err)
	}

	if _, err := tx.Exec(ctx, sqlDeleteBugs, report.ID); err != nil {
		return fmt.Errorf("failed to clear bugs for episode %s: %w", report.ID, err)
	}
	if len(report.Bugs) > 0 {
		rows := make([][]interface{}, len(report.Bugs))
		for i, bug := range report.Bugs {
			rows[i] = []interface{}{report.ID, bug.Step, bug.Description, bug.Reason}
		}
		copyCount, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"episode_bugs"},
			[]string{"episode_id", "step", "description", "reason"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy bugs: %w", err)
		}
		if int(copyCount) != len(report.Bugs) {
			return fmt.Errorf("mismatch in copied bug count: expected %d, got %d", len(report.Bugs), copyCount)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	a.log.Debug("episode archived",
		zap.String("episode_id", report.ID),
		zap.String("status", string(report.Status)),
		zap.Int("bugs", len(report.Bugs)),
	)
	return nil
}

// Summary is one episode row without its full report payload.
type Summary struct {
	ID          string           `json:"episode_id"`
	Goal        string           `json:"goal"`
	Status      qa.EpisodeStatus `json:"status"`
	TotalSteps  int              `json:"total_steps"`
	PassedSteps int              `json:"passed_steps"`
	FailedSteps int              `json:"failed_steps"`
	Replans     int              `json:"replans"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration"`
}

// RecentEpisodes lists the newest episodes, most recent first.
func (a *Archive) RecentEpisodes(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, goal, status, total_steps, passed_steps, failed_steps, replans, started_at, duration_ms
		FROM episodes
		ORDER BY started_at DESC
		LIMIT $1;
	`
	rows, err := a.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			s          Summary
			statusStr  string
			durationMS int64
		)
		err := rows.Scan(&s.ID, &s.Goal, &statusStr, &s.TotalSteps, &s.PassedSteps, &s.FailedSteps, &s.Replans, &s.StartedAt, &durationMS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode row: %w", err)
		}
		s.Status = qa.EpisodeStatus(statusStr)
		s.Duration = time.Duration(durationMS) * time.Millisecond
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return summaries, nil
}

// GetReport loads one archived episode's full report by ID.
func (a *Archive) GetReport(ctx context.Context, id string) (qa.EpisodeReport, error) {
	var payload []byte
	err := a.pool.QueryRow(ctx, `SELECT report FROM episodes WHERE id = $1;`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return qa.EpisodeReport{}, fmt.Errorf("episode with id '%s' not found", id)
		}
		return qa.EpisodeReport{}, fmt.Errorf("failed to load episode %s: %w", id, err)
	}

	var report qa.EpisodeReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return qa.EpisodeReport{}, fmt.Errorf("failed to unmarshal episode report: %w", err)
	}
	return report, nil
}
