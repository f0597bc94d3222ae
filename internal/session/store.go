// Package session persists per-episode artifacts on disk: numbered frame
// captures and a final episode.json. One Store owns one episode directory;
// nothing is shared between episodes, so concurrent tasks each get their own
// Store.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/config"
)

const dirTimestamp = "20060102-150405"

// Store writes one episode's artifacts under <dir>/<timestamp>-<task-id>/.
type Store struct {
	dir             string
	saveScreenshots bool
	logger          *zap.Logger

	mu    sync.Mutex
	steps []agent.StepRecord
}

// EpisodeFile is the on-disk shape of episode.json. The full step list is
// recorded here; the outcome's history is only the loop's bounded window.
type EpisodeFile struct {
	TaskID   string             `json:"task_id"`
	Status   string             `json:"status"`
	Success  bool               `json:"success"`
	Steps    int                `json:"steps"`
	Error    string             `json:"error,omitempty"`
	Duration string             `json:"duration"`
	Recorded []agent.StepRecord `json:"recorded_steps"`
}

// NewStore creates the episode directory.
func NewStore(cfg config.SessionConfig, taskID string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	root := cfg.Dir
	if root == "" {
		root = "sessions"
	}
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", time.Now().Format(dirTimestamp), taskID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory %s: %w", dir, err)
	}
	return &Store{
		dir:             dir,
		saveScreenshots: cfg.SaveScreenshots,
		logger:          logger.Named("session"),
	}, nil
}

// Dir returns the episode directory.
func (s *Store) Dir() string { return s.dir }

// RecordFrame writes one captured frame as step_NNN.png. Disabled stores and
// empty frames are silently skipped.
func (s *Store) RecordFrame(step int, frame []byte) error {
	if !s.saveScreenshots || len(frame) == 0 {
		return nil
	}
	name := filepath.Join(s.dir, fmt.Sprintf("step_%03d.png", step))
	if err := os.WriteFile(name, frame, 0o644); err != nil {
		return fmt.Errorf("writing frame %s: %w", name, err)
	}
	return nil
}

// RecordStep accumulates the step for the final episode file.
func (s *Store) RecordStep(rec agent.StepRecord) error {
	s.mu.Lock()
	s.steps = append(s.steps, rec)
	s.mu.Unlock()
	return nil
}

// WriteOutcome finalizes the episode.
func (s *Store) WriteOutcome(outcome agent.Outcome) error {
	s.mu.Lock()
	recorded := make([]agent.StepRecord, len(s.steps))
	copy(recorded, s.steps)
	s.mu.Unlock()

	file := EpisodeFile{
		TaskID:   outcome.TaskID,
		Status:   string(outcome.Status),
		Success:  outcome.Success,
		Steps:    outcome.Steps,
		Error:    outcome.ErrMsg,
		Duration: outcome.Duration.String(),
		Recorded: recorded,
	}
	if err := s.WriteJSON("episode.json", file); err != nil {
		return err
	}
	s.logger.Info("episode artifacts written",
		zap.String("dir", s.dir),
		zap.Int("recorded_steps", len(recorded)),
	)
	return nil
}

// WriteJSON writes any report document into the episode directory.
func (s *Store) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// EpisodeRecorder renumbers frames monotonically across the several inner
// loop runs that share one episode directory. Each inner loop restarts its
// step count at 1, so recording through the store directly would overwrite
// earlier captures.
type EpisodeRecorder struct {
	store *Store

	mu   sync.Mutex
	next int
}

// NewEpisodeRecorder wraps the store for multi-loop episodes.
func NewEpisodeRecorder(store *Store) *EpisodeRecorder {
	return &EpisodeRecorder{store: store}
}

// RecordFrame ignores the loop-local step number and assigns the next
// episode-wide one.
func (r *EpisodeRecorder) RecordFrame(_ int, frame []byte) error {
	r.mu.Lock()
	r.next++
	n := r.next
	r.mu.Unlock()
	return r.store.RecordFrame(n, frame)
}

// RecordStep passes through to the store.
func (r *EpisodeRecorder) RecordStep(rec agent.StepRecord) error {
	return r.store.RecordStep(rec)
}
