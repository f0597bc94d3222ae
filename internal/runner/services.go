package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/archive"
	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/executor"
	"github.com/zfault/droidpilot/internal/model"
	"github.com/zfault/droidpilot/internal/perception"
	"github.com/zfault/droidpilot/internal/qa"
	"github.com/zfault/droidpilot/internal/retry"
	"github.com/zfault/droidpilot/internal/session"
	"github.com/zfault/droidpilot/internal/surface"
)

// Services bundles the long-lived collaborators every task in this process
// shares: the surface, the model stack, perception, dispatch, the lease and
// the optional archive. Build once with NewServices, hand loops out per
// task, Shutdown at exit.
type Services struct {
	Surface   surface.Surface
	Model     model.Client
	Perceiver *perception.Adapter
	Actor     *executor.Executor
	Lease     agent.Leaser
	Archive   *archive.Archive

	cfg            *config.Config
	logger         *zap.Logger
	leaseCleanup   func()
	archiveCleanup func()
}

// NewServices performs the full dependency wiring in dependency order. A
// failure partway through shuts down everything already started before
// returning.
func NewServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Services{cfg: cfg, logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created services.", zap.Error(initializationErr))
			s.Shutdown()
		}
	}()

	surf, err := InitializeSurface(ctx, cfg.Surface, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize surface: %w", err)
		return nil, initializationErr
	}
	s.Surface = surf

	client, err := InitializeModelClient(ctx, cfg.LLM, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize model client: %w", err)
		return nil, initializationErr
	}
	s.Model = client

	perceiver, err := InitializePerception(cfg.OCR, surf, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize perception: %w", err)
		return nil, initializationErr
	}
	s.Perceiver = perceiver

	s.Actor = executor.New(surf, executor.Config{SwipeDuration: cfg.Surface.Android.SwipeDuration}, logger)

	leaser, leaseCleanup, err := InitializeLease(ctx, cfg.Lease, cfg.Surface.Kind, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize lease: %w", err)
		return nil, initializationErr
	}
	s.Lease = leaser
	s.leaseCleanup = leaseCleanup

	arch, archiveCleanup, err := InitializeArchive(ctx, cfg.Archive, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize archive: %w", err)
		return nil, initializationErr
	}
	s.Archive = arch
	s.archiveCleanup = archiveCleanup

	logger.Info("All services initialized.")
	return s, nil
}

// Shutdown releases held resources in reverse dependency order. Safe to call
// on a partially initialized struct.
func (s *Services) Shutdown() {
	if s.archiveCleanup != nil {
		s.archiveCleanup()
	}
	if s.leaseCleanup != nil {
		s.leaseCleanup()
	}
	if s.Model != nil {
		if err := s.Model.Close(); err != nil {
			s.logger.Warn("Error closing model client.", zap.Error(err))
		}
	}
	if s.Surface != nil {
		if err := s.Surface.Close(); err != nil {
			s.logger.Warn("Error closing surface.", zap.Error(err))
		}
	}
	s.logger.Debug("Services shut down.")
}

// NewTaskLoop builds a fresh loop plus its on-disk session store for one
// task. The store doubles as the loop's recorder.
func (s *Services) NewTaskLoop(task agent.Task) (*agent.Loop, *session.Store, error) {
	store, err := session.NewStore(s.cfg.Session, task.ID, s.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session store: %w", err)
	}
	return s.newLoop(store), store, nil
}

func (s *Services) newLoop(recorder agent.Recorder) *agent.Loop {
	decider := model.NewDecider(s.Model, model.DeciderConfig{}, s.logger)
	return agent.NewLoop(agent.Deps{
		Perceiver: s.Perceiver,
		Decider:   decider,
		Actor:     s.Actor,
		Lease:     s.Lease,
		Recorder:  recorder,
		Policy:    retry.FromConfig(s.cfg.Retry),
		Logger:    s.logger,
	}, agent.LoopConfigFrom(s.cfg.Agent))
}

// Factory adapts the services to the runner's per-task contract: each task
// gets its own loop, session directory and outcome file.
func (s *Services) Factory() Factory {
	return func(task agent.Task) (TaskRunner, error) {
		loop, store, err := s.NewTaskLoop(task)
		if err != nil {
			return nil, err
		}
		return &recordedRun{loop: loop, store: store, logger: s.logger}, nil
	}
}

// recordedRun finalizes the session artifacts once the loop terminates.
type recordedRun struct {
	loop   *agent.Loop
	store  *session.Store
	logger *zap.Logger
}

func (r *recordedRun) Run(ctx context.Context, task agent.Task) agent.Outcome {
	outcome := r.loop.Run(ctx, task)
	if err := r.store.WriteOutcome(outcome); err != nil {
		r.logger.Warn("Failed to write episode outcome.",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}
	return outcome
}

// NewEpisode wires the QA planner/verifier/supervisor stack over a fresh
// inner loop. label names the session directory; the report's own episode ID
// is minted when Run starts and lands in the report file inside it.
func (s *Services) NewEpisode(label string) (*qa.Episode, *session.Store, error) {
	store, err := session.NewStore(s.cfg.Session, label, s.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session store: %w", err)
	}
	loop := s.newLoop(session.NewEpisodeRecorder(store))
	planner := qa.NewPlanner(s.Model, s.logger)
	verifier := qa.NewVerifier(s.Model, qa.VerifierConfig{ConfidenceThreshold: s.cfg.QA.ConfidenceThreshold}, s.logger)
	supervisor := qa.NewSupervisor(s.Model, s.logger)
	episode := qa.NewEpisode(planner, verifier, supervisor, loop, qa.EpisodeConfigFrom(s.cfg.QA), s.logger)
	return episode, store, nil
}
