package perception

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/surface"
)

// Capturer is the slice of the surface the adapter needs.
type Capturer interface {
	Capture(ctx context.Context) (surface.Frame, error)
}

// Engine extracts text regions from a captured frame. Implementations MUST
// report boxes in the frame's own pixel space; that contract is what keeps
// perception output and executor input in one coordinate system.
type Engine interface {
	Recognize(ctx context.Context, frame surface.Frame) ([]Region, error)
	Name() string
}

// AdapterConfig tunes observation post-processing.
type AdapterConfig struct {
	// MinConfidence drops low-quality regions before they reach the model.
	MinConfidence float64
}

// Adapter produces Observations by pairing a screen capturer with a
// recognition engine.
type Adapter struct {
	capturer Capturer
	engine   Engine
	cfg      AdapterConfig
	logger   *zap.Logger
}

// NewAdapter wires an adapter.
func NewAdapter(c Capturer, e Engine, cfg AdapterConfig, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{capturer: c, engine: e, cfg: cfg, logger: logger.Named("perception")}
}

// Observe captures the screen and extracts regions. Recognition gets one
// internal retry; a second failure surfaces as a PerceptionError. Capture
// failures surface as CaptureError without retry, that is the caller's call.
func (a *Adapter) Observe(ctx context.Context) (Observation, error) {
	frame, err := a.capturer.Capture(ctx)
	if err != nil {
		return Observation{}, &CaptureError{Cause: err}
	}

	regions, err := a.engine.Recognize(ctx, frame)
	if err != nil && ctx.Err() == nil {
		a.logger.Debug("recognition failed, retrying once", zap.String("engine", a.engine.Name()), zap.Error(err))
		regions, err = a.engine.Recognize(ctx, frame)
	}
	if err != nil {
		return Observation{}, &PerceptionError{Engine: a.engine.Name(), Cause: err}
	}

	kept := regions[:0]
	for _, r := range regions {
		if r.Confidence < a.cfg.MinConfidence {
			continue
		}
		r.Box = clampBox(r.Box, frame.Width, frame.Height)
		if r.Box.W <= 0 || r.Box.H <= 0 {
			continue
		}
		kept = append(kept, r)
	}
	sortRegions(kept)

	obs := Observation{
		TakenAt: time.Now(),
		Frame:   frame.PNG,
		Width:   frame.Width,
		Height:  frame.Height,
		Regions: kept,
	}
	a.logger.Debug("observation ready",
		zap.String("engine", a.engine.Name()),
		zap.Int("regions", len(kept)),
		zap.Int("dropped", len(regions)-len(kept)),
	)
	return obs, nil
}

// clampBox trims a box to the frame so a region can never describe
// off-screen pixels, whatever the engine returned.
func clampBox(b Box, w, h int) Box {
	if b.X < 0 {
		b.W += b.X
		b.X = 0
	}
	if b.Y < 0 {
		b.H += b.Y
		b.Y = 0
	}
	if b.X+b.W > w {
		b.W = w - b.X
	}
	if b.Y+b.H > h {
		b.H = h - b.Y
	}
	if b.W < 0 {
		b.W = 0
	}
	if b.H < 0 {
		b.H = 0
	}
	return b
}
