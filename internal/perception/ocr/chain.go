package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/perception"
	"github.com/zfault/droidpilot/internal/surface"
)

// Chain tries engines in order and returns the first non-empty result. An
// engine that errors or yields nothing falls through to the next, so a
// hierarchy reader can be preferred with character recognition as backup.
type Chain struct {
	engines []perception.Engine
	logger  *zap.Logger
}

// NewChain builds a fallback chain. At least one engine is required.
func NewChain(logger *zap.Logger, engines ...perception.Engine) (*Chain, error) {
	if len(engines) == 0 {
		return nil, errors.New("at least one engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		engines: engines,
		logger:  logger.Named("ocr.chain"),
	}, nil
}

// Name implements perception.Engine.
func (c *Chain) Name() string {
	names := make([]string, len(c.engines))
	for i, e := range c.engines {
		names[i] = e.Name()
	}
	return "auto(" + strings.Join(names, ",") + ")"
}

// Recognize runs each engine until one yields regions. If every engine
// errors, the last error is returned. If every engine succeeds with no
// regions, an empty result is returned; a blank screen is a valid
// observation.
func (c *Chain) Recognize(ctx context.Context, frame surface.Frame) ([]perception.Region, error) {
	var lastErr error
	for _, engine := range c.engines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		regions, err := engine.Recognize(ctx, frame)
		if err != nil {
			c.logger.Warn("Engine failed, trying next",
				zap.String("engine", engine.Name()),
				zap.Error(err))
			lastErr = err
			continue
		}
		if len(regions) == 0 {
			c.logger.Debug("Engine yielded no regions, trying next",
				zap.String("engine", engine.Name()))
			continue
		}
		return regions, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all engines failed: %w", lastErr)
	}
	return nil, nil
}
