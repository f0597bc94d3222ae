package ocr

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/perception"
	"github.com/zfault/droidpilot/internal/surface"
)

// BuildEngine constructs the recognition engine the configuration asks for,
// wired to the given surface. Auto mode prefers the surface's accessibility
// hierarchy and falls back to the remote service when both are available.
func BuildEngine(cfg config.OCRConfig, surf surface.Surface, client *http.Client, logger *zap.Logger) (perception.Engine, error) {
	switch cfg.Engine {
	case config.OCRRemote:
		if cfg.Remote.Endpoint == "" {
			return nil, errors.New("remote engine requires ocr.remote.endpoint")
		}
		return NewRemote(cfg.Remote, client, logger), nil

	case config.OCRUITree:
		provider, ok := surf.(surface.HierarchyProvider)
		if !ok {
			return nil, errors.New("surface does not expose a ui hierarchy")
		}
		return NewUITree(provider, logger), nil

	case config.OCRAuto:
		var engines []perception.Engine
		if provider, ok := surf.(surface.HierarchyProvider); ok {
			engines = append(engines, NewUITree(provider, logger))
		}
		if cfg.Remote.Endpoint != "" {
			engines = append(engines, NewRemote(cfg.Remote, client, logger))
		}
		switch len(engines) {
		case 0:
			return nil, errors.New("auto engine needs a hierarchy surface or a remote endpoint")
		case 1:
			return engines[0], nil
		default:
			return NewChain(logger, engines...)
		}

	default:
		return nil, fmt.Errorf("unsupported ocr engine: %s", cfg.Engine)
	}
}
