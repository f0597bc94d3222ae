package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/agent"
	"github.com/zfault/droidpilot/internal/archive"
	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/lease"
	"github.com/zfault/droidpilot/internal/model"
	"github.com/zfault/droidpilot/internal/model/anthropic"
	"github.com/zfault/droidpilot/internal/model/gemini"
	"github.com/zfault/droidpilot/internal/model/openai"
	"github.com/zfault/droidpilot/internal/netutil"
	"github.com/zfault/droidpilot/internal/perception"
	"github.com/zfault/droidpilot/internal/perception/ocr"
	"github.com/zfault/droidpilot/internal/surface"
	"github.com/zfault/droidpilot/internal/surface/android"
	"github.com/zfault/droidpilot/internal/surface/web"
)

// InitializeSurface connects to the configured GUI target.
func InitializeSurface(ctx context.Context, cfg config.SurfaceConfig, logger *zap.Logger) (surface.Surface, error) {
	switch cfg.Kind {
	case config.SurfaceAndroid:
		logger.Info("Initializing Android surface.", zap.String("serial", cfg.Android.Serial))
		return android.New(ctx, cfg.Android, logger)
	case config.SurfaceWeb:
		logger.Info("Initializing web surface.", zap.Bool("headless", cfg.Web.Headless))
		return web.New(ctx, cfg.Web, logger)
	default:
		return nil, fmt.Errorf("unsupported surface kind: %s", cfg.Kind)
	}
}

// InitializeModelClient builds the routed, rate-limited model stack for the
// configured tiers. The provider switch lives here rather than in the model
// package because the provider adapters import it.
func InitializeModelClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (model.Client, error) {
	fastCfg, ok := cfg.Models[cfg.DefaultFastModel]
	if !ok {
		return nil, fmt.Errorf("default fast model %q is not defined under llm.models", cfg.DefaultFastModel)
	}
	powerfulCfg, ok := cfg.Models[cfg.DefaultPowerfulModel]
	if !ok {
		return nil, fmt.Errorf("default powerful model %q is not defined under llm.models", cfg.DefaultPowerfulModel)
	}

	fast, err := newProviderClient(ctx, fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fast tier client (model %q): %w", cfg.DefaultFastModel, err)
	}

	powerful := fast
	if cfg.DefaultPowerfulModel != cfg.DefaultFastModel {
		powerful, err = newProviderClient(ctx, powerfulCfg, logger)
		if err != nil {
			_ = fast.Close()
			return nil, fmt.Errorf("failed to initialize powerful tier client (model %q): %w", cfg.DefaultPowerfulModel, err)
		}
	}

	router, err := model.NewRouter(fast, powerful, logger)
	if err != nil {
		_ = fast.Close()
		_ = powerful.Close()
		return nil, fmt.Errorf("failed to build model router: %w", err)
	}

	logger.Info("Model stack initialized.",
		zap.String("fast", fastCfg.Model),
		zap.String("powerful", powerfulCfg.Model),
		zap.Float64("requests_per_minute", cfg.RequestsPerMinute),
	)
	return model.WithRateLimit(router, cfg.RequestsPerMinute), nil
}

func newProviderClient(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (model.Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return gemini.New(ctx, cfg, logger)
	case config.ProviderAnthropic:
		return anthropic.New(cfg, logger)
	case config.ProviderOpenAI:
		return openai.New(cfg, logger)
	case "":
		return nil, fmt.Errorf("llm provider is not specified in the model configuration")
	default:
		return nil, fmt.Errorf("unknown or unsupported llm provider: '%s'. Supported: [%s %s %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderAnthropic, config.ProviderOpenAI)
	}
}

// InitializePerception builds the observation pipeline over the surface. The
// engine choice honors the config: the UI hierarchy reader when the surface
// exposes one, raster recognition through the remote service otherwise.
func InitializePerception(cfg config.OCRConfig, surf surface.Surface, logger *zap.Logger) (*perception.Adapter, error) {
	httpClient := netutil.NewClient(netutil.NewDefaultClientConfig())
	engine, err := ocr.BuildEngine(cfg, surf, httpClient, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Perception initialized.", zap.String("engine", engine.Name()))
	adapterCfg := perception.AdapterConfig{MinConfidence: cfg.Remote.MinConfidence}
	return perception.NewAdapter(surf, engine, adapterCfg, logger), nil
}

// InitializeLease builds the configured surface lease. The cleanup closes the
// Redis connection when one was opened; it is nil otherwise.
func InitializeLease(ctx context.Context, cfg config.LeaseConfig, surfaceKind config.SurfaceKind, logger *zap.Logger) (agent.Leaser, func(), error) {
	switch cfg.Mode {
	case config.LeaseNone:
		return lease.Nop{}, nil, nil
	case config.LeaseLocal:
		return lease.NewLocal(), nil, nil
	case config.LeaseRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Redis.Addr, err)
		}
		key := fmt.Sprintf("droidpilot:surface:%s", surfaceKind)
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis connection.", zap.Error(err))
			}
		}
		logger.Info("Redis surface lease initialized.",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("key", key),
		)
		return lease.NewRedis(client, key, cfg.Redis.TTL, logger), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lease mode: %s", cfg.Mode)
	}
}

// InitializeArchive connects the Postgres episode archive. Returns nils
// without error when the archive is disabled.
func InitializeArchive(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (*archive.Archive, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Postgres.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	store, err := archive.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize episode archive: %w", err)
	}

	cleanup := func() {
		logger.Debug("Closing archive connection pool.")
		pool.Close()
	}
	logger.Info("Episode archive initialized.", zap.String("host", cfg.Postgres.Host))
	return store, cleanup, nil
}
