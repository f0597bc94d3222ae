package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of the application configuration. It is assembled once
// at startup (file + env + defaults via viper) and passed into constructors;
// nothing reads configuration ambiently after that.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Surface SurfaceConfig `mapstructure:"surface" yaml:"surface"`
	OCR     OCRConfig     `mapstructure:"ocr" yaml:"ocr"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	QA      QAConfig      `mapstructure:"qa" yaml:"qa"`
	Retry   RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Lease   LeaseConfig   `mapstructure:"lease" yaml:"lease"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`
	Runner  RunnerConfig  `mapstructure:"runner" yaml:"runner"`
}

// LoggerConfig holds all logging settings.
type LoggerConfig struct {
	Level      string      `mapstructure:"level" yaml:"level"`
	Format     string      `mapstructure:"format" yaml:"format"`
	AddSource  bool        `mapstructure:"add_source" yaml:"add_source"`
	File       string      `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int         `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int         `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool        `mapstructure:"compress" yaml:"compress"`
	Colors     ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// SurfaceKind selects the automation target implementation.
type SurfaceKind string

const (
	SurfaceAndroid SurfaceKind = "android"
	SurfaceWeb     SurfaceKind = "web"
)

// SurfaceConfig selects and configures the GUI target.
type SurfaceConfig struct {
	Kind    SurfaceKind   `mapstructure:"kind" yaml:"kind"`
	Android AndroidConfig `mapstructure:"android" yaml:"android"`
	Web     WebConfig     `mapstructure:"web" yaml:"web"`
}

// AndroidConfig configures the adb-backed surface.
type AndroidConfig struct {
	ADBPath        string        `mapstructure:"adb_path" yaml:"adb_path"`
	Serial         string        `mapstructure:"serial" yaml:"serial"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	SwipeDuration  time.Duration `mapstructure:"swipe_duration" yaml:"swipe_duration"`
}

// WebConfig configures the chromedp-backed surface.
type WebConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	StartURL          string        `mapstructure:"start_url" yaml:"start_url"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// OCREngine selects how observations are extracted from the screen.
type OCREngine string

const (
	// OCRRemote sends frames to a hosted recognition service.
	OCRRemote OCREngine = "remote"
	// OCRUITree flattens the surface's accessibility hierarchy instead of
	// running recognition on pixels. Android only.
	OCRUITree OCREngine = "uitree"
	// OCRAuto prefers the UI tree when the surface exposes one and falls
	// back to the remote engine.
	OCRAuto OCREngine = "auto"
)

// OCRConfig configures perception.
type OCRConfig struct {
	Engine OCREngine       `mapstructure:"engine" yaml:"engine"`
	Remote RemoteOCRConfig `mapstructure:"remote" yaml:"remote"`
}

// RemoteOCRConfig holds the hosted recognition service settings.
type RemoteOCRConfig struct {
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey         string        `mapstructure:"api_key" yaml:"-"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MinConfidence  float64       `mapstructure:"min_confidence" yaml:"min_confidence"`
}

// LLMProvider identifies a supported model backend.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOpenAI    LLMProvider = "openai"
)

// LLMConfig configures model routing. Models maps a logical name to one
// backend; the router picks by tier.
type LLMConfig struct {
	DefaultFastModel     string                 `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                 `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    float64                `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]ModelConfig `mapstructure:"models" yaml:"models"`
}

// ModelConfig defines one model backend.
type ModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// AgentConfig bounds a single perception/decision/action loop.
type AgentConfig struct {
	StepBudget     int           `mapstructure:"step_budget" yaml:"step_budget"`
	HistoryWindow  int           `mapstructure:"history_window" yaml:"history_window"`
	ObserveTimeout time.Duration `mapstructure:"observe_timeout" yaml:"observe_timeout"`
	DecideTimeout  time.Duration `mapstructure:"decide_timeout" yaml:"decide_timeout"`
	ActTimeout     time.Duration `mapstructure:"act_timeout" yaml:"act_timeout"`
}

// QAConfig bounds a full plan/execute/verify episode.
type QAConfig struct {
	EpisodeBudget       int     `mapstructure:"episode_budget" yaml:"episode_budget"`
	StepBudget          int     `mapstructure:"step_budget" yaml:"step_budget"`
	MaxReplans          int     `mapstructure:"max_replans" yaml:"max_replans"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
}

// RetryConfig parameterizes the shared backoff policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Jitter      bool          `mapstructure:"jitter" yaml:"jitter"`
	MaxElapsed  time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed"`
}

// LeaseMode selects the surface mutual-exclusion backend.
type LeaseMode string

const (
	LeaseNone  LeaseMode = "none"
	LeaseLocal LeaseMode = "local"
	LeaseRedis LeaseMode = "redis"
)

// LeaseConfig configures the exclusive-surface lease.
type LeaseConfig struct {
	Mode  LeaseMode   `mapstructure:"mode" yaml:"mode"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig holds the distributed lease backend settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"-"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// SessionConfig configures on-disk episode artifacts.
type SessionConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir"`
	SaveScreenshots bool   `mapstructure:"save_screenshots" yaml:"save_screenshots"`
}

// ArchiveConfig configures the optional Postgres episode archive.
type ArchiveConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds connection details for the archive database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// RunnerConfig bounds concurrent task execution.
type RunnerConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// SetDefaults registers every default value on the given viper instance.
// Called before reading the config file so the file only needs overrides.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.file", "droidpilot.log")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Surface --
	v.SetDefault("surface.kind", "android")
	v.SetDefault("surface.android.adb_path", "adb")
	v.SetDefault("surface.android.command_timeout", "15s")
	v.SetDefault("surface.android.swipe_duration", "300ms")
	v.SetDefault("surface.web.headless", true)
	v.SetDefault("surface.web.viewport_width", 1280)
	v.SetDefault("surface.web.viewport_height", 800)
	v.SetDefault("surface.web.navigation_timeout", "90s")

	// -- OCR --
	v.SetDefault("ocr.engine", "auto")
	v.SetDefault("ocr.remote.request_timeout", "20s")
	v.SetDefault("ocr.remote.min_confidence", 0.3)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "flash")
	v.SetDefault("llm.default_powerful_model", "pro")
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.models.flash.provider", "gemini")
	v.SetDefault("llm.models.flash.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.flash.api_timeout", "60s")
	v.SetDefault("llm.models.flash.max_tokens", 4096)
	v.SetDefault("llm.models.pro.provider", "gemini")
	v.SetDefault("llm.models.pro.model", "gemini-2.5-pro")
	v.SetDefault("llm.models.pro.api_timeout", "120s")
	v.SetDefault("llm.models.pro.max_tokens", 8192)

	// -- Agent loop --
	v.SetDefault("agent.step_budget", 10)
	v.SetDefault("agent.history_window", 8)
	v.SetDefault("agent.observe_timeout", "30s")
	v.SetDefault("agent.decide_timeout", "120s")
	v.SetDefault("agent.act_timeout", "30s")

	// -- QA episode --
	v.SetDefault("qa.episode_budget", 50)
	v.SetDefault("qa.step_budget", 10)
	v.SetDefault("qa.max_replans", 2)
	v.SetDefault("qa.confidence_threshold", 0.6)

	// -- Retry --
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.jitter", true)
	v.SetDefault("retry.max_elapsed", "2m")

	// -- Lease --
	v.SetDefault("lease.mode", "local")
	v.SetDefault("lease.redis.addr", "localhost:6379")
	v.SetDefault("lease.redis.db", 0)
	v.SetDefault("lease.redis.ttl", "30s")

	// -- Session artifacts --
	v.SetDefault("session.dir", "sessions")
	v.SetDefault("session.save_screenshots", true)

	// -- Archive --
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.postgres.host", "localhost")
	v.SetDefault("archive.postgres.port", 5432)
	v.SetDefault("archive.postgres.user", "postgres")
	v.SetDefault("archive.postgres.dbname", "droidpilot")
	v.SetDefault("archive.postgres.sslmode", "disable")

	// -- Runner --
	v.SetDefault("runner.concurrency", 2)
}

// NewDefaultConfig builds a Config carrying only defaults. Used by tests and
// as the base when no config file exists.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper unmarshals and validates the assembled viper state.
// Secrets are bound to env vars here so they never need to live in the file.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("llm.models.flash.api_key", "DROIDPILOT_LLM_API_KEY")
	v.BindEnv("llm.models.pro.api_key", "DROIDPILOT_LLM_API_KEY")
	v.BindEnv("ocr.remote.api_key", "DROIDPILOT_OCR_API_KEY")
	v.BindEnv("lease.redis.password", "DROIDPILOT_REDIS_PASSWORD")
	v.BindEnv("archive.postgres.password", "DROIDPILOT_PG_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks for required fields and sane values across all sections.
func (c *Config) Validate() error {
	switch c.Surface.Kind {
	case SurfaceAndroid, SurfaceWeb:
	default:
		return fmt.Errorf("surface.kind must be one of %q or %q, got %q", SurfaceAndroid, SurfaceWeb, c.Surface.Kind)
	}
	switch c.OCR.Engine {
	case OCRRemote, OCRUITree, OCRAuto:
	default:
		return fmt.Errorf("ocr.engine must be one of remote, uitree, auto; got %q", c.OCR.Engine)
	}
	if c.OCR.Engine == OCRRemote && c.OCR.Remote.Endpoint == "" {
		return fmt.Errorf("ocr.remote.endpoint is required when ocr.engine is remote")
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.QA.Validate(); err != nil {
		return fmt.Errorf("qa configuration invalid: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry configuration invalid: %w", err)
	}
	switch c.Lease.Mode {
	case LeaseNone, LeaseLocal:
	case LeaseRedis:
		if c.Lease.Redis.Addr == "" {
			return fmt.Errorf("lease.redis.addr is required when lease.mode is redis")
		}
		if c.Lease.Redis.TTL <= 0 {
			return fmt.Errorf("lease.redis.ttl must be a positive duration")
		}
	default:
		return fmt.Errorf("lease.mode must be one of none, local, redis; got %q", c.Lease.Mode)
	}
	if c.Archive.Enabled {
		if c.Archive.Postgres.Host == "" || c.Archive.Postgres.DBName == "" {
			return fmt.Errorf("archive.postgres.host and archive.postgres.dbname are required when the archive is enabled")
		}
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	return nil
}

// Validate checks model routing.
func (l *LLMConfig) Validate() error {
	if len(l.Models) == 0 {
		return fmt.Errorf("at least one model must be configured under llm.models")
	}
	for name, m := range l.Models {
		switch m.Provider {
		case ProviderGemini, ProviderAnthropic, ProviderOpenAI:
		default:
			return fmt.Errorf("llm.models.%s.provider %q is not supported", name, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("llm.models.%s.model is required", name)
		}
	}
	if _, ok := l.Models[l.DefaultFastModel]; !ok {
		return fmt.Errorf("llm.default_fast_model %q is not defined under llm.models", l.DefaultFastModel)
	}
	if _, ok := l.Models[l.DefaultPowerfulModel]; !ok {
		return fmt.Errorf("llm.default_powerful_model %q is not defined under llm.models", l.DefaultPowerfulModel)
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute cannot be negative")
	}
	return nil
}

// Validate checks loop bounds.
func (a *AgentConfig) Validate() error {
	if a.StepBudget <= 0 {
		return fmt.Errorf("step_budget must be greater than 0")
	}
	if a.HistoryWindow <= 0 {
		return fmt.Errorf("history_window must be greater than 0")
	}
	return nil
}

// Validate checks episode bounds.
func (q *QAConfig) Validate() error {
	if q.EpisodeBudget <= 0 {
		return fmt.Errorf("episode_budget must be greater than 0")
	}
	if q.StepBudget <= 0 {
		return fmt.Errorf("step_budget must be greater than 0")
	}
	if q.MaxReplans < 0 {
		return fmt.Errorf("max_replans cannot be negative")
	}
	if q.ConfidenceThreshold < 0 || q.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks backoff parameters.
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be greater than 0")
	}
	if r.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be a positive duration")
	}
	if r.MaxDelay < r.BaseDelay {
		return fmt.Errorf("max_delay must be at least base_delay")
	}
	return nil
}
