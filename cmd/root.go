// Package cmd wires the droidpilot CLI: configuration loading, logger setup
// and the run/qa/replay/episodes subcommands.
package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zfault/droidpilot/internal/config"
	"github.com/zfault/droidpilot/internal/observability"
)

// contextKey keys values stored in the command context.
type contextKey string

const configKey contextKey = "config"

// NewRootCommand builds a pristine root command. Each invocation gets its own
// flag and config state, so commands never leak settings into each other.
func NewRootCommand() *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:     "droidpilot",
		Short:   "droidpilot is an LLM-driven GUI automation agent.",
		Version: Version,
		Long: `droidpilot captures the screen of an Android device or a Chrome tab, asks a
language model for the next input action and executes it, repeating until the
goal is reached or the step budget runs out. The qa subcommand layers planner
and verifier agents on top for scripted app testing.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}
			if verbose {
				v.Set("logger.level", "debug")
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// A basic logger still lets the failure reach the console.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting droidpilot", zap.String("version", Version))

			// Subcommands read the validated config back out of the context.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml, then ~/.droidpilot/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newQACmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newEpisodesCmd(newArchiveOpener()))

	return rootCmd
}

// Execute builds the root command and runs it under the given context. Error
// printing is left to cobra; callers translate the error into an exit code.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// initializeConfig layers the config file and DROIDPILOT_* env vars onto the
// defaults already registered in v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".droidpilot"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DROIDPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars carry the run.
	}
	return nil
}

// getConfigFromContext retrieves the config stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in command context")
	}
	return cfg, nil
}
