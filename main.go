package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/cmd"
	"github.com/kubev2v/inventory-collector/internal/config"
	"github.com/kubev2v/inventory-collector/pkg/logger"
)

func main() {
	// default configuration
	cfg := config.NewConfigurationWithOptionsAndDefaults(
		config.WithLogFormat("console"),
		config.WithLogLevel("info"),
	)

	var undo func()
	var log *zap.Logger

	rootCmd := &cobra.Command{
		Use:           "collector",
		Short:         "Host inventory collection engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(cmd, cfg); err != nil {
				return err
			}
			if err := logger.Validate(cfg.LogFormat, cfg.LogLevel); err != nil {
				return err
			}

			l, err := logger.Init(cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			log = l
			undo = zap.ReplaceGlobals(l)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
			if undo != nil {
				undo()
			}
		},
	}
	registerGlobalFlags(rootCmd, cfg)

	rootCmd.AddCommand(
		cmd.NewRunCommand(cfg),
		cmd.NewCollectCommand(cfg),
		cmd.NewSyncCommand(cfg),
		cmd.NewImportCommand(cfg),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// loadConfigFile overlays the config file on the defaults. Flags set on the
// command line win over the file.
func loadConfigFile(cmd *cobra.Command, cfg *config.Configuration) error {
	if cfg.ConfigFile == "" {
		return nil
	}

	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		// slice flags are never backed by the config file
		if f.Name == "config" || strings.HasSuffix(f.Value.Type(), "Slice") {
			return
		}
		changed[f.Name] = f.Value.String()
	})

	path := cfg.ConfigFile
	if err := config.LoadFile(path, cfg); err != nil {
		return err
	}

	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("re-applying flag %s: %w", name, err)
		}
	}
	return nil
}

func registerGlobalFlags(cmd *cobra.Command, config *config.Configuration) {
	cmd.PersistentFlags().StringVar(&config.LogFormat, "log-format", config.LogFormat, "format of the logs: console or json")
	cmd.PersistentFlags().StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	cmd.PersistentFlags().StringVar(&config.ConfigFile, "config", config.ConfigFile, "path to a TOML configuration file")
}
