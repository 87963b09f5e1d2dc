package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ecordell/optgen/helpers"
	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	v1 "github.com/kubev2v/inventory-collector/api/v1"
	"github.com/kubev2v/inventory-collector/internal/config"
	"github.com/kubev2v/inventory-collector/internal/handlers"
	"github.com/kubev2v/inventory-collector/internal/server"
)

func NewRunCommand(cfg *config.Configuration) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the collection server",
		Example: `  # Run with an in-memory database
  collector run

  # Run with persistent storage on a custom port
  collector run --data-folder /var/lib/collector --server-http-port 9090

  # Run from a configuration file, overriding the worker count
  collector run --config /etc/collector/config.toml --num-workers 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfiguration(cfg); err != nil {
				return err
			}

			zap.S().Infow("using configuration",
				"server", helpers.Flatten(cfg.Server.DebugMap()),
				"collection", helpers.Flatten(cfg.Collection.DebugMap()),
				"storage", helpers.Flatten(cfg.Storage.DebugMap()),
			)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
			defer cancel()
			wg := sync.WaitGroup{}
			wg.Add(1)

			a, err := newApp(ctx, cfg, true)
			if err != nil {
				zap.S().Errorw("failed to initialize", "error", err)
				return err
			}
			defer a.Close()
			zap.S().Info("collection engine initialized successfully")

			h := handlers.New(a.collections)

			srv, err := server.NewServer(cfg, func(router *gin.RouterGroup) {
				v1.RegisterHandlers(router, h)
			})
			if err != nil {
				zap.S().Errorw("failed to create http server", "error", err)
				return err
			}

			go func() {
				defer func() {
					wg.Done()
					cancel()
				}()
				zap.S().Infof("Starting HTTP server on port %d", cfg.Server.HTTPPort)

				if err := srv.Start(ctx); err != nil {
					if !errors.Is(err, http.ErrServerClosed) {
						zap.S().Errorw("failed to start http server", "error", err)
					}
				}
			}()

			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				srv.Stop(stopCtx)
			}()

			<-ctx.Done()
			wg.Wait()

			zap.S().Info("server shutdown")

			return nil
		},
	}

	registerFlags(runCmd, cfg)

	return runCmd
}

func registerFlags(cmd *cobra.Command, config *config.Configuration) {
	nfs := cobrautil.NewNamedFlagSets(cmd)

	serverFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Server"))
	registerServerFlags(serverFlagSet, config)

	collectionFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Collection"))
	registerCollectionFlags(collectionFlagSet, config)

	storageFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Storage"))
	registerStorageFlags(storageFlagSet, config)

	nfs.AddFlagSets(cmd)
}

func validateConfiguration(cfg *config.Configuration) error {
	switch config.ServerModeType(cfg.Server.ServerMode) {
	case config.ServerModeProd, config.ServerModeDev:
	default:
		return fmt.Errorf("invalid server mode %q: must be %q or %q", cfg.Server.ServerMode, config.ServerModeProd, config.ServerModeDev)
	}

	if cfg.Server.HTTPPort < 1 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http-port %d: must be between 1 and 65535", cfg.Server.HTTPPort)
	}

	return validateCollection(cfg.Collection)
}

func validateCollection(cfg config.Collection) error {
	if cfg.NumWorkers < 1 {
		return fmt.Errorf("invalid num-workers %d: must be at least 1", cfg.NumWorkers)
	}

	if cfg.DefaultLimit < 1 {
		return fmt.Errorf("invalid default-limit %d: must be at least 1", cfg.DefaultLimit)
	}

	if cfg.UnitTimeout <= 0 {
		return errors.New("unit-timeout must be positive")
	}

	if cfg.SyncHardTimeout < cfg.SyncSoftTimeout {
		return fmt.Errorf("sync-hard-timeout %s must not be shorter than sync-soft-timeout %s", cfg.SyncHardTimeout, cfg.SyncSoftTimeout)
	}

	return nil
}

func registerServerFlags(flagSet *pflag.FlagSet, config *config.Configuration) {
	flagSet.IntVar(&config.Server.HTTPPort, "server-http-port", config.Server.HTTPPort, "Port on which the HTTP server is listening")
	flagSet.StringVar(&config.Server.ServerMode, "server-mode", config.Server.ServerMode, "Server mode: either prod or dev")
}

func registerCollectionFlags(flagSet *pflag.FlagSet, config *config.Configuration) {
	flagSet.IntVar(&config.Collection.NumWorkers, "num-workers", config.Collection.NumWorkers, "Number of tasks run at the same time")
	flagSet.IntVar(&config.Collection.DefaultLimit, "default-limit", config.Collection.DefaultLimit, "Units collected concurrently when a task has no limit")
	flagSet.DurationVar(&config.Collection.UnitTimeout, "unit-timeout", config.Collection.UnitTimeout, "Timeout of a single unit collection")
	flagSet.DurationVar(&config.Collection.SyncSoftTimeout, "sync-soft-timeout", config.Collection.SyncSoftTimeout, "Duration after which a platform sync logs a warning")
	flagSet.DurationVar(&config.Collection.SyncHardTimeout, "sync-hard-timeout", config.Collection.SyncHardTimeout, "Duration after which a platform sync is aborted")
	flagSet.StringVar(&config.Collection.AnsibleBinary, "ansible-binary", config.Collection.AnsibleBinary, "Path of the ansible executable")
	flagSet.DurationVar(&config.Collection.AnsibleTimeout, "ansible-timeout", config.Collection.AnsibleTimeout, "Timeout of an ansible run")
	flagSet.BoolVar(&config.Collection.SSHPrecheck, "ssh-precheck", config.Collection.SSHPrecheck, "Check SSH connectivity before running ansible")
	flagSet.DurationVar(&config.Collection.PrecheckTimeout, "precheck-timeout", config.Collection.PrecheckTimeout, "Timeout of the SSH precheck")
	flagSet.DurationVar(&config.Collection.VSphereTimeout, "vsphere-timeout", config.Collection.VSphereTimeout, "Timeout of vSphere API calls")
	flagSet.StringVar(&config.Collection.WorkDir, "work-dir", config.Collection.WorkDir, "Folder for temporary inventories")
}

func registerStorageFlags(flagSet *pflag.FlagSet, config *config.Configuration) {
	flagSet.StringVar(&config.Storage.DataFolder, "data-folder", config.Storage.DataFolder, "Path to the persistent data folder")
	flagSet.StringVar(&config.Storage.KeyFile, "key-file", config.Storage.KeyFile, "Path to the age identity sealing stored passwords")
}
