package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/internal/config"
	"github.com/kubev2v/inventory-collector/internal/services"
)

func NewSyncCommand(cfg *config.Configuration) *cobra.Command {
	var (
		platformID int64
		unitIDs    []int64
		limit      int
	)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize hypervisors and VMs from a virtualization platform",
		Example: `  # Sync the hypervisors of platform 1 and match units 4 and 5 against its VMs
  collector sync --data-folder /var/lib/collector --platform-id 1 --unit-id 4,5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if platformID <= 0 {
				return errors.New("--platform-id is required")
			}
			if err := validateCollection(cfg.Collection); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			taskID, err := a.collections.EnqueuePlatformSync(ctx, platformID, unitIDs, limitFlag(cmd, limit))
			if errors.Is(err, services.ErrSyncInProgress) {
				return fmt.Errorf("platform %d is already syncing in task %s", platformID, taskID)
			}
			if err != nil {
				return err
			}
			zap.S().Infow("platform sync task created", "task_id", taskID, "platform_id", platformID)

			runErr := a.collections.RunTask(ctx, taskID, nil)
			if err := printTask(context.WithoutCancel(ctx), cmd.OutOrStdout(), a.collections, taskID); err != nil {
				return err
			}
			return runErr
		},
	}

	nfs := cobrautil.NewNamedFlagSets(syncCmd)

	taskFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Task"))
	taskFlagSet.Int64Var(&platformID, "platform-id", 0, "Identifier of the platform to sync")
	taskFlagSet.Int64SliceVar(&unitIDs, "unit-id", nil, "Units to match against the platform VMs")
	taskFlagSet.IntVar(&limit, "limit", 0, "Units matched concurrently")

	collectionFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Collection"))
	registerCollectionFlags(collectionFlagSet, cfg)

	storageFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Storage"))
	registerStorageFlags(storageFlagSet, cfg)

	nfs.AddFlagSets(syncCmd)

	return syncCmd
}
