package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/internal/config"
)

func NewCollectCommand(cfg *config.Configuration) *cobra.Command {
	var (
		unitIDs []int64
		limit   int
	)

	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect facts from a batch of units and wait for the result",
		Example: `  # Collect three units, two at a time
  collector collect --data-folder /var/lib/collector --unit-id 1,2,3 --limit 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(unitIDs) == 0 {
				return errors.New("at least one --unit-id is required")
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

			taskID, err := a.collections.EnqueueCollection(ctx, unitIDs, limitFlag(cmd, limit))
			if err != nil {
				return err
			}
			zap.S().Infow("collection task created", "task_id", taskID, "units", len(unitIDs))

			runErr := a.collections.RunTask(ctx, taskID, nil)
			if err := printTask(context.WithoutCancel(ctx), cmd.OutOrStdout(), a.collections, taskID); err != nil {
				return err
			}
			return runErr
		},
	}

	nfs := cobrautil.NewNamedFlagSets(collectCmd)

	taskFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Task"))
	taskFlagSet.Int64SliceVar(&unitIDs, "unit-id", nil, "Identifiers of the units to collect")
	taskFlagSet.IntVar(&limit, "limit", 0, "Units collected concurrently (defaults to --default-limit)")

	collectionFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Collection"))
	registerCollectionFlags(collectionFlagSet, cfg)

	storageFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Storage"))
	registerStorageFlags(storageFlagSet, cfg)

	nfs.AddFlagSets(collectCmd)

	return collectCmd
}

// limitFlag returns nil when --limit was not given so the default applies.
func limitFlag(cmd *cobra.Command, limit int) *int {
	if !cmd.Flags().Changed("limit") {
		return nil
	}
	return &limit
}
