package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"

	"github.com/kubev2v/inventory-collector/internal/config"
	"github.com/kubev2v/inventory-collector/internal/services"
)

func NewImportCommand(cfg *config.Configuration) *cobra.Command {
	var file string

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import platforms, units and credentials from a YAML inventory",
		Example: `  # Import the scanner output
  collector import --data-folder /var/lib/collector --file inventory.yaml

  # Read the inventory from stdin
  scanner | collector import --data-folder /var/lib/collector --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}

			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("opening %s: %w", file, err)
				}
				defer f.Close()
				r = f
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			report, importErr := services.NewImporter(a.store, a.sealer).Import(ctx, r)
			if report != nil {
				out := cmd.OutOrStdout()
				_, _ = bold.Fprintln(out, "Import summary")
				fmt.Fprintf(out, "  platforms: %d created, %d updated\n", report.PlatformsCreated, report.PlatformsUpdated)
				fmt.Fprintf(out, "  units:     %d created, %d updated\n", report.UnitsCreated, report.UnitsUpdated)
			}
			return importErr
		},
	}

	nfs := cobrautil.NewNamedFlagSets(importCmd)

	importFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Import"))
	importFlagSet.StringVar(&file, "file", "", "YAML inventory to import, - for stdin")

	storageFlagSet := nfs.FlagSet(color.New(color.FgBlue, color.Bold).Sprint("Storage"))
	registerStorageFlags(storageFlagSet, cfg)

	nfs.AddFlagSets(importCmd)

	return importCmd
}
