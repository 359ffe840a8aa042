package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/app"
	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/provision"
)

var deletePurge bool

var deleteCmd = &cobra.Command{
	Use:   "delete <udid>",
	Short: "Delete a simulator device",
	Long: `Deletes a device. A booted device is shut down first; deletion is
attempted even when the shutdown does not converge in time.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deletePurge, "purge", false, "Also remove the device's run journal")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	udid := args[0]

	svc, err := service()
	if err != nil {
		return err
	}
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	m := newManager(svc, cfg)

	ctx := cmd.Context()
	h, err := loadDevice(ctx, m, udid)
	if err != nil {
		return err
	}

	if h.State() != provision.StateShutdown {
		if err := m.Shutdown(ctx, h); err != nil {
			logWarning("Shutdown of %s failed, deleting anyway: %v", udid, err)
		} else if !m.WaitForShutdown(ctx, h) {
			logWarning("Device %s did not shut down in time, deleting anyway", udid)
		}
	}

	if err := m.Delete(ctx, h); err != nil {
		return err
	}

	if deletePurge {
		if err := app.Default.Journal.Remove(udid); err != nil {
			logging.Warn("failed to remove journal", "device", udid, "error", err)
		}
	}

	logSuccess("Device %s deleted", udid)
	return nil
}
