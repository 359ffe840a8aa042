package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/provision"
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown <udid>",
	Short: "Shut down a simulator device",
	Args:  cobra.ExactArgs(1),
	RunE:  runShutdown,
}

func init() {
	rootCmd.AddCommand(shutdownCmd)
}

func runShutdown(cmd *cobra.Command, args []string) error {
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

	if h.State() == provision.StateShutdown {
		logInfo("Device %s is already shut down", udid)
		return nil
	}

	if err := m.Shutdown(ctx, h); err != nil {
		return err
	}
	if !m.WaitForShutdown(ctx, h) {
		return errors.ShutdownTimeout(udid)
	}

	logSuccess("Device %s shut down", udid)
	return nil
}
