package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/app"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/health"
)

var statusCmd = &cobra.Command{
	Use:   "status <udid>",
	Short: "Show detailed status of a simulator device",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	udid := args[0]

	svc, err := service()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	dev, err := svc.Device(ctx, udid)
	if err != nil {
		return errors.Provisioning("failed to query device set", err)
	}
	if dev == nil {
		return errors.DeviceNotFound(udid)
	}

	result, err := health.Check(ctx, svc, app.Default.Executor, udid)
	if err != nil {
		return errors.Provisioning("failed to query device set", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Device: %s\n", dev.Name)
	fmt.Fprintf(w, "UDID: %s\n", dev.UDID)
	fmt.Fprintf(w, "Type: %s\n", dev.DeviceType)
	fmt.Fprintf(w, "Runtime: %s\n", dev.Runtime)
	if dev.DataPath != "" {
		fmt.Fprintf(w, "Data: %s\n", dev.DataPath)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Health Checks:")
	fmt.Fprintf(w, "  State: %s\n", result.State)
	fmt.Fprintf(w, "  Booted: %s\n", boolStatus(result.Booted))
	if result.Booted {
		if !result.BootedAt.IsZero() {
			fmt.Fprintf(w, "  Uptime: %s (booted %s)\n", result.Uptime, humanize.Time(result.BootedAt))
		}
		if result.FrontEndPID != 0 {
			fmt.Fprintf(w, "  Front-end: %s (pid %d)\n", boolStatus(true), result.FrontEndPID)
		} else {
			fmt.Fprintf(w, "  Front-end: %s (headless)\n", boolStatus(false))
		}
	}
	fmt.Fprintf(w, "  Summary: %s\n", formatStatus(result.Summary()))

	return nil
}

func boolStatus(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
