package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/app"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/health"
	"github.com/firefly-engineering/simrun/internal/provision"
	"github.com/firefly-engineering/simrun/internal/tui"
)

var listAll bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List simulator devices",
	Long: `Lists the devices created by simrun. With --all every device in the
device set is shown.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Show all devices, not only those created by simrun")
	rootCmd.AddCommand(listCmd)
}

// isSimrunDevice reports whether a device name was generated by simrun.
func isSimrunDevice(name string) bool {
	return strings.HasPrefix(name, config.DeviceNamePrefix+"-")
}

// collectEntries lists devices with their health summary.
func collectEntries(ctx context.Context, svc provision.Service, all bool) ([]tui.DeviceEntry, error) {
	devices, err := svc.ListDevices(ctx)
	if err != nil {
		return nil, errors.Provisioning("failed to list devices", err)
	}

	var entries []tui.DeviceEntry
	for _, dev := range devices {
		if !all && !isSimrunDevice(dev.Name) {
			continue
		}
		entry := tui.DeviceEntry{Device: dev, Status: health.StatusShutdown}
		if dev.IsBooted() {
			entry.Status = health.GetSummary(ctx, svc, app.Default.Executor, dev.UDID)
			entry.Uptime = health.GetUptime(dev)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func runList(cmd *cobra.Command, args []string) error {
	svc, err := service()
	if err != nil {
		return err
	}

	entries, err := collectEntries(cmd.Context(), svc, listAll)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		logInfo("No devices found. Create one with: simrun create --device-type <type> --runtime <runtime>")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tUDID\tRUNTIME\tSTATE\tUPTIME\tSTATUS")
	fmt.Fprintln(w, "----\t----\t-------\t-----\t------\t------")

	for _, e := range entries {
		uptime := e.Uptime
		if uptime == "" {
			uptime = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Device.Name, e.Device.UDID, e.Device.Runtime, e.Device.State, uptime, formatStatus(e.Status))
	}

	return w.Flush()
}

func formatStatus(status health.Status) string {
	switch status {
	case health.StatusBooted:
		return "✓ booted"
	case health.StatusHeadless:
		return "○ headless"
	case health.StatusShutdown:
		return "● shutdown"
	case health.StatusNotFound:
		return "⚠ not-found"
	default:
		return string(status)
	}
}
