package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/app"
	"github.com/firefly-engineering/simrun/internal/audit"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/device"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/procwatch"
	"github.com/firefly-engineering/simrun/internal/provision"
)

var gcForce bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect devices and journals left behind by runs",
	Long: `Reconciles the device set with the run journals and removes orphaned
resources.

Without --force, prints what would be cleaned (dry run).
With --force, shuts down and deletes orphaned devices and removes stale
journals.

Detects:
  - Orphaned devices: devices created by simrun whose run process is gone
  - Stale journals: run journals for devices that no longer exist`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcForce, "force", false, "Actually remove orphaned resources (default is dry run)")
	rootCmd.AddCommand(gcCmd)
}

// gcResult tracks what gc found and would/did clean up.
type gcResult struct {
	orphanedDevices []*provision.Device
	staleJournals   []string
}

func (r *gcResult) empty() bool {
	return len(r.orphanedDevices) == 0 && len(r.staleJournals) == 0
}

// ownerPID extracts the creating process from a generated device name
// ("simrun-<pid>-<token>"). It returns 0 for other names.
func ownerPID(name string) int {
	rest, ok := strings.CutPrefix(name, config.DeviceNamePrefix+"-")
	if !ok {
		return 0
	}
	pidStr, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// findOrphans compares the device set with the journals.
func findOrphans(ctx context.Context, svc provision.Service, journal *audit.Journal, alive func(int) bool) (*gcResult, error) {
	devices, err := svc.ListDevices(ctx)
	if err != nil {
		return nil, errors.Provisioning("failed to list devices", err)
	}

	journaled, err := journal.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list journals: %w", err)
	}

	result := &gcResult{}
	existing := make(map[string]bool, len(devices))
	for _, dev := range devices {
		existing[dev.UDID] = true
		if pid := ownerPID(dev.Name); pid != 0 && !alive(pid) {
			result.orphanedDevices = append(result.orphanedDevices, dev)
		}
	}

	for _, udid := range journaled {
		if !existing[udid] {
			result.staleJournals = append(result.staleJournals, udid)
		}
	}

	return result, nil
}

func runGC(cmd *cobra.Command, args []string) error {
	svc, err := service()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	result, err := findOrphans(ctx, svc, app.Default.Journal, procwatch.Alive)
	if err != nil {
		return err
	}

	if result.empty() {
		logInfo("No orphaned resources found")
		return nil
	}

	if !gcForce {
		printGCDryRun(cmd.OutOrStdout(), result)
		return nil
	}

	return executeGC(ctx, svc, result)
}

func printGCDryRun(w io.Writer, result *gcResult) {
	fmt.Fprintln(w, "Dry run (use --force to actually clean up):")
	fmt.Fprintln(w)

	if len(result.orphanedDevices) > 0 {
		fmt.Fprintln(w, "Orphaned devices (run process is gone):")
		for _, dev := range result.orphanedDevices {
			fmt.Fprintf(w, "  %s (%s, %s)\n", dev.Name, dev.UDID, dev.State)
		}
		fmt.Fprintln(w)
	}

	if len(result.staleJournals) > 0 {
		fmt.Fprintln(w, "Stale journals (device no longer exists):")
		for _, udid := range result.staleJournals {
			fmt.Fprintf(w, "  %s\n", udid)
		}
		fmt.Fprintln(w)
	}
}

func executeGC(ctx context.Context, svc provision.Service, result *gcResult) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	m := newManager(svc, cfg)
	journal := app.Default.Journal

	for _, dev := range result.orphanedDevices {
		logInfo("Deleting orphaned device: %s (%s)", dev.Name, dev.UDID)
		if err := removeDevice(ctx, m, dev); err != nil {
			logWarning("Failed to delete device %s: %v", dev.UDID, err)
			continue
		}
		logging.Debug("deleted orphaned device", "device", dev.UDID)
	}

	for _, udid := range result.staleJournals {
		logInfo("Removing stale journal: %s", udid)
		if err := journal.Remove(udid); err != nil {
			logWarning("Failed to remove journal %s: %v", udid, err)
		}
	}

	logSuccess("Garbage collection complete")
	return nil
}

// removeDevice shuts a device down when needed and deletes it.
func removeDevice(ctx context.Context, m *device.Manager, dev *provision.Device) error {
	h, err := m.FindDevice(ctx, dev.UDID)
	if err != nil {
		return err
	}
	if h == nil {
		return nil
	}

	if h.State() != provision.StateShutdown {
		if err := m.Shutdown(ctx, h); err == nil {
			m.WaitForShutdown(ctx, h)
		}
	}
	return m.Delete(ctx, h)
}
