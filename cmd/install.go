package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/app"
	"github.com/firefly-engineering/simrun/internal/device"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/provision"
)

var installBundleID string

var installCmd = &cobra.Command{
	Use:   "install <udid> <app-bundle>",
	Short: "Install an app bundle on a booted device",
	Args:  cobra.ExactArgs(2),
	RunE:  runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <udid> <bundle-id>",
	Short: "Remove an app from a booted device",
	Args:  cobra.ExactArgs(2),
	RunE:  runUninstall,
}

func init() {
	installCmd.Flags().StringVar(&installBundleID, "bundle-id", "", "Bundle identifier recorded in the run journal")
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}

// bootedDevice loads a device and requires it to be booted.
func bootedDevice(ctx context.Context, svc provision.Service, udid string) (*device.Handle, error) {
	cfg, err := loadRunConfig()
	if err != nil {
		return nil, err
	}
	h, err := loadDevice(ctx, newManager(svc, cfg), udid)
	if err != nil {
		return nil, err
	}
	if h.State() != provision.StateBooted {
		return nil, errors.DeviceNotBooted(udid, string(h.State()))
	}
	return h, nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	udid, bundle := args[0], args[1]

	svc, err := service()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	h, err := bootedDevice(ctx, svc, udid)
	if err != nil {
		return err
	}

	if err := device.NewInstaller(svc, app.Default.Journal).Install(ctx, bundle, installBundleID, h); err != nil {
		return err
	}

	logSuccess("Installed %s on %s", bundle, udid)
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	udid, bundleID := args[0], args[1]

	svc, err := service()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	h, err := bootedDevice(ctx, svc, udid)
	if err != nil {
		return err
	}

	if err := device.NewInstaller(svc, app.Default.Journal).Uninstall(ctx, bundleID, h); err != nil {
		return err
	}

	logSuccess("Uninstalled %s from %s", bundleID, udid)
	return nil
}
