package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/errors"
)

var (
	createDeviceType string
	createRuntime    string
	createBoot       bool
	createHeadless   bool
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a simulator device",
	Long: `Creates a device of the given type and runtime and prints its UDID.

Without a name one is generated. With --boot the device is booted before
the command returns.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createDeviceType, "device-type", "", "Device type identifier (overrides the config)")
	createCmd.Flags().StringVar(&createRuntime, "runtime", "", "Runtime identifier (overrides the config)")
	createCmd.Flags().BoolVar(&createBoot, "boot", false, "Boot the device after creating it")
	createCmd.Flags().BoolVar(&createHeadless, "headless", false, "Boot without the interactive front-end")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	if createDeviceType != "" {
		cfg.DeviceType = createDeviceType
	}
	if createRuntime != "" {
		cfg.Runtime = createRuntime
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = createHeadless
	}
	// The created device is independent of any reuse setting in the config
	cfg.DeviceUDID = ""

	var name string
	if len(args) > 0 {
		name = args[0]
		cfg.DeviceName = name
	}
	if err := cfg.ValidateDevice(); err != nil {
		return errors.ConfigError("invalid device settings", err)
	}

	svc, err := service()
	if err != nil {
		return err
	}
	m := newManager(svc, cfg)

	ctx := cmd.Context()
	h, err := m.CreateDevice(ctx, name)
	if err != nil {
		return err
	}
	logSuccess("Created device %s (%s)", h.Name, h.UDID)

	if createBoot {
		if err := m.Boot(ctx, h); err != nil {
			return err
		}
		logSuccess("Device %s booted", h.UDID)
	}

	fmt.Fprintln(cmd.OutOrStdout(), h.UDID)
	return nil
}
