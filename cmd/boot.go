package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/provision"
)

var bootHeadless bool

var bootCmd = &cobra.Command{
	Use:   "boot <udid>",
	Short: "Boot a simulator device and wait until it is ready",
	Long: `Boots a device and waits for it to report Booted.

Unless --headless is given, the interactive front-end is started for the
device and keeps running after the command returns.`,
	Args: cobra.ExactArgs(1),
	RunE: runBoot,
}

func init() {
	bootCmd.Flags().BoolVar(&bootHeadless, "headless", false, "Boot without the interactive front-end")
	rootCmd.AddCommand(bootCmd)
}

func runBoot(cmd *cobra.Command, args []string) error {
	udid := args[0]

	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = bootHeadless
	}

	svc, err := service()
	if err != nil {
		return err
	}
	m := newManager(svc, cfg)

	ctx := cmd.Context()
	h, err := loadDevice(ctx, m, udid)
	if err != nil {
		return err
	}

	if h.State() == provision.StateBooted {
		logInfo("Device %s is already booted", udid)
		return nil
	}

	logging.Debug("booting device", "device", udid, "headless", cfg.Headless)
	if err := m.Boot(ctx, h); err != nil {
		return err
	}

	logSuccess("Device %s booted", udid)
	return nil
}
