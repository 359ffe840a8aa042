package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/tui"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactive device picker",
	Long: `Opens an interactive TUI for inspecting and cleaning up devices.

Use arrow keys or j/k to navigate, / to filter.

Actions:
  Enter  - Show status of the selected device
  s      - Shut down the selected device
  d      - Delete the selected device
  q/Esc  - Quit`,
	Args: cobra.NoArgs,
	RunE: runPick,
}

var pickAll bool

func init() {
	pickCmd.Flags().BoolVarP(&pickAll, "all", "a", false, "Show all devices, not only those created by simrun")
	rootCmd.AddCommand(pickCmd)
}

func runPick(cmd *cobra.Command, args []string) error {
	svc, err := service()
	if err != nil {
		return err
	}

	logging.Debug("picker mode started")

	entries, err := collectEntries(cmd.Context(), svc, pickAll)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		logInfo("No devices found. Create one with: simrun create --device-type <type> --runtime <runtime>")
		return nil
	}

	result, err := tui.RunPicker(entries)
	if err != nil {
		return fmt.Errorf("picker error: %w", err)
	}

	logging.Debug("picker result", "action", result.Action)

	if result.Device == nil {
		return nil
	}

	udid := []string{result.Device.UDID}
	switch result.Action {
	case tui.ActionStatus:
		return runStatus(cmd, udid)
	case tui.ActionShutdown:
		return runShutdown(cmd, udid)
	case tui.ActionDelete:
		return runDelete(cmd, udid)
	}

	return nil
}
