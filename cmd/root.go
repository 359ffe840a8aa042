package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "simrun",
	Short: "Run app tests on ephemeral iOS simulator devices",
	Long: `simrun orchestrates one test run on one simulator device:

  acquire -> boot -> install -> launch -> monitor -> report -> teardown

A run either creates a fresh device and deletes it afterwards, or attaches
to a device that is already booted and leaves it running. The remaining
commands manage devices directly.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose, jsonOutput, os.Stderr)
		logging.SetUserOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Run configuration file (.toml, .yaml or .yml)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
	logError   = logging.UserError
)
