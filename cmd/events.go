package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/app"
)

var eventsCmd = &cobra.Command{
	Use:   "events [udid]",
	Short: "Display the run journal for a device",
	Long: `Prints the lifecycle events simrun recorded for a device: creation,
boot, install, launch, exit, finish, shutdown, delete and errors.

Without a UDID the devices that have a journal are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

var eventsJSONL bool

func init() {
	eventsCmd.Flags().BoolVar(&eventsJSONL, "jsonl", false, "Output events as JSON lines")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	journal := app.Default.Journal
	w := cmd.OutOrStdout()

	if len(args) == 0 {
		devices, err := journal.Devices()
		if err != nil {
			return fmt.Errorf("failed to list journals: %w", err)
		}
		if len(devices) == 0 {
			logInfo("No run journals found in %s", paths().JournalDir)
			return nil
		}
		for _, udid := range devices {
			fmt.Fprintln(w, udid)
		}
		return nil
	}

	udid := args[0]
	events, err := journal.Events(udid)
	if err != nil {
		return fmt.Errorf("failed to read run journal: %w", err)
	}

	if len(events) == 0 {
		logInfo("No events found for device %s", udid)
		return nil
	}

	for _, e := range events {
		if eventsJSONL {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Fprintln(w, string(data))
			continue
		}

		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		line := fmt.Sprintf("[%s] %-8s %-10s", ts, e.Type, e.Stage)
		if e.Details != "" {
			line += " " + e.Details
		}
		fmt.Fprintf(w, "%s (%s)\n", line, humanize.Time(e.Timestamp))
	}

	return nil
}
