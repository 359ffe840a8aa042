// Package tui provides terminal user interface components for simrun.
//
// It uses the Bubble Tea framework for two views.
//
// # Run Progress
//
// RunProgress renders the stages of a run as the runner moves through
// them, with a spinner on the current stage and a styled final line:
//
//	res, err := tui.RunProgress(ctx, "Demo.app", os.Stderr, func(ctx context.Context, observe func(runner.State)) (*runner.Result, error) {
//	    return runner.New(svc, cfg, runner.WithStateObserver(observe)).Run(ctx)
//	})
//
// Pressing ctrl+c cancels the run; the device is still torn down before
// RunProgress returns.
//
// # Device Picker
//
// The picker lists devices grouped by runtime:
//
//	result, err := tui.RunPicker(entries)
//	switch result.Action {
//	case tui.ActionStatus:
//	case tui.ActionShutdown:
//	case tui.ActionDelete:
//	case tui.ActionQuit:
//	}
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - list and spinner components
//   - github.com/charmbracelet/lipgloss - Styling
package tui
