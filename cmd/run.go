package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/simrun/internal/app"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/events"
	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/monitor"
	"github.com/firefly-engineering/simrun/internal/runner"
	"github.com/firefly-engineering/simrun/internal/tui"
)

var (
	runApp            string
	runBundleID       string
	runExecutable     string
	runTestBundle     string
	runDeviceType     string
	runRuntime        string
	runDeviceName     string
	runDevice         string
	runHeadless       bool
	runDeveloperDir   string
	runArgs           string
	runEnv            []string
	runWaitDebugger   bool
	runCrash          bool
	runHang           bool
	runTimeout        time.Duration
	runKeepDevice     bool
	runUninstallAfter bool
	runProgress       bool
	runShowOutput     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the app's tests on a simulator device",
	Long: `Runs the application under test once and reports the outcome.

Settings come from --config and are overridden by flags. Without --device a
fresh device is created, booted and deleted afterwards; with --device the
run attaches to that already booted device and leaves it running.

Exit codes:
  0   all tests passed
  12  some tests failed
  13  the outcome was ambiguous (crash, hang, timeout); a retry may pass
  2-11  the run aborted before the app was running`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runApp, "app", "", "Path to the .app bundle")
	f.StringVar(&runBundleID, "bundle-id", "", "Bundle identifier of the app")
	f.StringVar(&runExecutable, "executable", "", "Path of the app binary (defaults to the bundle's main binary)")
	f.StringVar(&runTestBundle, "test-bundle", "", "Test bundle to inject into the app")
	f.StringVar(&runDeviceType, "device-type", "", "Device type identifier for a new device")
	f.StringVar(&runRuntime, "runtime", "", "Runtime identifier for a new device")
	f.StringVar(&runDeviceName, "device-name", "", "Name for a new device (generated when empty)")
	f.StringVar(&runDevice, "device", "", "UDID of a booted device to reuse")
	f.BoolVar(&runHeadless, "headless", false, "Run without the interactive front-end")
	f.StringVar(&runDeveloperDir, "developer-dir", "", "Developer directory of the toolchain")
	f.StringVar(&runArgs, "args", "", "Launch arguments, split like a shell command line")
	f.StringArrayVarP(&runEnv, "env", "e", nil, "Environment variable for the app (KEY=VALUE, repeatable)")
	f.BoolVar(&runWaitDebugger, "wait-for-debugger", false, "Suspend the app at launch until a debugger attaches")
	f.BoolVar(&runCrash, "crash-on-launch", false, "Ask the app to crash right after launch")
	f.BoolVar(&runHang, "hang-on-launch", false, "Ask the app to hang right after launch")
	f.DurationVar(&runTimeout, "timeout", config.DefaultRunTimeout, "Give up on the app after this long")
	f.BoolVar(&runKeepDevice, "keep-device", false, "Leave a created device in place after the run")
	f.BoolVar(&runUninstallAfter, "uninstall", false, "Uninstall the app from a reused device after the run")
	f.BoolVar(&runProgress, "progress", false, "Show live progress")
	f.BoolVar(&runShowOutput, "show-output", false, "Copy the app's output to stderr")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides cfg with every flag set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.RunConfiguration) error {
	changed := cmd.Flags().Changed

	if changed("app") {
		cfg.AppBundle = runApp
	}
	if changed("bundle-id") {
		cfg.BundleID = runBundleID
	}
	if changed("executable") {
		cfg.Executable = runExecutable
	}
	if changed("test-bundle") {
		cfg.TestBundle = runTestBundle
	}
	if changed("device-type") {
		cfg.DeviceType = runDeviceType
	}
	if changed("runtime") {
		cfg.Runtime = runRuntime
	}
	if changed("device-name") {
		cfg.DeviceName = runDeviceName
	}
	if changed("device") {
		cfg.DeviceUDID = runDevice
	}
	if changed("headless") {
		cfg.Headless = runHeadless
	}
	if changed("developer-dir") {
		cfg.DeveloperDir = runDeveloperDir
	}
	if changed("args") {
		words, err := shellquote.Split(runArgs)
		if err != nil {
			return errors.ConfigError("failed to parse --args", err)
		}
		cfg.Arguments = words
	}
	if changed("env") {
		if cfg.Environment == nil {
			cfg.Environment = map[string]string{}
		}
		for _, kv := range runEnv {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return errors.ConfigError(fmt.Sprintf("invalid --env %q: expected KEY=VALUE", kv), nil)
			}
			cfg.Environment[key] = value
		}
	}
	if changed("wait-for-debugger") {
		cfg.WaitForDebugger = runWaitDebugger
	}
	if changed("crash-on-launch") {
		cfg.ForceCrashOnLaunch = runCrash
	}
	if changed("hang-on-launch") {
		cfg.ForceHangOnLaunch = runHang
	}
	if changed("timeout") {
		cfg.RunTimeout = config.Duration{Duration: runTimeout}
	}
	if changed("keep-device") {
		cfg.KeepDevice = runKeepDevice
	}
	if changed("uninstall") {
		cfg.UninstallAfterRun = runUninstallAfter
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	svc, err := service()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var monOpts []monitor.Option
	if runShowOutput {
		monOpts = append(monOpts, monitor.WithOutput(cmd.ErrOrStderr()))
	}

	newRunner := func(extra ...runner.Option) *runner.Runner {
		opts := append([]runner.Option{
			runner.WithExecutor(app.Default.Executor),
			runner.WithWatcher(app.Default.Watcher),
			runner.WithJournal(app.Default.Journal),
			runner.WithMonitor(monitor.New(monOpts...)),
			runner.WithDeviceOptions(deviceOptions...),
		}, extra...)
		return runner.New(svc, cfg, opts...)
	}

	logging.Debug("starting run", "app", cfg.AppBundle, "bundle_id", cfg.BundleID, "device", cfg.DeviceUDID)

	var res *runner.Result
	if runProgress {
		res, err = tui.RunProgress(ctx, cfg.BundleID, cmd.ErrOrStderr(), func(ctx context.Context, observe func(runner.State)) (*runner.Result, error) {
			return newRunner(runner.WithStateObserver(observe)).Run(ctx)
		})
	} else {
		res, err = newRunner().Run(ctx)
	}

	if res != nil {
		printReport(cmd.OutOrStdout(), res)
	}
	if err != nil {
		return err
	}
	return outcomeError(res)
}

// outcomeError maps a finished run to the command's exit status.
func outcomeError(res *runner.Result) error {
	switch res.Outcome {
	case runner.OutcomePassed:
		return nil
	case runner.OutcomeFailed:
		return errors.TestsFailed(string(res.Status))
	default:
		return errors.NeedsRetry(string(res.Status))
	}
}

func printReport(w io.Writer, res *runner.Result) {
	switch res.Outcome {
	case runner.OutcomePassed:
		logSuccess("Run %s (%s)", res.Outcome, res.Status)
	case runner.OutcomeAborted:
		logError("Run %s", res.Outcome)
	default:
		logWarning("Run %s (%s)", res.Outcome, res.Status)
	}

	if res.DeviceUDID != "" {
		fmt.Fprintf(w, "  Device:   %s\n", res.DeviceUDID)
	}
	if res.PID != 0 {
		fmt.Fprintf(w, "  PID:      %d\n", res.PID)
	}
	if s := res.Summary; s != nil {
		fmt.Fprintf(w, "  Tests:    %d passed, %d failed, %d skipped\n", s.Passed, s.Failed, s.Skipped)
		for _, t := range s.Tests {
			if t.Result == events.ResultFailure {
				fmt.Fprintf(w, "    ✗ %s\n", testName(t))
			}
		}
	}
	if res.OutputBytes > 0 {
		fmt.Fprintf(w, "  Output:   %s\n", humanize.Bytes(uint64(res.OutputBytes)))
	}
	fmt.Fprintf(w, "  Duration: %s\n", res.Duration.Round(time.Millisecond))
	if res.Retry {
		fmt.Fprintln(w, "  A retry may pass.")
	}
}

func testName(t monitor.TestResult) string {
	if t.Suite == "" {
		return t.Name
	}
	return t.Suite + "/" + t.Name
}
