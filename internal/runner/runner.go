// Package runner sequences one test run on one device:
// acquire -> boot -> install -> launch -> monitor -> report -> teardown.
//
// Each stage is an awaited call; a failure before the application is
// running aborts the run with an error, while an ambiguous in-test outcome
// is reported as NeedsRetry. A Runner is single-use.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/firefly-engineering/simrun/internal/audit"
	"github.com/firefly-engineering/simrun/internal/completion"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/device"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/events"
	"github.com/firefly-engineering/simrun/internal/launch"
	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/monitor"
	"github.com/firefly-engineering/simrun/internal/procwatch"
	"github.com/firefly-engineering/simrun/internal/provision"
	"github.com/firefly-engineering/simrun/internal/system"
)

// Result describes a finished or aborted run.
type Result struct {
	Outcome     Outcome
	Status      monitor.ExitStatus
	Retry       bool
	DeviceUDID  string
	PID         int
	OutputBytes int64
	Duration    time.Duration

	// Summary is set when the monitor can report one
	Summary *monitor.Summary
}

// summarizer is implemented by monitors that keep per-test results
type summarizer interface {
	Summary() monitor.Summary
}

// Runner drives one run.
type Runner struct {
	svc     provision.Service
	cfg     *config.RunConfiguration
	exec    system.CommandExecutor
	watcher procwatch.Watcher
	journal *audit.Journal
	parser  events.Parser
	monitor monitor.ExecutionMonitor

	deviceOpts []device.Option
	observers  []func(State)

	mu    sync.Mutex
	state State
	used  bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor sets the executor for front-end control.
func WithExecutor(exec system.CommandExecutor) Option {
	return func(r *Runner) {
		r.exec = exec
	}
}

// WithWatcher sets the process exit watcher.
func WithWatcher(w procwatch.Watcher) Option {
	return func(r *Runner) {
		r.watcher = w
	}
}

// WithJournal records lifecycle events in journal.
func WithJournal(journal *audit.Journal) Option {
	return func(r *Runner) {
		r.journal = journal
	}
}

// WithParser replaces the default line parser.
func WithParser(p events.Parser) Option {
	return func(r *Runner) {
		r.parser = p
	}
}

// WithMonitor replaces the default tracker.
func WithMonitor(m monitor.ExecutionMonitor) Option {
	return func(r *Runner) {
		r.monitor = m
	}
}

// WithDeviceOptions passes options to the device manager.
func WithDeviceOptions(opts ...device.Option) Option {
	return func(r *Runner) {
		r.deviceOpts = append(r.deviceOpts, opts...)
	}
}

// WithStateObserver calls fn on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, fn)
	}
}

// New creates a Runner for one run of cfg.
func New(svc provision.Service, cfg *config.RunConfiguration, opts ...Option) *Runner {
	r := &Runner{
		svc:   svc,
		cfg:   cfg,
		exec:  system.DefaultExecutor(),
		state: StateNotStarted,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.monitor == nil {
		r.monitor = monitor.New()
	}
	if r.parser == nil {
		r.parser = events.NewLineParser(nil)
	}
	return r
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	from := r.state
	if !CanTransition(from, s) {
		r.mu.Unlock()
		logging.Warn("unexpected run state transition", "from", from, "to", s)
		return
	}
	r.state = s
	observers := r.observers
	r.mu.Unlock()

	logging.Debug("run state", "from", from, "to", s)
	for _, fn := range observers {
		fn(s)
	}
}

// run holds the resources of one run
type run struct {
	devices   *device.Manager
	installer *device.Installer
	handle    *device.Handle
	process   *launch.Process
	installed bool
	released  func()
	start     time.Time
}

// Run executes the run. The returned Result is non-nil even when the run
// aborts; the error is set only for aborted runs.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	if r.used {
		r.mu.Unlock()
		return nil, errors.RunnerUsed()
	}
	r.used = true
	r.mu.Unlock()

	rn := &run{start: time.Now()}
	res := &Result{Outcome: OutcomeAborted, Status: monitor.StatusUnknown}

	if err := r.cfg.Validate(); err != nil {
		r.setState(StateAborted)
		return res, errors.ConfigError("invalid run configuration", err)
	}

	opts := append([]device.Option{device.WithExecutor(r.exec), device.WithJournal(r.journal)}, r.deviceOpts...)
	rn.devices = device.NewManager(r.svc, r.cfg, opts...)
	rn.installer = device.NewInstaller(r.svc, r.journal)

	defer func() {
		r.teardown(context.WithoutCancel(ctx), rn)
		if rn.handle != nil {
			res.DeviceUDID = rn.handle.UDID
		}
		res.Duration = time.Since(rn.start)
	}()

	if err := r.acquire(ctx, rn); err != nil {
		return res, r.abort(rn, err)
	}

	r.setState(StateInstalling)
	if err := rn.installer.Install(ctx, r.cfg.AppBundle, r.cfg.BundleID, rn.handle); err != nil {
		return res, r.abort(rn, err)
	}
	rn.installed = true

	r.setState(StateLaunching)
	r.monitor.SetTarget(rn.handle.UDID, r.cfg.BundleID)
	if d, ok := r.monitor.(events.Delegate); ok {
		r.parser.SetDelegate(d)
	}

	launcher := launch.NewLauncher(r.svc, r.watcher, r.journal)
	proc, err := launcher.Launch(ctx, rn.handle, r.cfg.BundleID, r.cfg.ExecutablePath(), r.cfg, r.parser)
	if err != nil {
		return res, r.abort(rn, err)
	}
	rn.process = proc
	res.PID = proc.PID
	r.monitor.SetProcessID(proc.PID)

	r.setState(StateRunning)
	eval := completion.New(r.monitor, proc,
		completion.WithPollInterval(r.cfg.PollInterval.Duration),
		completion.WithTimeout(r.cfg.RunTimeout.Duration),
	)
	status, err := eval.Wait(ctx)
	res.OutputBytes = proc.OutputBytes()
	if err != nil {
		return res, r.abort(rn, errors.Wrap(errors.ExitGeneralError, "run interrupted", err))
	}

	res.Status = status
	res.Retry = eval.ShouldRetry()
	switch {
	case status == monitor.StatusAllTestsPassed:
		res.Outcome = OutcomePassed
	case status == monitor.StatusSomeTestsFailed:
		res.Outcome = OutcomeFailed
	default:
		res.Outcome = OutcomeNeedsRetry
	}
	if s, ok := r.monitor.(summarizer); ok {
		summary := s.Summary()
		res.Summary = &summary
	}

	r.record(audit.EventFinish, rn.handle.UDID, string(StateRunning), string(status))
	logging.ForDevice(rn.handle.UDID, "finish").Info("run finished", "status", status, "outcome", res.Outcome, "retry", res.Retry)
	r.setState(outcomeState(res.Outcome))
	return res, nil
}

// acquire creates or attaches to the device and boots it when needed
func (r *Runner) acquire(ctx context.Context, rn *run) error {
	r.setState(StateDeviceAcquiring)

	if r.cfg.ReusesDevice() {
		h, err := rn.devices.FindDevice(ctx, r.cfg.DeviceUDID)
		if err != nil {
			return err
		}
		if h == nil {
			return errors.DeviceNotFound(r.cfg.DeviceUDID)
		}
		if err := r.claim(rn, h); err != nil {
			return err
		}
		if err := rn.devices.AttachToRunningDevice(ctx, h); err != nil {
			return err
		}
		r.setState(StateBooted)
		return nil
	}

	h, err := rn.devices.CreateDevice(ctx, r.cfg.DeviceName)
	if err != nil {
		return err
	}
	if err := r.claim(rn, h); err != nil {
		return err
	}

	r.setState(StateBooting)
	if err := rn.devices.Boot(ctx, h); err != nil {
		return err
	}
	r.setState(StateBooted)
	return nil
}

func (r *Runner) claim(rn *run, h *device.Handle) error {
	rn.handle = h
	release, err := claimDevice(h.UDID)
	if err != nil {
		return err
	}
	rn.released = release
	return nil
}

// abort emits the stage diagnostic and moves to Aborted
func (r *Runner) abort(rn *run, err error) error {
	stage := r.State()
	udid := ""
	if rn.handle != nil {
		udid = rn.handle.UDID
		r.record(audit.EventError, udid, string(stage), err.Error())
	}
	logging.ForDevice(udid, string(stage)).Error("run aborted", "error", err)
	r.setState(StateAborted)
	return err
}

// teardown releases everything the run acquired. Errors are logged and
// never stop later steps.
func (r *Runner) teardown(ctx context.Context, rn *run) {
	if rn.process != nil {
		if err := rn.process.Close(); err != nil {
			logging.Debug("failed to close output pipe", "error", err)
		}
	}

	h := rn.handle
	if h == nil {
		return
	}
	if rn.released != nil {
		defer rn.released()
	}
	log := logging.ForDevice(h.UDID, "teardown")

	if r.cfg.KeepDevice {
		log.Info("keeping device")
		return
	}

	if !h.Created {
		if r.cfg.UninstallAfterRun && rn.installed {
			_ = rn.installer.Uninstall(ctx, r.cfg.BundleID, h)
		}
		return
	}

	rn.devices.TerminateFrontEnd(h)

	if err := rn.devices.Shutdown(ctx, h); err != nil {
		log.Warn("shutdown failed, deleting anyway", "error", err)
	} else if !rn.devices.WaitForShutdown(ctx, h) {
		log.Warn("device still running, deleting anyway")
	}

	if err := rn.devices.Delete(ctx, h); err != nil {
		log.Error("device left behind", "error", err)
		return
	}
	log.Debug("device deleted")
}

func (r *Runner) record(eventType audit.EventType, udid, stage, details string) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Record(eventType, udid, stage, details); err != nil {
		logging.Debug("failed to write journal entry", "device", udid, "error", err)
	}
}

// claims tracks devices held by runners in this process
var claims sync.Map

// claimDevice reserves udid for one runner.
func claimDevice(udid string) (func(), error) {
	if _, loaded := claims.LoadOrStore(udid, struct{}{}); loaded {
		return nil, errors.AlreadyAcquired(udid)
	}
	return func() { claims.Delete(udid) }, nil
}

// String renders the result for logs.
func (res *Result) String() string {
	return fmt.Sprintf("%s (%s) on %s", res.Outcome, res.Status, res.DeviceUDID)
}
