// Package launch starts the application under test on a booted device and
// watches it until it exits.
//
// Both output streams of the application are redirected into one output
// pipe. A watchdog subscribes to the operating system's exit notification
// for the launched pid; when it fires the process is marked finished and
// the termination sentinel is posted to the pipe, so a consumer reading
// the pipe in order sees all real output before the sentinel.
package launch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firefly-engineering/simrun/internal/audit"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/device"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/events"
	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/outputpipe"
	"github.com/firefly-engineering/simrun/internal/procwatch"
	"github.com/firefly-engineering/simrun/internal/provision"
)

// Value used for boolean harness flags in the environment
const flagEnabled = "YES"

// Launcher starts applications through a provisioning service.
type Launcher struct {
	svc     provision.Service
	watcher procwatch.Watcher
	journal *audit.Journal
}

// NewLauncher creates a Launcher. A nil watcher selects WatcherFor(svc).
func NewLauncher(svc provision.Service, watcher procwatch.Watcher, journal *audit.Journal) *Launcher {
	if watcher == nil {
		watcher = WatcherFor(svc)
	}
	return &Launcher{svc: svc, watcher: watcher, journal: journal}
}

// WatcherFor returns the service itself when it can watch its own
// processes, and an OS watcher otherwise.
func WatcherFor(svc provision.Service) procwatch.Watcher {
	if w, ok := svc.(procwatch.Watcher); ok {
		return w
	}
	return procwatch.New()
}

// BuildOptions assembles launch options from the run configuration, the
// test harness variables and the fault injection flags.
func BuildOptions(cfg *config.RunConfiguration, execPath, redirect string) provision.LaunchOptions {
	env := make(map[string]string, len(cfg.Environment)+4)
	for k, v := range cfg.Environment {
		env[k] = v
	}

	if cfg.TestBundle != "" {
		env[provision.EnvInjectBundle] = cfg.TestBundle
		env[provision.EnvInjectBundleInto] = execPath
	}
	if cfg.ForceCrashOnLaunch {
		env[provision.EnvForceCrash] = flagEnabled
	}
	if cfg.ForceHangOnLaunch {
		env[provision.EnvForceHang] = flagEnabled
	}

	args := make([]string, len(cfg.Arguments))
	copy(args, cfg.Arguments)

	return provision.LaunchOptions{
		Arguments:       args,
		Environment:     env,
		WaitForDebugger: cfg.WaitForDebugger,
		StdoutPath:      redirect,
		StderrPath:      redirect,
	}
}

// Process is a launched application.
type Process struct {
	PID        int
	LaunchedAt time.Time

	channel  *outputpipe.Channel
	finished atomic.Bool
	exited   chan struct{}

	cancel    context.CancelFunc
	watchDone chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Finished reports whether the exit notification has fired.
func (p *Process) Finished() bool {
	return p.finished.Load()
}

// Exited is closed once the process has exited and the sentinel is posted.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// OutputBytes returns the number of output bytes read so far.
func (p *Process) OutputBytes() int64 {
	return p.channel.BytesRead()
}

// Close stops the watchdog and removes the output pipe. It does not
// terminate the application.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.watchDone
		p.closeErr = p.channel.Close()
	})
	return p.closeErr
}

// Launch starts bundleID on the device with output streamed into parser.
func (l *Launcher) Launch(ctx context.Context, h *device.Handle, bundleID, execPath string, cfg *config.RunConfiguration, parser events.Parser) (*Process, error) {
	log := logging.ForDevice(h.UDID, "launch")

	ch, err := outputpipe.Open(h.DataPath)
	if err != nil {
		log.Error("failed to open output pipe", "error", err)
		return nil, errors.LaunchFailed(bundleID, h.UDID, err)
	}

	opts := BuildOptions(cfg, execPath, ch.RelativePath())
	if err := opts.Validate(); err != nil {
		_ = ch.Close()
		log.Error("invalid launch options", "error", err)
		return nil, errors.LaunchFailed(bundleID, h.UDID, err)
	}

	pid, err := l.svc.Launch(ctx, h.UDID, bundleID, opts)
	if err != nil {
		_ = ch.Close()
		log.Error("launch request failed", "bundle_id", bundleID, "error", err)
		return nil, errors.LaunchFailed(bundleID, h.UDID, err)
	}

	if err := ch.AttachReader(parser.Feed); err != nil {
		_ = ch.Close()
		log.Error("failed to attach output reader", "error", err)
		return nil, errors.LaunchFailed(bundleID, h.UDID, err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	p := &Process{
		PID:        pid,
		LaunchedAt: time.Now(),
		channel:    ch,
		exited:     make(chan struct{}),
		cancel:     cancel,
		watchDone:  make(chan struct{}),
	}
	go l.watch(watchCtx, h.UDID, p)

	log.Debug("app launched", "bundle_id", bundleID, "pid", pid, "pipe", ch.RelativePath())
	l.record(audit.EventLaunch, h.UDID, "pid="+strconv.Itoa(pid))
	return p, nil
}

// watch waits for the exit notification, then marks the process finished
// and posts the sentinel.
func (l *Launcher) watch(ctx context.Context, udid string, p *Process) {
	defer close(p.watchDone)
	log := logging.ForDevice(udid, "watchdog")

	if err := l.watcher.WaitExit(ctx, p.PID); err != nil {
		if ctx.Err() == nil {
			log.Warn("exit watch failed", "pid", p.PID, "error", err)
		}
		return
	}

	p.finished.Store(true)
	if err := p.channel.PostSentinel(); err != nil {
		log.Warn("failed to post termination sentinel", "error", err)
	}
	close(p.exited)

	log.Debug("app exited", "pid", p.PID, "ran", time.Since(p.LaunchedAt))
	l.record(audit.EventExit, udid, fmt.Sprintf("pid=%d", p.PID))
}

func (l *Launcher) record(eventType audit.EventType, udid, details string) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Record(eventType, udid, string(eventType), details); err != nil {
		logging.Debug("failed to write journal entry", "device", udid, "error", err)
	}
}
