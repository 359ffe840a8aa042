// Package monitor classifies the structured events of one test run into a
// terminal exit status.
package monitor

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/firefly-engineering/simrun/internal/events"
	"github.com/firefly-engineering/simrun/internal/logging"
)

// ExitStatus is the classification of a finished run.
type ExitStatus string

const (
	StatusAllTestsPassed                ExitStatus = "AllTestsPassed"
	StatusSomeTestsFailed               ExitStatus = "SomeTestsFailed"
	StatusAppCrashed                    ExitStatus = "AppCrashed"
	StatusLaunchedButNeverReportedTests ExitStatus = "LaunchedButNeverReportedTests"
	StatusTimedOut                      ExitStatus = "TimedOut"
	StatusUnknown                       ExitStatus = "Unknown"
)

// IsTerminalSuccess reports whether the status ends a run without a retry.
func (s ExitStatus) IsTerminalSuccess() bool {
	return s == StatusAllTestsPassed || s == StatusSomeTestsFailed
}

// ExecutionMonitor is what the orchestration layer needs from a monitor.
type ExecutionMonitor interface {
	IsExecutionComplete() bool
	ExitStatus() ExitStatus
	IsApplicationStarted() bool
	DidTestsStart() bool

	// SetTarget records the device and bundle under test
	SetTarget(udid, bundleID string)

	// SetProcessID records the observed application process
	SetProcessID(pid int)
}

// TestResult is the outcome of one test case.
type TestResult struct {
	Suite    string
	Name     string
	Result   string
	Duration time.Duration
}

// Summary is a snapshot of what the tracker has seen.
type Summary struct {
	Status      ExitStatus
	Passed      int
	Failed      int
	Skipped     int
	Tests       []TestResult
	OutputLines int
	PID         int
}

// Tracker implements ExecutionMonitor and events.Delegate.
// The first terminal classification wins; later events never change it.
type Tracker struct {
	mu sync.Mutex

	udid     string
	bundleID string
	pid      int

	appStarted    bool
	testsStarted  bool
	processExited bool
	complete      bool
	status        ExitStatus

	passed  int
	failed  int
	skipped int
	tests   []TestResult

	outputLines int
	output      io.Writer
	hook        func(events.Event)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithOutput echoes application output lines to w.
func WithOutput(w io.Writer) Option {
	return func(t *Tracker) {
		t.output = w
	}
}

// WithEventHook calls fn for every event after it has been classified.
func WithEventHook(fn func(events.Event)) Option {
	return func(t *Tracker) {
		t.hook = fn
	}
}

// New creates a new Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{status: StatusUnknown}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetTarget records the device and bundle under test.
func (t *Tracker) SetTarget(udid, bundleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.udid = udid
	t.bundleID = bundleID
}

// SetProcessID records the observed application process.
func (t *Tracker) SetProcessID(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pid = pid
}

// HandleEvent classifies one event.
func (t *Tracker) HandleEvent(e events.Event) {
	t.mu.Lock()
	t.apply(e)
	hook := t.hook
	t.mu.Unlock()

	if hook != nil {
		hook(e)
	}
}

func (t *Tracker) apply(e events.Event) {
	switch e.Kind {
	case events.KindAppStarted:
		t.appStarted = true
		if t.pid == 0 && e.PID > 0 {
			t.pid = e.PID
		}

	case events.KindBeginTests, events.KindBeginTest:
		t.appStarted = true
		t.testsStarted = true

	case events.KindEndTest:
		t.testsStarted = true
		t.tests = append(t.tests, TestResult{
			Suite:    e.Suite,
			Name:     e.Test,
			Result:   e.Result,
			Duration: time.Duration(e.Duration * float64(time.Second)),
		})
		switch e.Result {
		case events.ResultSuccess:
			t.passed++
		case events.ResultSkipped:
			t.skipped++
		default:
			t.failed++
		}

	case events.KindEndTests:
		t.testsStarted = true
		if e.Passed > t.passed {
			t.passed = e.Passed
		}
		if e.Failed > t.failed {
			t.failed = e.Failed
		}
		if t.failed > 0 {
			t.finish(StatusSomeTestsFailed)
		} else {
			t.finish(StatusAllTestsPassed)
		}

	case events.KindProcessExited:
		t.processExited = true
		switch {
		case t.testsStarted:
			t.finish(StatusAppCrashed)
		case t.appStarted:
			t.finish(StatusLaunchedButNeverReportedTests)
		default:
			t.finish(StatusAppCrashed)
		}

	case events.KindOutput:
		t.outputLines++
		if t.output != nil {
			fmt.Fprintln(t.output, e.Line)
		}
	}
}

// finish records the terminal status unless one is already set
func (t *Tracker) finish(status ExitStatus) {
	if t.complete {
		return
	}
	t.complete = true
	t.status = status
	logging.Debug("execution classified", "device", t.udid, "bundle_id", t.bundleID, "status", status)
}

// MarkTimedOut classifies the run as timed out if it is not complete yet.
func (t *Tracker) MarkTimedOut() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finish(StatusTimedOut)
}

// IsExecutionComplete reports whether a terminal status has been assigned.
func (t *Tracker) IsExecutionComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.complete
}

// ExitStatus returns the terminal status, or Unknown while the run is live.
func (t *Tracker) ExitStatus() ExitStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// IsApplicationStarted reports whether the application was observed starting.
func (t *Tracker) IsApplicationStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appStarted
}

// DidTestsStart reports whether any test activity was observed.
func (t *Tracker) DidTestsStart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.testsStarted
}

// Summary returns a snapshot of the run.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	tests := make([]TestResult, len(t.tests))
	copy(tests, t.tests)
	return Summary{
		Status:      t.status,
		Passed:      t.passed,
		Failed:      t.failed,
		Skipped:     t.skipped,
		Tests:       tests,
		OutputLines: t.outputLines,
		PID:         t.pid,
	}
}

var (
	_ ExecutionMonitor = (*Tracker)(nil)
	_ events.Delegate  = (*Tracker)(nil)
)
