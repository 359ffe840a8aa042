// Package completion decides when a test run is over and whether the
// attempt should be retried.
package completion

import (
	"context"
	"sync"
	"time"

	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/monitor"
)

// ProcessState reports whether the launched process has exited.
type ProcessState interface {
	Finished() bool
}

// timeoutMarker is implemented by monitors that accept a timeout verdict.
type timeoutMarker interface {
	MarkTimedOut()
}

// Evaluator combines process state with an execution monitor's verdict.
type Evaluator struct {
	monitor      monitor.ExecutionMonitor
	process      ProcessState
	pollInterval time.Duration
	timeout      time.Duration

	mu       sync.Mutex
	finished bool
	status   monitor.ExitStatus
	retry    bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPollInterval sets how often Wait checks for completion.
// Non-positive values keep the default.
func WithPollInterval(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithTimeout bounds Wait. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// New creates an Evaluator. process may be nil before launch.
func New(mon monitor.ExecutionMonitor, process ProcessState, opts ...Option) *Evaluator {
	e := &Evaluator{
		monitor:      mon,
		process:      process,
		pollInterval: 100 * time.Millisecond,
		status:       monitor.StatusUnknown,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsApplicationStarted is true once the process has exited or the monitor
// has seen the application start. An exit counts because a crash can
// happen before any start event is parsed.
func (e *Evaluator) IsApplicationStarted() bool {
	if e.process != nil && e.process.Finished() {
		return true
	}
	return e.monitor.IsApplicationStarted()
}

// DidTestsStart delegates to the monitor.
func (e *Evaluator) DidTestsStart() bool {
	return e.monitor.DidTestsStart()
}

// CheckFinished reports whether this attempt is over. Once it returns
// true the verdict is fixed: later calls return true with the same status.
func (e *Evaluator) CheckFinished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return true
	}
	if !e.monitor.IsExecutionComplete() {
		return false
	}

	e.finished = true
	e.status = e.monitor.ExitStatus()
	e.retry = !e.status.IsTerminalSuccess()
	return true
}

// ExitStatus returns the fixed verdict, or Unknown before CheckFinished
// has returned true.
func (e *Evaluator) ExitStatus() monitor.ExitStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// ShouldRetry is advisory: the retry budget belongs to the caller.
func (e *Evaluator) ShouldRetry() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retry
}

// forceTimedOut fixes a TimedOut verdict when the monitor cannot be marked
func (e *Evaluator) forceTimedOut() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.finished = true
	e.status = monitor.StatusTimedOut
	e.retry = true
}

// Wait blocks until CheckFinished is true, the timeout passes or ctx is
// done. When the timeout passes the run is classified TimedOut.
func (e *Evaluator) Wait(ctx context.Context) (monitor.ExitStatus, error) {
	logging.Debug("waiting for run to finish", "interval", e.pollInterval, "timeout", e.timeout)

	if e.CheckFinished() {
		return e.ExitStatus(), nil
	}

	var deadline <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.ExitStatus(), ctx.Err()
		case <-deadline:
			logging.Warn("run timed out", "timeout", e.timeout, "started", e.IsApplicationStarted(), "tests_started", e.DidTestsStart())
			if m, ok := e.monitor.(timeoutMarker); ok {
				m.MarkTimedOut()
			}
			if !e.CheckFinished() {
				e.forceTimedOut()
			}
			return e.ExitStatus(), nil
		case <-ticker.C:
			if e.CheckFinished() {
				return e.ExitStatus(), nil
			}
		}
	}
}
