// Package procwatch waits for host processes to exit using the operating
// system's exit notifications: a pidfd on Linux and a kqueue NOTE_EXIT
// filter on darwin. Where neither is available the watcher falls back to
// probing the pid with signal 0.
package procwatch

import (
	"context"
	"errors"
	"time"

	"github.com/firefly-engineering/simrun/internal/logging"
)

// Watcher waits for a process to exit.
type Watcher interface {
	// WaitExit blocks until the process exits or ctx is done. A pid that
	// does not exist is reported as exited.
	WaitExit(ctx context.Context, pid int) error
}

var errNativeUnsupported = errors.New("native exit notification unsupported")

// DefaultPollInterval bounds how long a single wait blocks before ctx is
// checked again.
const DefaultPollInterval = 100 * time.Millisecond

// OSWatcher implements Watcher for host processes.
type OSWatcher struct {
	PollInterval time.Duration
}

// New creates an OSWatcher with the default poll interval.
func New() *OSWatcher {
	return &OSWatcher{PollInterval: DefaultPollInterval}
}

func (w *OSWatcher) interval() time.Duration {
	if w.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return w.PollInterval
}

// WaitExit blocks until pid exits or ctx is done.
func (w *OSWatcher) WaitExit(ctx context.Context, pid int) error {
	if pid <= 0 {
		return errors.New("invalid pid")
	}

	err := waitNative(ctx, pid, w.interval())
	if !errors.Is(err, errNativeUnsupported) {
		return err
	}

	logging.Debug("falling back to signal probing", "pid", pid)
	return pollExit(ctx, pid, w.interval())
}

var _ Watcher = (*OSWatcher)(nil)
