//go:build unix

package procwatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// pollExit probes the pid with signal 0 until it is gone.
// Zombies still answer the probe, so the parent must reap them.
func pollExit(ctx context.Context, pid int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Alive reports whether pid names a running process. EPERM means the
// process exists but belongs to another user.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
