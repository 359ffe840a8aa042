package procwatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// waitNative waits on a pidfd, which becomes readable when the process exits.
func waitNative(ctx context.Context, pid int, interval time.Duration) error {
	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ESRCH):
			return nil
		case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EPERM):
			return errNativeUnsupported
		default:
			return fmt.Errorf("pidfd_open %d: %w", pid, err)
		}
	}
	defer unix.Close(fd)

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(fds, int(interval.Milliseconds()))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll pidfd %d: %w", pid, err)
		}
		if n > 0 {
			return nil
		}
	}
}
