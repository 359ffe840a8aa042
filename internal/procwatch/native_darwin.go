package procwatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// waitNative registers a one-shot NOTE_EXIT filter on a private kqueue.
func waitNative(ctx context.Context, pid int, interval time.Duration) error {
	kq, err := unix.Kqueue()
	if err != nil {
		return errNativeUnsupported
	}
	defer unix.Close(kq)

	change := unix.Kevent_t{
		Ident:  uint64(pid),
		Filter: unix.EVFILT_PROC,
		Flags:  unix.EV_ADD | unix.EV_ONESHOT,
		Fflags: unix.NOTE_EXIT,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{change}, nil, nil); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("kevent register %d: %w", pid, err)
	}

	timeout := unix.NsecToTimespec(interval.Nanoseconds())
	events := make([]unix.Kevent_t, 1)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Kevent(kq, nil, events, &timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("kevent wait %d: %w", pid, err)
		}
		if n > 0 && events[0].Fflags&unix.NOTE_EXIT != 0 {
			return nil
		}
	}
}
