package device

import (
	"context"
	"time"

	"github.com/firefly-engineering/simrun/internal/provision"
)

// WaitPolicy bounds a wait for a device state.
type WaitPolicy struct {
	// Interval between state checks
	Interval time.Duration

	// Attempts is the number of state checks
	Attempts int

	// Backoff multiplies the interval after each check; values below 1 mean 1
	Backoff float64

	// MaxInterval caps the interval when backing off; zero means no cap
	MaxInterval time.Duration
}

// Default wait budgets. Boot failures are detected quickly; shutdown is
// best-effort cleanup and may converge slowly.
var (
	DefaultBootPolicy     = WaitPolicy{Interval: 100 * time.Millisecond, Attempts: 1200}
	DefaultShutdownPolicy = WaitPolicy{Interval: time.Second, Attempts: 300}
)

func (p WaitPolicy) next(d time.Duration) time.Duration {
	if p.Backoff <= 1 {
		return d
	}
	d = time.Duration(float64(d) * p.Backoff)
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// waitResult describes how a wait ended
type waitResult struct {
	attempts int
	reached  bool
	missing  bool
	waited   time.Duration
}

// waitForState sleeps one interval before each check. A push notification
// for the wanted state cuts the current sleep short; every check still
// reads the state from the service.
func (m *Manager) waitForState(ctx context.Context, udid string, want provision.DeviceState, policy WaitPolicy) (waitResult, error) {
	start := time.Now()
	res := waitResult{}

	var notify <-chan provision.DeviceState
	if w, ok := m.svc.(provision.StateWatcher); ok {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if ch, err := w.WatchState(watchCtx, udid); err == nil {
			notify = ch
		}
	}

	log := m.log(udid, "wait-"+string(want))
	interval := policy.Interval
	for res.attempts < policy.Attempts {
		var err error
		if notify, err = sleepOrNotify(ctx, interval, notify, want); err != nil {
			res.waited = time.Since(start)
			return res, err
		}
		res.attempts++

		dev, err := m.svc.Device(ctx, udid)
		switch {
		case err != nil:
			log.Debug("state check failed", "attempt", res.attempts, "error", err)
		case dev == nil:
			res.missing = true
			res.waited = time.Since(start)
			return res, nil
		case dev.State == want:
			res.reached = true
			res.waited = time.Since(start)
			log.Debug("device reached state", "attempts", res.attempts, "waited", res.waited)
			return res, nil
		}

		interval = policy.next(interval)
	}

	res.waited = time.Since(start)
	return res, nil
}

// sleepOrNotify waits for d, a notification of the wanted state, or ctx.
// It returns the notification channel, nil once it has been closed.
func sleepOrNotify(ctx context.Context, d time.Duration, notify <-chan provision.DeviceState, want provision.DeviceState) (<-chan provision.DeviceState, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return notify, ctx.Err()
		case <-timer.C:
			return notify, nil
		case st, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			if st == want {
				return notify, nil
			}
		}
	}
}
