package health

import (
	"context"
	"fmt"
	"time"

	"github.com/firefly-engineering/simrun/internal/device"
	"github.com/firefly-engineering/simrun/internal/provision"
	"github.com/firefly-engineering/simrun/internal/system"
)

// Status summarizes the health of a simulator device
type Status string

const (
	StatusBooted   Status = "booted"
	StatusHeadless Status = "headless"
	StatusShutdown Status = "shutdown"
	StatusNotFound Status = "not-found"
)

// CheckResult contains the results of health checks
type CheckResult struct {
	Found       bool
	State       provision.DeviceState
	Booted      bool
	FrontEndPID int
	BootedAt    time.Time
	Uptime      string
}

// bootTimeFormats are the layouts seen in lastBootedAt
var bootTimeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
}

// ParseBootTime parses a device's lastBootedAt value.
func ParseBootTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, format := range bootTimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// GetUptime returns the time since the device last booted in human-readable format.
func GetUptime(dev *provision.Device) string {
	if dev == nil || !dev.IsBooted() {
		return "unknown"
	}
	t, ok := ParseBootTime(dev.LastBootedAt)
	if !ok {
		return "unknown"
	}
	return formatDuration(time.Since(t))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// Check performs all health checks for a device.
// The exec parameter is optional; if nil, the front-end is not looked up.
func Check(ctx context.Context, svc provision.Service, exec system.CommandExecutor, udid string) (*CheckResult, error) {
	result := &CheckResult{}

	dev, err := svc.Device(ctx, udid)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return result, nil
	}
	result.Found = true
	result.State = dev.State
	result.Booted = dev.IsBooted()
	if !result.Booted {
		return result, nil
	}

	if t, ok := ParseBootTime(dev.LastBootedAt); ok {
		result.BootedAt = t
	}
	result.Uptime = GetUptime(dev)

	if exec != nil {
		// A failed process-table scan reads as headless
		if fe, err := device.FindFrontEnd(ctx, exec, udid); err == nil && fe != nil {
			result.FrontEndPID = fe.PID
		}
	}

	return result, nil
}

// Summary reduces a check result to a Status.
func (r *CheckResult) Summary() Status {
	switch {
	case !r.Found:
		return StatusNotFound
	case !r.Booted:
		return StatusShutdown
	case r.FrontEndPID == 0:
		return StatusHeadless
	}
	return StatusBooted
}

// GetSummary returns a summary health status.
// Lookup errors are reported as StatusNotFound.
func GetSummary(ctx context.Context, svc provision.Service, exec system.CommandExecutor, udid string) Status {
	result, err := Check(ctx, svc, exec, udid)
	if err != nil {
		return StatusNotFound
	}
	return result.Summary()
}
