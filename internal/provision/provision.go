// Package provision defines the device provisioning service contract for simrun.
// The service creates, boots, shuts down and deletes virtual devices and
// installs and launches applications inside them. Backends (simctl, mock)
// implement Service; the orchestration layer never talks to a backend
// directly.
package provision

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DeviceState is the state string reported by the provisioning service.
type DeviceState string

const (
	StateCreating     DeviceState = "Creating"
	StateShutdown     DeviceState = "Shutdown"
	StateBooting      DeviceState = "Booting"
	StateBooted       DeviceState = "Booted"
	StateShuttingDown DeviceState = "Shutting Down"
)

// Well-known environment keys understood by the test harness inside the app.
const (
	EnvInjectBundle     = "XCInjectBundle"
	EnvInjectBundleInto = "XCInjectBundleInto"
	EnvForceCrash       = "SIMRUN_FORCE_CRASH_ON_LAUNCH"
	EnvForceHang        = "SIMRUN_FORCE_HANG_ON_LAUNCH"
)

var (
	// ErrServiceUnavailable wraps failures to reach the service or its device set.
	ErrServiceUnavailable = errors.New("provisioning service unavailable")

	// ErrWatchUnsupported is returned by StateWatcher implementations that
	// cannot push state changes; callers fall back to polling.
	ErrWatchUnsupported = errors.New("state notifications not supported")
)

// Device holds what the service reports about a virtual device.
type Device struct {
	UDID         string
	Name         string
	State        DeviceState
	DeviceType   string
	Runtime      string
	DataPath     string // Root of the device's private data directory on the host
	LastBootedAt string
}

// IsBooted reports whether the device is in the booted state.
func (d *Device) IsBooted() bool {
	return d != nil && d.State == StateBooted
}

// CreateSpec holds options for creating a device
type CreateSpec struct {
	Name       string
	DeviceType string
	Runtime    string
}

// BootOptions holds options for a boot request
type BootOptions struct {
	Headless bool
}

// LaunchOptions holds the recognized launch options.
// Output redirection targets are relative to the device's data directory.
type LaunchOptions struct {
	Arguments       []string
	Environment     map[string]string
	WaitForDebugger bool
	StdoutPath      string
	StderrPath      string
}

// Validate checks that the options can be handed to a backend.
func (o LaunchOptions) Validate() error {
	for key := range o.Environment {
		if key == "" || strings.ContainsAny(key, "= ") {
			return fmt.Errorf("invalid environment variable name %q", key)
		}
	}
	for _, p := range []string{o.StdoutPath, o.StderrPath} {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			return fmt.Errorf("redirection target %q must be relative to the device data directory", p)
		}
		if clean := filepath.Clean(p); clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("redirection target %q escapes the device data directory", p)
		}
	}
	return nil
}

// EnvironmentList returns the environment as sorted KEY=VALUE pairs.
func (o LaunchOptions) EnvironmentList() []string {
	env := make([]string, 0, len(o.Environment))
	for k, v := range o.Environment {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// Service is the interface that provisioning backends must implement.
// Every call blocks until the service reports completion or ctx is done.
// All methods should be safe for concurrent use.
type Service interface {
	// Name returns the backend identifier (e.g., "simctl", "mock")
	Name() string

	// CreateDevice creates a new device in the default device set
	CreateDevice(ctx context.Context, spec CreateSpec) (*Device, error)

	// Device looks up a device by identifier. It returns nil and no error
	// when the device is not in the device set.
	Device(ctx context.Context, udid string) (*Device, error)

	// ListDevices returns every device in the default device set
	ListDevices(ctx context.Context) ([]*Device, error)

	// Boot requests a boot. Its result is informational; callers decide
	// convergence by observing device state.
	Boot(ctx context.Context, udid string, opts BootOptions) error

	// Shutdown requests a shutdown
	Shutdown(ctx context.Context, udid string) error

	// Delete removes the device from the device set
	Delete(ctx context.Context, udid string) error

	// Install installs an application bundle onto the device
	Install(ctx context.Context, udid, bundlePath string) error

	// Uninstall removes an application from the device
	Uninstall(ctx context.Context, udid, bundleID string) error

	// Launch starts an application and returns its process identifier
	Launch(ctx context.Context, udid, bundleID string, opts LaunchOptions) (int, error)
}

// StateWatcher is implemented by services that can push device state changes.
type StateWatcher interface {
	// WatchState returns a channel receiving each new state of the device.
	// The channel is closed when ctx is done.
	WatchState(ctx context.Context, udid string) (<-chan DeviceState, error)
}
