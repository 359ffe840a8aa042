// Package testutil provides test utilities for command and integration tests
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/firefly-engineering/simrun/internal/app"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/provision"
	"github.com/firefly-engineering/simrun/internal/system"
)

// Device type and runtime used by test configurations
const (
	TestDeviceType = "com.apple.CoreSimulator.SimDeviceType.iPhone-15"
	TestRuntime    = "com.apple.CoreSimulator.SimRuntime.iOS-17-5"
	TestBundleID   = "com.example.demo"
)

// TestEnv holds the test environment
type TestEnv struct {
	T        *testing.T
	TmpDir   string
	Paths    *config.Paths
	Service  *provision.MockService
	Executor *system.MockExecutor
	App      *app.App
	cleanup  func()
}

// NewTestEnv creates a new test environment with a mock provisioning service
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()
	paths := config.NewPaths(filepath.Join(tmpDir, "state"))

	for _, dir := range []string{paths.StateDir, paths.JournalDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	svc := provision.NewMockService(filepath.Join(tmpDir, "devices"))
	exec := system.NewMockExecutor()
	exec.OnStart = FrontEndBoots(svc)

	testApp := app.New(
		app.WithPaths(paths),
		app.WithService(svc),
		app.WithExecutor(exec),
	)

	originalDefault := app.Default
	app.SetDefault(testApp)

	return &TestEnv{
		T:        t,
		TmpDir:   tmpDir,
		Paths:    paths,
		Service:  svc,
		Executor: exec,
		App:      testApp,
		cleanup: func() {
			app.SetDefault(originalDefault)
		},
	}
}

// FrontEndBoots returns a MockExecutor start hook that boots the device a
// started front-end names, as the interactive simulator does.
func FrontEndBoots(svc *provision.MockService) func(p *system.MockProcess) {
	return func(p *system.MockProcess) {
		if udid, ok := p.Arg("-CurrentDeviceUDID"); ok {
			svc.FrontEndBoot(udid)
		}
	}
}

// Cleanup restores the original app default
func (e *TestEnv) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

// AddDevice adds a device in the given state to the mock service
func (e *TestEnv) AddDevice(name string, state provision.DeviceState) *provision.Device {
	e.T.Helper()

	dev, err := e.Service.AddDevice(name, state)
	if err != nil {
		e.T.Fatalf("Failed to add device: %v", err)
	}
	return dev
}

// CreateAppBundle creates an empty application bundle directory
func (e *TestEnv) CreateAppBundle(name string) string {
	e.T.Helper()

	path := filepath.Join(e.TmpDir, "build", name+".app")
	if err := os.MkdirAll(path, 0755); err != nil {
		e.T.Fatalf("Failed to create app bundle: %v", err)
	}
	return path
}

// RunConfig returns a create-mode configuration for a bundle in the
// environment, with short timings suitable for tests
func (e *TestEnv) RunConfig() *config.RunConfiguration {
	e.T.Helper()

	cfg := config.DefaultRunConfiguration()
	cfg.AppBundle = e.CreateAppBundle("Demo")
	cfg.BundleID = TestBundleID
	cfg.DeviceType = TestDeviceType
	cfg.Runtime = TestRuntime
	cfg.Headless = true
	cfg.PollInterval = config.Duration{Duration: 5 * time.Millisecond}
	cfg.RunTimeout = config.Duration{Duration: 5 * time.Second}
	return cfg
}

// WriteRunConfig writes a TOML run config and returns its path
func (e *TestEnv) WriteRunConfig(content string) string {
	e.T.Helper()

	path := filepath.Join(e.TmpDir, "run.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		e.T.Fatalf("Failed to write run config: %v", err)
	}
	return path
}

// DeviceExists checks if a device exists in the mock service
func (e *TestEnv) DeviceExists(udid string) bool {
	_, ok := e.Service.Devices[udid]
	return ok
}
