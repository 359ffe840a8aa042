package provision

import (
	"fmt"
	"os/exec"
	goruntime "runtime"

	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/system"
)

// BackendType identifies which provisioning backend to use
type BackendType string

const (
	BackendSimctl BackendType = "simctl"
	BackendMock   BackendType = "mock"
	BackendAuto   BackendType = "auto"
)

// Config holds backend configuration
type Config struct {
	// Type specifies which backend to use (or "auto" for auto-detection)
	Type BackendType

	// DeveloperDir selects the toolchain for simctl
	DeveloperDir string

	// MockDataRoot holds device data for the mock backend
	MockDataRoot string

	// Exec runs external commands; nil uses the system default
	Exec system.CommandExecutor
}

// DefaultConfig returns the default backend configuration
func DefaultConfig() *Config {
	return &Config{Type: BackendAuto}
}

// Detect determines which backend is available on the system.
func Detect() (BackendType, error) {
	logging.Debug("detecting provisioning backend", "os", goruntime.GOOS)

	if goruntime.GOOS != "darwin" {
		return "", fmt.Errorf("%w: simulator devices require macOS (running on %s)", ErrServiceUnavailable, goruntime.GOOS)
	}
	if _, err := exec.LookPath("xcrun"); err != nil {
		return "", fmt.Errorf("%w: xcrun not found, install the Xcode command line tools", ErrServiceUnavailable)
	}

	logging.Debug("detected simctl")
	return BackendSimctl, nil
}

// New creates a Service based on the configuration.
// If Type is BackendAuto, it auto-detects the backend.
func New(cfg *Config) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	backend := cfg.Type
	if backend == "" || backend == BackendAuto {
		detected, err := Detect()
		if err != nil {
			return nil, err
		}
		backend = detected
	}

	logging.Debug("creating provisioning service", "backend", backend)

	switch backend {
	case BackendSimctl:
		return NewSimctlService(cfg.Exec, cfg.DeveloperDir), nil
	case BackendMock:
		return NewMockService(cfg.MockDataRoot), nil
	default:
		return nil, fmt.Errorf("unknown provisioning backend: %s", backend)
	}
}
