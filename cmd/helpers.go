package cmd

import (
	"context"

	"github.com/firefly-engineering/simrun/internal/app"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/device"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/provision"
)

// deviceOptions are passed to every device manager the commands build.
// Tests shorten the wait policies through it.
var deviceOptions []device.Option

// paths returns the configured paths.
func paths() *config.Paths {
	return app.Default.Paths
}

// service returns the provisioning service or a ProvisioningError.
func service() (provision.Service, error) {
	return app.Default.RequireService()
}

// loadRunConfig returns the run configuration from --config, or the
// defaults when no file is given.
func loadRunConfig() (*config.RunConfiguration, error) {
	if configPath == "" {
		return config.DefaultRunConfiguration(), nil
	}
	cfg, err := config.LoadRunConfiguration(configPath)
	if err != nil {
		return nil, errors.ConfigError("failed to load run configuration", err)
	}
	return cfg, nil
}

// newManager builds a device manager wired to the application context.
func newManager(svc provision.Service, cfg *config.RunConfiguration) *device.Manager {
	opts := append([]device.Option{
		device.WithExecutor(app.Default.Executor),
		device.WithJournal(app.Default.Journal),
	}, deviceOptions...)
	return device.NewManager(svc, cfg, opts...)
}

// loadDevice looks up a device or returns a DeviceNotFound error.
func loadDevice(ctx context.Context, m *device.Manager, udid string) (*device.Handle, error) {
	h, err := m.FindDevice(ctx, udid)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errors.DeviceNotFound(udid)
	}
	return h, nil
}
