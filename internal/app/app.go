// Package app provides the application context for simrun.
// It allows dependency injection for testing.
package app

import (
	"github.com/firefly-engineering/simrun/internal/audit"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/procwatch"
	"github.com/firefly-engineering/simrun/internal/provision"
	"github.com/firefly-engineering/simrun/internal/system"
)

// App holds the application dependencies
type App struct {
	// Paths holds the configured paths
	Paths *config.Paths

	// Service provisions simulator devices
	Service provision.Service

	// Executor runs external commands (front-end, process table)
	Executor system.CommandExecutor

	// Watcher observes launched processes; nil derives one from Service
	Watcher procwatch.Watcher

	// Journal records per-device lifecycle events
	Journal *audit.Journal

	// serviceErr keeps the detection failure for RequireService
	serviceErr error
}

// Option is a function that configures the App
type Option func(*App)

// WithPaths sets custom paths
func WithPaths(paths *config.Paths) Option {
	return func(a *App) {
		a.Paths = paths
	}
}

// WithService sets a custom provisioning service
func WithService(svc provision.Service) Option {
	return func(a *App) {
		a.Service = svc
	}
}

// WithExecutor sets a custom command executor
func WithExecutor(exec system.CommandExecutor) Option {
	return func(a *App) {
		a.Executor = exec
	}
}

// WithWatcher sets a custom process exit watcher
func WithWatcher(w procwatch.Watcher) Option {
	return func(a *App) {
		a.Watcher = w
	}
}

// New creates a new App with the given options.
// If no service is provided via WithService, the backend is auto-detected.
func New(opts ...Option) *App {
	app := &App{
		Paths: config.DefaultPaths(),
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.Executor == nil {
		app.Executor = system.DefaultExecutor()
	}

	if app.Service == nil {
		cfg := provision.DefaultConfig()
		cfg.Exec = app.Executor
		svc, err := provision.New(cfg)
		if err != nil {
			logging.Debug("failed to initialize provisioning backend", "error", err)
			app.serviceErr = err
		} else {
			app.Service = svc
		}
	}

	if app.Journal == nil {
		app.Journal = audit.NewJournal(app.Paths.JournalDir)
	}

	return app
}

// RequireService returns the provisioning service or a ProvisioningError
// explaining why none is available.
func (a *App) RequireService() (provision.Service, error) {
	if a.Service != nil {
		return a.Service, nil
	}
	cause := a.serviceErr
	if cause == nil {
		cause = provision.ErrServiceUnavailable
	}
	return nil, errors.Provisioning("no provisioning backend available", cause)
}

// Default is the default application instance
var Default = New()

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault resets to the default application instance
func ResetDefault() {
	Default = New()
}
