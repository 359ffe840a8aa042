// Package app provides the application context for simrun.
//
// This package manages application-wide dependencies using the functional
// options pattern, enabling easy testing through dependency injection.
//
// # App Context
//
//	type App struct {
//	    Paths    *config.Paths           // State and journal directories
//	    Service  provision.Service       // Simulator provisioning backend
//	    Executor system.CommandExecutor  // External commands
//	    Watcher  procwatch.Watcher       // Process exit observation
//	    Journal  *audit.Journal          // Per-device run journal
//	}
//
// # Creating an App
//
//	// Production usage: the backend is detected
//	a := app.New()
//
//	// Testing with custom dependencies
//	a := app.New(
//	    app.WithPaths(testPaths),
//	    app.WithService(provision.NewMockService(dir)),
//	    app.WithExecutor(system.NewMockExecutor()),
//	)
//
// Commands call RequireService, which turns a failed detection into a
// ProvisioningError.
package app
