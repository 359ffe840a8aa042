// Package config provides configuration types and loading for simrun.
//
// # Run Configuration
//
// RunConfiguration describes a single run and is read-only to the
// orchestration layer. It is loaded from TOML (preferred) or YAML:
//
//	app_bundle  = "build/Demo.app"
//	bundle_id   = "com.example.demo"
//	test_bundle = "build/DemoTests.xctest"
//	device_type = "com.apple.CoreSimulator.SimDeviceType.iPhone-15"
//	runtime     = "com.apple.CoreSimulator.SimRuntime.iOS-17-5"
//	headless    = true
//	run_timeout = "5m"
//
//	[environment]
//	FEATURE_FLAGS = "fast-start"
//
// Setting device_udid attaches the run to an already-booted device instead
// of creating one; such a device is never deleted by simrun.
//
// # Validation
//
// ValidateDevice checks only what is needed to acquire a device (used by the
// device commands); Validate checks a full run.
//
// # Paths
//
// Paths holds the state directory used for the per-device run journal:
//
//	type Paths struct {
//	    StateDir   string // $XDG_STATE_HOME/simrun
//	    JournalDir string // StateDir/runs
//	}
package config
