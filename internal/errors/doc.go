// Package errors provides typed errors with exit codes for simrun.
//
// # Error Types
//
// RunError is the base error type that wraps an error with an exit code:
//
//	type RunError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
// Each failure class of a run has its own exit code:
//
//	ExitSuccess          = 0  // Success
//	ExitGeneralError     = 1  // General/unknown errors
//	ExitProvisioning     = 2  // Provisioning service or device set unavailable
//	ExitDeviceNotFound   = 3  // Device identifier not in the device set
//	ExitDeviceNotBooted  = 4  // Device exists but is not booted
//	ExitNoFrontEnd       = 5  // No interactive front-end for the device
//	ExitBootTimeout      = 6  // Device never reached Booted
//	ExitInstallFailed    = 7  // Application install failed
//	ExitLaunchFailed     = 8  // Application launch failed
//	ExitShutdownTimeout  = 9  // Device never reached Shutdown (non-fatal)
//	ExitDeleteFailed     = 10 // Device deletion failed
//	ExitConfigError      = 11 // Configuration error
//	ExitTestsFailed      = 12 // Run completed with failing tests
//	ExitNeedsRetry       = 13 // Run ended in a retryable state
//
// Infrastructure failures (codes 2-8) abort a run. Retry is reserved for
// ambiguous in-test outcomes and is reported with ExitNeedsRetry.
//
// # Extracting Exit Codes
//
// Use GetExitCode to extract the exit code from an error chain:
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
