package errors

import (
	"errors"
	"fmt"
	"time"
)

// Exit codes for simrun
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitProvisioning    = 2
	ExitDeviceNotFound  = 3
	ExitDeviceNotBooted = 4
	ExitNoFrontEnd      = 5
	ExitBootTimeout     = 6
	ExitInstallFailed   = 7
	ExitLaunchFailed    = 8
	ExitShutdownTimeout = 9
	ExitDeleteFailed    = 10
	ExitConfigError     = 11
	ExitTestsFailed     = 12
	ExitNeedsRetry      = 13
)

// RunError is the base error type for simrun
type RunError struct {
	Code    int
	Message string
	Cause   error
}

func (e *RunError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *RunError) ExitCode() int {
	return e.Code
}

// New creates a new RunError
func New(code int, message string) *RunError {
	return &RunError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a RunError
func Wrap(code int, message string, cause error) *RunError {
	return &RunError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Provisioning returns an error for an unobtainable service context or device set,
// or for a failed device creation.
func Provisioning(message string, cause error) *RunError {
	return Wrap(ExitProvisioning, message, cause)
}

// DeviceNotFound returns an error for a device identifier missing from the device set
func DeviceNotFound(udid string) *RunError {
	return New(ExitDeviceNotFound, fmt.Sprintf("device not found: %s", udid))
}

// DeviceNotBooted returns an error for a device that exists but is not booted
func DeviceNotBooted(udid, state string) *RunError {
	return New(ExitDeviceNotBooted, fmt.Sprintf("device %s is not booted (state: %s)", udid, state))
}

// NoFrontEnd returns an error when no interactive front-end drives the device
func NoFrontEnd(udid string) *RunError {
	return New(ExitNoFrontEnd, fmt.Sprintf("no interactive front-end found for device %s", udid))
}

// BootTimeout returns an error for a device that never reached the booted state
func BootTimeout(udid string, waited time.Duration) *RunError {
	return New(ExitBootTimeout, fmt.Sprintf("device %s did not boot within %s", udid, waited))
}

// InstallFailed returns an error for a failed application install
func InstallFailed(bundle, udid string, cause error) *RunError {
	return Wrap(ExitInstallFailed, fmt.Sprintf("install of %s on %s failed", bundle, udid), cause)
}

// LaunchFailed returns an error for a failed application launch
func LaunchFailed(bundleID, udid string, cause error) *RunError {
	return Wrap(ExitLaunchFailed, fmt.Sprintf("launch of %s on %s failed", bundleID, udid), cause)
}

// ShutdownTimeout returns an error for a device that never reached the shutdown state.
// Callers log it and continue with deletion.
func ShutdownTimeout(udid string) *RunError {
	return New(ExitShutdownTimeout, fmt.Sprintf("device %s did not shut down in time", udid))
}

// DeleteFailed returns an error for a failed device deletion
func DeleteFailed(udid string, cause error) *RunError {
	return Wrap(ExitDeleteFailed, fmt.Sprintf("delete of device %s failed", udid), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *RunError {
	return Wrap(ExitConfigError, message, cause)
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *RunError {
	return New(ExitGeneralError, message)
}

// TestsFailed returns the error reported by the CLI for a completed run with failures
func TestsFailed(status string) *RunError {
	return New(ExitTestsFailed, fmt.Sprintf("tests failed (%s)", status))
}

// NeedsRetry returns the error reported by the CLI for a run that should be retried
func NeedsRetry(status string) *RunError {
	return New(ExitNeedsRetry, fmt.Sprintf("run needs retry (%s)", status))
}

// AlreadyAcquired returns an error for a second device acquisition on one runner
func AlreadyAcquired(udid string) *RunError {
	return New(ExitGeneralError, fmt.Sprintf("runner already holds device %s", udid))
}

// RunnerUsed returns an error for a second run on a single-use runner
func RunnerUsed() *RunError {
	return New(ExitGeneralError, "runner has already been used")
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.ExitCode()
	}
	return ExitGeneralError
}

// HasCode reports whether err carries a RunError with the given code
func HasCode(err error, code int) bool {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Code == code
	}
	return false
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
