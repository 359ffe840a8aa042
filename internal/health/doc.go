// Package health inspects simulator devices for status reporting.
//
// A device is looked up through the provisioning service; when it is
// booted the process table is scanned for an interactive front-end
// attached to it.
//
// # Health Status
//
//	StatusBooted   - Device booted with a front-end window
//	StatusHeadless - Device booted without a front-end
//	StatusShutdown - Device exists but is not booted
//	StatusNotFound - No device with that identifier
//
// # Check Functions
//
//	result, err := health.Check(ctx, svc, exec, udid)
//	// result.Found, .State, .Booted, .FrontEndPID, .Uptime
//
//	status := health.GetSummary(ctx, svc, exec, udid)
package health
