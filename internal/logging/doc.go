// Package logging provides logging utilities for simrun.
//
// Diagnostics go through a package-global slog logger configured by Setup:
// text by default, JSON with --json, debug level only with --verbose.
//
//	logging.Debug("creating device", "name", name, "type", deviceType)
//
// Failure paths log through ForDevice so every entry carries the device
// identifier and the run stage:
//
//	logging.ForDevice(udid, "booting").Error("boot timed out", "error", err)
//
// Messages meant for the person running simrun use the User functions,
// which prefix a status glyph (ℹ, ✓, ⚠, ✗). Info and success lines go to
// stdout, warnings and errors to stderr; SetUserOutput redirects both.
package logging
