// Package testutil provides test fixtures and utilities.
//
// # Test Environment
//
// NewTestEnv wires a mock provisioning service and a mock command
// executor into app.Default so commands can be exercised without a
// simulator toolchain:
//
//	env := testutil.NewTestEnv(t)
//	defer env.Cleanup()
//	dev := env.AddDevice("external", provision.StateBooted)
//
// # Fixtures
//
// Run configuration fixtures are embedded using go:embed:
//
//	fixtures/valid_run.toml
//	fixtures/reuse_run.yaml
//	fixtures/invalid_run.toml
//
//	cfg, err := testutil.ValidRunConfig(t.TempDir())
package testutil
