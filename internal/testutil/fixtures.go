package testutil

import (
	"embed"
	"os"
	"path/filepath"

	"github.com/firefly-engineering/simrun/internal/config"
)

//go:embed fixtures/*
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// LoadRunConfigFixture copies a run config fixture into dir and loads it,
// keeping the file extension so the format is chosen the usual way.
func LoadRunConfigFixture(dir, name string) (*config.RunConfiguration, error) {
	data, err := LoadFixture(name)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}
	return config.LoadRunConfiguration(path)
}

// ValidRunConfig returns the valid create-mode run config fixture.
func ValidRunConfig(dir string) (*config.RunConfiguration, error) {
	return LoadRunConfigFixture(dir, "valid_run.toml")
}

// ReuseRunConfig returns the valid reuse-mode run config fixture.
func ReuseRunConfig(dir string) (*config.RunConfiguration, error) {
	return LoadRunConfigFixture(dir, "reuse_run.yaml")
}

// InvalidRunConfig returns a run config fixture that fails validation.
func InvalidRunConfig(dir string) (*config.RunConfiguration, error) {
	return LoadRunConfigFixture(dir, "invalid_run.toml")
}
