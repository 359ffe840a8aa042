package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// deviceNameRegex validates names for devices created by simrun.
// Names must start with a letter or digit, followed by letters, digits,
// spaces, dots, underscores, or hyphens. Maximum length is 64 characters.
var deviceNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]{0,63}$`)

// bundleIDRegex validates reverse-DNS application bundle identifiers.
var bundleIDRegex = regexp.MustCompile(`^[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+$`)

// ValidateDeviceName checks if a device name is valid.
func ValidateDeviceName(name string) error {
	if name == "" {
		return fmt.Errorf("device name cannot be empty")
	}

	if !deviceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid device name %q: must start with a letter or digit, contain only letters, digits, spaces, dots, underscores, or hyphens, and be at most 64 characters", name)
	}

	return nil
}

// ValidateBundleID checks if a bundle identifier is valid.
func ValidateBundleID(id string) error {
	if !bundleIDRegex.MatchString(id) {
		return fmt.Errorf("invalid bundle identifier %q", id)
	}
	return nil
}

const (
	DefaultDeveloperDir = "/Applications/Xcode.app/Contents/Developer"
	DeviceNamePrefix    = "simrun"

	DefaultRunTimeout   = 10 * time.Minute
	DefaultPollInterval = 100 * time.Millisecond
)

// Duration is a time.Duration that decodes from strings such as "90s" or "5m"
// in both TOML and YAML files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// RunConfiguration describes one run. It is immutable once a run starts;
// the orchestration layer only reads it.
type RunConfiguration struct {
	AppBundle  string `toml:"app_bundle" yaml:"app_bundle"`
	BundleID   string `toml:"bundle_id" yaml:"bundle_id"`
	Executable string `toml:"executable" yaml:"executable"` // Defaults to the bundle's main binary
	TestBundle string `toml:"test_bundle" yaml:"test_bundle"`

	DeviceType string `toml:"device_type" yaml:"device_type"`
	Runtime    string `toml:"runtime" yaml:"runtime"`
	DeviceName string `toml:"device_name" yaml:"device_name"`
	DeviceUDID string `toml:"device_udid" yaml:"device_udid"` // Reuse an external device; it is never deleted

	Headless     bool   `toml:"headless" yaml:"headless"`
	DeveloperDir string `toml:"developer_dir" yaml:"developer_dir"`

	Arguments       []string          `toml:"arguments" yaml:"arguments"`
	Environment     map[string]string `toml:"environment" yaml:"environment"`
	WaitForDebugger bool              `toml:"wait_for_debugger" yaml:"wait_for_debugger"`

	ForceCrashOnLaunch bool `toml:"force_crash_on_launch" yaml:"force_crash_on_launch"`
	ForceHangOnLaunch  bool `toml:"force_hang_on_launch" yaml:"force_hang_on_launch"`

	RunTimeout Duration `toml:"run_timeout" yaml:"run_timeout"`

	// PollInterval of zero uses DefaultPollInterval.
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`

	KeepDevice        bool `toml:"keep_device" yaml:"keep_device"`
	UninstallAfterRun bool `toml:"uninstall_after_run" yaml:"uninstall_after_run"`
}

// DefaultRunConfiguration returns a configuration with defaults filled in.
func DefaultRunConfiguration() *RunConfiguration {
	return &RunConfiguration{
		DeveloperDir: DefaultDeveloperDir,
		RunTimeout:   Duration{DefaultRunTimeout},
		PollInterval: Duration{DefaultPollInterval},
		Environment:  map[string]string{},
	}
}

// ReusesDevice reports whether the run attaches to an external device.
func (c *RunConfiguration) ReusesDevice() bool {
	return c.DeviceUDID != ""
}

// ExecutablePath returns the path of the application binary inside the bundle.
func (c *RunConfiguration) ExecutablePath() string {
	if c.Executable != "" {
		return c.Executable
	}
	if c.AppBundle == "" {
		return ""
	}
	base := strings.TrimSuffix(filepath.Base(c.AppBundle), ".app")
	return filepath.Join(c.AppBundle, base)
}

// ValidateDevice checks the fields needed to acquire a device.
func (c *RunConfiguration) ValidateDevice() error {
	if c.ReusesDevice() {
		return nil
	}

	if c.DeviceType == "" {
		return fmt.Errorf("device_type is required when device_udid is not set")
	}
	if c.Runtime == "" {
		return fmt.Errorf("runtime is required when device_udid is not set")
	}
	if c.DeviceName != "" {
		if err := ValidateDeviceName(c.DeviceName); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the RunConfiguration is valid for a full run.
func (c *RunConfiguration) Validate() error {
	if err := c.ValidateDevice(); err != nil {
		return err
	}

	if c.AppBundle == "" {
		return fmt.Errorf("app_bundle is required")
	}
	if err := ValidateBundleID(c.BundleID); err != nil {
		return err
	}

	if c.ForceCrashOnLaunch && c.ForceHangOnLaunch {
		return fmt.Errorf("force_crash_on_launch and force_hang_on_launch are mutually exclusive")
	}

	if c.RunTimeout.Duration < 0 {
		return fmt.Errorf("run_timeout must not be negative (got %s)", c.RunTimeout.Duration)
	}
	if c.PollInterval.Duration < 0 {
		return fmt.Errorf("poll_interval must not be negative (got %s)", c.PollInterval.Duration)
	}

	for key := range c.Environment {
		if key == "" || strings.Contains(key, "=") {
			return fmt.Errorf("invalid environment variable name %q", key)
		}
	}

	return nil
}

// LoadRunConfiguration loads a run configuration from a .toml, .yaml or .yml file.
// Values not present in the file keep their defaults.
func LoadRunConfiguration(path string) (*RunConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run config: %w", err)
	}

	cfg := DefaultRunConfiguration()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys in run config: %v", undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse run config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported run config format %q (use .toml, .yaml or .yml)", ext)
	}

	if cfg.Environment == nil {
		cfg.Environment = map[string]string{}
	}

	return cfg, nil
}

// Paths holds the configured paths
type Paths struct {
	StateDir   string
	JournalDir string
}

// DefaultPaths returns the default path configuration.
// The state directory follows $XDG_STATE_HOME, falling back to ~/.local/state.
func DefaultPaths() *Paths {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return NewPaths(filepath.Join(stateHome, "simrun"))
}

// NewPaths returns paths rooted at stateDir.
func NewPaths(stateDir string) *Paths {
	return &Paths{
		StateDir:   stateDir,
		JournalDir: filepath.Join(stateDir, "runs"),
	}
}
