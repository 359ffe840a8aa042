package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/system"
)

// childEnvPrefix marks variables that simctl forwards into the launched app.
const childEnvPrefix = "SIMCTL_CHILD_"

// SimctlService implements Service by driving `xcrun simctl`.
type SimctlService struct {
	// Exec runs the xcrun binary
	Exec system.CommandExecutor

	// XcrunPath is the xcrun binary to invoke
	XcrunPath string

	// DeveloperDir selects the toolchain; empty means the system default
	DeveloperDir string
}

// NewSimctlService creates a simctl-backed service.
func NewSimctlService(exec system.CommandExecutor, developerDir string) *SimctlService {
	if exec == nil {
		exec = system.DefaultExecutor()
	}
	return &SimctlService{
		Exec:         exec,
		XcrunPath:    "xcrun",
		DeveloperDir: developerDir,
	}
}

// Name returns the backend identifier
func (s *SimctlService) Name() string {
	return "simctl"
}

func (s *SimctlService) env(extra ...string) []string {
	var env []string
	if s.DeveloperDir != "" {
		env = append(env, "DEVELOPER_DIR="+s.DeveloperDir)
	}
	return append(env, extra...)
}

// simctl runs one simctl subcommand and returns its standard output
func (s *SimctlService) simctl(ctx context.Context, env []string, args ...string) ([]byte, error) {
	out, err := s.Exec.ExecuteWithEnv(ctx, env, s.XcrunPath, append([]string{"simctl"}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("simctl %s failed: %w", args[0], err)
	}
	return out, nil
}

// CreateDevice creates a new device and returns its description
func (s *SimctlService) CreateDevice(ctx context.Context, spec CreateSpec) (*Device, error) {
	logging.Debug("creating device", "name", spec.Name, "type", spec.DeviceType, "runtime", spec.Runtime)

	args := []string{"create", spec.Name, spec.DeviceType}
	if spec.Runtime != "" {
		args = append(args, spec.Runtime)
	}
	out, err := s.simctl(ctx, s.env(), args...)
	if err != nil {
		return nil, err
	}

	udid := strings.TrimSpace(string(out))
	if udid == "" {
		return nil, fmt.Errorf("simctl create returned no device identifier")
	}

	dev, err := s.Device(ctx, udid)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("created device %s is missing from the device set", udid)
	}
	return dev, nil
}

// simctlList mirrors the output of `simctl list devices -j`
type simctlList struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

type simctlDevice struct {
	UDID                 string `json:"udid"`
	Name                 string `json:"name"`
	State                string `json:"state"`
	DataPath             string `json:"dataPath"`
	DeviceTypeIdentifier string `json:"deviceTypeIdentifier"`
	LastBootedAt         string `json:"lastBootedAt"`
	IsAvailable          bool   `json:"isAvailable"`
}

// ListDevices returns every device in the default device set
func (s *SimctlService) ListDevices(ctx context.Context) ([]*Device, error) {
	out, err := s.simctl(ctx, s.env(), "list", "devices", "-j")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return parseDeviceList(out)
}

func parseDeviceList(data []byte) ([]*Device, error) {
	var list simctlList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: failed to parse device list: %v", ErrServiceUnavailable, err)
	}

	runtimes := make([]string, 0, len(list.Devices))
	for rt := range list.Devices {
		runtimes = append(runtimes, rt)
	}
	sort.Strings(runtimes)

	var devices []*Device
	for _, rt := range runtimes {
		for _, d := range list.Devices[rt] {
			devices = append(devices, &Device{
				UDID:         d.UDID,
				Name:         d.Name,
				State:        DeviceState(d.State),
				DeviceType:   d.DeviceTypeIdentifier,
				Runtime:      rt,
				DataPath:     d.DataPath,
				LastBootedAt: d.LastBootedAt,
			})
		}
	}
	return devices, nil
}

// Device looks up a device by identifier
func (s *SimctlService) Device(ctx context.Context, udid string) (*Device, error) {
	devices, err := s.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.UDID == udid {
			return d, nil
		}
	}
	return nil, nil
}

// Boot requests a boot
func (s *SimctlService) Boot(ctx context.Context, udid string, opts BootOptions) error {
	logging.Debug("requesting boot", "device", udid, "headless", opts.Headless)
	_, err := s.simctl(ctx, s.env(), "boot", udid)
	return err
}

// Shutdown requests a shutdown
func (s *SimctlService) Shutdown(ctx context.Context, udid string) error {
	logging.Debug("requesting shutdown", "device", udid)
	_, err := s.simctl(ctx, s.env(), "shutdown", udid)
	return err
}

// Delete removes the device from the device set
func (s *SimctlService) Delete(ctx context.Context, udid string) error {
	logging.Debug("deleting device", "device", udid)
	_, err := s.simctl(ctx, s.env(), "delete", udid)
	return err
}

// Install installs an application bundle
func (s *SimctlService) Install(ctx context.Context, udid, bundlePath string) error {
	logging.Debug("installing app", "device", udid, "bundle", bundlePath)
	_, err := s.simctl(ctx, s.env(), "install", udid, bundlePath)
	return err
}

// Uninstall removes an application
func (s *SimctlService) Uninstall(ctx context.Context, udid, bundleID string) error {
	logging.Debug("uninstalling app", "device", udid, "bundle_id", bundleID)
	_, err := s.simctl(ctx, s.env(), "uninstall", udid, bundleID)
	return err
}

// Launch starts an application and returns its process identifier
func (s *SimctlService) Launch(ctx context.Context, udid, bundleID string, opts LaunchOptions) (int, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	args := []string{"launch"}
	if opts.WaitForDebugger {
		args = append(args, "--wait-for-debugger")
	}

	if opts.StdoutPath != "" || opts.StderrPath != "" {
		dev, err := s.Device(ctx, udid)
		if err != nil {
			return 0, err
		}
		if dev == nil {
			return 0, fmt.Errorf("device %s not found", udid)
		}
		if opts.StdoutPath != "" {
			args = append(args, "--stdout="+filepath.Join(dev.DataPath, opts.StdoutPath))
		}
		if opts.StderrPath != "" {
			args = append(args, "--stderr="+filepath.Join(dev.DataPath, opts.StderrPath))
		}
	}

	args = append(args, udid, bundleID)
	args = append(args, opts.Arguments...)

	var childEnv []string
	for _, kv := range opts.EnvironmentList() {
		childEnv = append(childEnv, childEnvPrefix+kv)
	}

	logging.Debug("launching app", "device", udid, "bundle_id", bundleID, "args", len(opts.Arguments))
	out, err := s.simctl(ctx, s.env(childEnv...), args...)
	if err != nil {
		return 0, err
	}
	return parseLaunchOutput(out)
}

// parseLaunchOutput extracts the pid from "com.example.app: 1234"
func parseLaunchOutput(out []byte) (int, error) {
	line := strings.TrimSpace(string(out))
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return 0, fmt.Errorf("unexpected launch output: %q", line)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("unexpected launch output: %q", line)
	}
	return pid, nil
}

var _ Service = (*SimctlService)(nil)
