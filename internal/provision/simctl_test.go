package provision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firefly-engineering/simrun/internal/system"
)

const deviceListJSON = `{
  "devices": {
    "com.apple.CoreSimulator.SimRuntime.iOS-17-5": [
      {
        "lastBootedAt": "2026-10-01T09:00:00Z",
        "dataPath": "/Users/ci/Library/Developer/CoreSimulator/Devices/AAAA/data",
        "udid": "AAAA",
        "isAvailable": true,
        "deviceTypeIdentifier": "com.apple.CoreSimulator.SimDeviceType.iPhone-15",
        "state": "Booted",
        "name": "simrun-1"
      }
    ],
    "com.apple.CoreSimulator.SimRuntime.iOS-16-4": [
      {
        "dataPath": "/Users/ci/Library/Developer/CoreSimulator/Devices/BBBB/data",
        "udid": "BBBB",
        "isAvailable": true,
        "deviceTypeIdentifier": "com.apple.CoreSimulator.SimDeviceType.iPhone-14",
        "state": "Shutdown",
        "name": "other"
      }
    ]
  }
}`

func newTestSimctl() (*SimctlService, *system.MockExecutor) {
	exec := system.NewMockExecutor()
	exec.AddResponse("xcrun simctl list devices -j", []byte(deviceListJSON), nil)
	return NewSimctlService(exec, "/Applications/Xcode.app/Contents/Developer"), exec
}

func TestSimctl_ListDevices(t *testing.T) {
	svc, exec := newTestSimctl()

	devices, err := svc.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}

	// Runtimes are sorted, so iOS-16-4 comes first
	if devices[0].UDID != "BBBB" || devices[0].State != StateShutdown {
		t.Errorf("unexpected first device: %+v", devices[0])
	}
	if devices[1].LastBootedAt != "2026-10-01T09:00:00Z" {
		t.Errorf("LastBootedAt = %q", devices[1].LastBootedAt)
	}

	cmd, _ := exec.LastCommand()
	if len(cmd.Env) != 1 || cmd.Env[0] != "DEVELOPER_DIR=/Applications/Xcode.app/Contents/Developer" {
		t.Errorf("expected DEVELOPER_DIR in env, got %v", cmd.Env)
	}
}

func TestSimctl_ListDevicesUnavailable(t *testing.T) {
	exec := system.NewMockExecutor()
	exec.AddResponse("xcrun simctl list", nil, errors.New("exit status 72"))
	svc := NewSimctlService(exec, "")

	_, err := svc.ListDevices(context.Background())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestSimctl_Device(t *testing.T) {
	svc, _ := newTestSimctl()

	dev, err := svc.Device(context.Background(), "AAAA")
	if err != nil {
		t.Fatalf("Device() error: %v", err)
	}
	if !dev.IsBooted() {
		t.Errorf("expected AAAA to be booted, got %s", dev.State)
	}

	dev, err = svc.Device(context.Background(), "ZZZZ")
	if err != nil || dev != nil {
		t.Errorf("Device(missing) = %v, %v; want nil, nil", dev, err)
	}
}

func TestSimctl_CreateDevice(t *testing.T) {
	svc, exec := newTestSimctl()
	exec.AddResponse("xcrun simctl create", []byte("AAAA\n"), nil)

	dev, err := svc.CreateDevice(context.Background(), CreateSpec{
		Name:       "simrun-1",
		DeviceType: "com.apple.CoreSimulator.SimDeviceType.iPhone-15",
		Runtime:    "com.apple.CoreSimulator.SimRuntime.iOS-17-5",
	})
	if err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}
	if dev.UDID != "AAAA" {
		t.Errorf("UDID = %q, want AAAA", dev.UDID)
	}

	created := exec.CommandsMatching("xcrun simctl create")
	if len(created) != 1 {
		t.Fatalf("expected one create command, got %d", len(created))
	}
	if got := created[0].Args; len(got) != 5 || got[2] != "simrun-1" {
		t.Errorf("unexpected create args: %v", got)
	}
}

func TestSimctl_CreateDeviceMissingAfterCreate(t *testing.T) {
	svc, exec := newTestSimctl()
	exec.AddResponse("xcrun simctl create", []byte("CCCC\n"), nil)

	if _, err := svc.CreateDevice(context.Background(), CreateSpec{Name: "x", DeviceType: "t"}); err == nil {
		t.Error("expected error when created device is not listed")
	}
}

func TestSimctl_Launch(t *testing.T) {
	svc, exec := newTestSimctl()
	exec.AddResponse("xcrun simctl launch", []byte("com.example.demo: 4242\n"), nil)

	pid, err := svc.Launch(context.Background(), "AAAA", "com.example.demo", LaunchOptions{
		Arguments:       []string{"-flag", "value"},
		Environment:     map[string]string{"XCInjectBundle": "/tmp/Tests.xctest"},
		WaitForDebugger: true,
		StdoutPath:      "tmp/run.fifo",
		StderrPath:      "tmp/run.fifo",
	})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	if pid != 4242 {
		t.Errorf("pid = %d, want 4242", pid)
	}

	cmd, _ := exec.LastCommand()
	line := cmd.String()
	for _, want := range []string{
		"--wait-for-debugger",
		"--stdout=/Users/ci/Library/Developer/CoreSimulator/Devices/AAAA/data/tmp/run.fifo",
		"--stderr=/Users/ci/Library/Developer/CoreSimulator/Devices/AAAA/data/tmp/run.fifo",
		"AAAA com.example.demo -flag value",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("launch command %q missing %q", line, want)
		}
	}

	foundEnv := false
	for _, kv := range cmd.Env {
		if kv == "SIMCTL_CHILD_XCInjectBundle=/tmp/Tests.xctest" {
			foundEnv = true
		}
	}
	if !foundEnv {
		t.Errorf("expected SIMCTL_CHILD_ environment, got %v", cmd.Env)
	}
}

func TestSimctl_LaunchRejectsBadOptions(t *testing.T) {
	svc, exec := newTestSimctl()

	_, err := svc.Launch(context.Background(), "AAAA", "com.example.demo", LaunchOptions{StdoutPath: "/abs"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(exec.CommandsMatching("xcrun simctl launch")) != 0 {
		t.Error("launch should not be issued for invalid options")
	}
}

func TestParseLaunchOutput(t *testing.T) {
	tests := []struct {
		out     string
		want    int
		wantErr bool
	}{
		{"com.example.demo: 123\n", 123, false},
		{"com.example.demo:99", 99, false},
		{"An error was encountered", 0, true},
		{"com.example.demo: abc", 0, true},
		{"com.example.demo: 0", 0, true},
	}

	for _, tt := range tests {
		got, err := parseLaunchOutput([]byte(tt.out))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLaunchOutput(%q) error = %v, wantErr %v", tt.out, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLaunchOutput(%q) = %d, want %d", tt.out, got, tt.want)
		}
	}
}

func TestSimctl_LifecycleCommands(t *testing.T) {
	svc, exec := newTestSimctl()
	ctx := context.Background()

	_ = svc.Boot(ctx, "AAAA", BootOptions{})
	_ = svc.Install(ctx, "AAAA", "/build/Demo.app")
	_ = svc.Uninstall(ctx, "AAAA", "com.example.demo")
	_ = svc.Shutdown(ctx, "AAAA")
	_ = svc.Delete(ctx, "AAAA")

	want := []string{
		"xcrun simctl boot AAAA",
		"xcrun simctl install AAAA /build/Demo.app",
		"xcrun simctl uninstall AAAA com.example.demo",
		"xcrun simctl shutdown AAAA",
		"xcrun simctl delete AAAA",
	}
	if len(exec.Commands) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(exec.Commands))
	}
	for i, w := range want {
		if got := exec.Commands[i].String(); got != w {
			t.Errorf("command %d = %q, want %q", i, got, w)
		}
	}
}
