package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// MockService is an in-memory Service for testing.
// Devices converge on Device polls, so tests script boot and shutdown
// latency in numbers of polls.
type MockService struct {
	mu sync.Mutex

	// Devices tracks mock devices by UDID
	Devices map[string]*Device

	// Installed records installed bundle paths per device
	Installed map[string][]string

	// Errors allows injecting errors for specific operations
	Errors map[string]error

	// CallLog records all method calls for verification
	CallLog []MockCall

	// DataRoot holds per-device data directories
	DataRoot string

	// BootPolls is the number of Device polls after a boot request until
	// the device reports Booted. Zero boots immediately.
	BootPolls int

	// NeverBoot keeps booting devices in the Booting state forever
	NeverBoot bool

	// ShutdownPolls is the number of Device polls after a shutdown request
	// until the device reports Shutdown. Zero shuts down immediately.
	ShutdownPolls int

	// NeverShutdown keeps the device Booted after a shutdown request
	NeverShutdown bool

	// PushNotifications enables WatchState
	PushNotifications bool

	// Behavior scripts what launched processes do
	Behavior LaunchBehavior

	pending  map[string]*transition
	procs    map[int]*mockProcess
	watchers map[string][]chan DeviceState
	nextPid  int
}

// LaunchBehavior scripts a launched mock process.
type LaunchBehavior struct {
	// Output lines are written to the stdout redirection target
	Output []string

	// Linger is the delay between the last output line and exit
	Linger time.Duration

	// Hang keeps the process alive until Exit is called
	Hang bool
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []interface{}
}

type transition struct {
	target    DeviceState
	remaining int
	never     bool
}

type mockProcess struct {
	udid   string
	done   chan struct{}
	exited bool
}

// NewMockService creates a mock service keeping device data under dataRoot.
func NewMockService(dataRoot string) *MockService {
	if dataRoot == "" {
		dataRoot = filepath.Join(os.TempDir(), "simrun-mock")
	}
	return &MockService{
		Devices:   make(map[string]*Device),
		Installed: make(map[string][]string),
		Errors:    make(map[string]error),
		CallLog:   make([]MockCall, 0),
		DataRoot:  dataRoot,
		pending:   make(map[string]*transition),
		procs:     make(map[int]*mockProcess),
		watchers:  make(map[string][]chan DeviceState),
		nextPid:   1000,
	}
}

func (m *MockService) record(method string, args ...interface{}) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError sets an error to be returned for a specific operation
func (m *MockService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// AddDevice adds an existing device in the given state
func (m *MockService) AddDevice(name string, state DeviceState) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addDeviceLocked(CreateSpec{Name: name}, state)
}

func (m *MockService) addDeviceLocked(spec CreateSpec, state DeviceState) (*Device, error) {
	udid := strings.ToUpper(uuid.NewString())
	dataPath := filepath.Join(m.DataRoot, udid, "data")
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create device data directory: %w", err)
	}
	dev := &Device{
		UDID:       udid,
		Name:       spec.Name,
		State:      state,
		DeviceType: spec.DeviceType,
		Runtime:    spec.Runtime,
		DataPath:   dataPath,
	}
	if state == StateBooted {
		dev.LastBootedAt = time.Now().UTC().Format(time.RFC3339)
	}
	m.Devices[udid] = dev
	return dev, nil
}

// GetCalls returns all recorded calls
func (m *MockService) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.CallLog))
	copy(calls, m.CallLog)
	return calls
}

// GetCallsFor returns all calls for a specific method
func (m *MockService) GetCallsFor(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Name returns the backend identifier
func (m *MockService) Name() string {
	return "mock"
}

// CreateDevice creates a new device in the Shutdown state
func (m *MockService) CreateDevice(ctx context.Context, spec CreateSpec) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateDevice", spec)

	if err := m.Errors["CreateDevice"]; err != nil {
		return nil, err
	}

	dev, err := m.addDeviceLocked(spec, StateShutdown)
	if err != nil {
		return nil, err
	}
	copied := *dev
	return &copied, nil
}

// Device returns a snapshot of the device, advancing any pending transition
func (m *MockService) Device(ctx context.Context, udid string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Device", udid)

	if err := m.Errors["Device"]; err != nil {
		return nil, err
	}

	dev, ok := m.Devices[udid]
	if !ok {
		return nil, nil
	}

	if tr, ok := m.pending[udid]; ok && !tr.never {
		tr.remaining--
		if tr.remaining <= 0 {
			delete(m.pending, udid)
			m.setStateLocked(dev, tr.target)
		}
	}

	copied := *dev
	return &copied, nil
}

// ListDevices returns snapshots of all devices
func (m *MockService) ListDevices(ctx context.Context) ([]*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListDevices")

	if err := m.Errors["ListDevices"]; err != nil {
		return nil, err
	}

	devices := make([]*Device, 0, len(m.Devices))
	for _, dev := range m.Devices {
		copied := *dev
		devices = append(devices, &copied)
	}
	return devices, nil
}

// Boot moves the device to Booting and schedules the Booted transition
func (m *MockService) Boot(ctx context.Context, udid string, opts BootOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Boot", udid, opts)

	if err := m.Errors["Boot"]; err != nil {
		return err
	}

	dev, ok := m.Devices[udid]
	if !ok {
		return fmt.Errorf("invalid device: %s", udid)
	}
	if dev.State == StateBooted {
		return fmt.Errorf("unable to boot device in current state: %s", dev.State)
	}

	m.bootLocked(dev)
	return nil
}

// FrontEndBoot boots the device the way an interactive front-end does,
// without recording a Boot call. Unknown or booted devices are ignored.
func (m *MockService) FrontEndBoot(udid string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.Devices[udid]
	if !ok || dev.State == StateBooted {
		return
	}
	m.bootLocked(dev)
}

func (m *MockService) bootLocked(dev *Device) {
	switch {
	case m.NeverBoot:
		m.setStateLocked(dev, StateBooting)
		m.pending[dev.UDID] = &transition{target: StateBooted, never: true}
	case m.BootPolls <= 0:
		m.setStateLocked(dev, StateBooted)
	default:
		m.setStateLocked(dev, StateBooting)
		m.pending[dev.UDID] = &transition{target: StateBooted, remaining: m.BootPolls}
	}
}

// Shutdown stops the device's processes and schedules the Shutdown transition
func (m *MockService) Shutdown(ctx context.Context, udid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Shutdown", udid)

	if err := m.Errors["Shutdown"]; err != nil {
		return err
	}

	dev, ok := m.Devices[udid]
	if !ok {
		return fmt.Errorf("invalid device: %s", udid)
	}
	if dev.State == StateShutdown {
		return fmt.Errorf("unable to shutdown device in current state: %s", dev.State)
	}

	for pid, p := range m.procs {
		if p.udid == udid {
			m.exitLocked(pid)
		}
	}

	delete(m.pending, udid)
	switch {
	case m.NeverShutdown:
	case m.ShutdownPolls <= 0:
		m.setStateLocked(dev, StateShutdown)
	default:
		m.setStateLocked(dev, StateShuttingDown)
		m.pending[udid] = &transition{target: StateShutdown, remaining: m.ShutdownPolls}
	}
	return nil
}

// Delete removes the device and its data directory
func (m *MockService) Delete(ctx context.Context, udid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Delete", udid)

	if err := m.Errors["Delete"]; err != nil {
		return err
	}

	if _, ok := m.Devices[udid]; !ok {
		return fmt.Errorf("invalid device: %s", udid)
	}
	delete(m.Devices, udid)
	delete(m.pending, udid)
	delete(m.Installed, udid)
	return os.RemoveAll(filepath.Join(m.DataRoot, udid))
}

// Install records the bundle as installed
func (m *MockService) Install(ctx context.Context, udid, bundlePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Install", udid, bundlePath)

	if err := m.Errors["Install"]; err != nil {
		return err
	}

	dev, ok := m.Devices[udid]
	if !ok {
		return fmt.Errorf("invalid device: %s", udid)
	}
	if dev.State != StateBooted {
		return fmt.Errorf("unable to install on device in current state: %s", dev.State)
	}
	m.Installed[udid] = append(m.Installed[udid], bundlePath)
	return nil
}

// Uninstall records the removal
func (m *MockService) Uninstall(ctx context.Context, udid, bundleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Uninstall", udid, bundleID)

	if err := m.Errors["Uninstall"]; err != nil {
		return err
	}
	if _, ok := m.Devices[udid]; !ok {
		return fmt.Errorf("invalid device: %s", udid)
	}
	return nil
}

// Launch starts a scripted process on a booted device
func (m *MockService) Launch(ctx context.Context, udid, bundleID string, opts LaunchOptions) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Launch", udid, bundleID, opts)

	if err := m.Errors["Launch"]; err != nil {
		return 0, err
	}
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	dev, ok := m.Devices[udid]
	if !ok {
		return 0, fmt.Errorf("invalid device: %s", udid)
	}
	if dev.State != StateBooted {
		return 0, fmt.Errorf("unable to launch on device in current state: %s", dev.State)
	}

	m.nextPid++
	pid := m.nextPid
	proc := &mockProcess{udid: udid, done: make(chan struct{})}
	m.procs[pid] = proc

	behavior := m.Behavior
	switch {
	case opts.Environment[EnvForceCrash] != "":
		behavior = LaunchBehavior{}
	case opts.Environment[EnvForceHang] != "":
		behavior = LaunchBehavior{Hang: true}
	}

	var stdout string
	if opts.StdoutPath != "" {
		stdout = filepath.Join(dev.DataPath, opts.StdoutPath)
	}
	go m.run(pid, stdout, behavior)

	return pid, nil
}

func (m *MockService) run(pid int, stdout string, b LaunchBehavior) {
	if stdout != "" && len(b.Output) > 0 {
		if f, err := os.OpenFile(stdout, os.O_WRONLY|os.O_APPEND|syscall.O_NONBLOCK, 0); err == nil {
			for _, line := range b.Output {
				_, _ = f.WriteString(line + "\n")
			}
			_ = f.Close()
		}
	}
	if b.Hang {
		return
	}
	if b.Linger > 0 {
		time.Sleep(b.Linger)
	}
	m.Exit(pid)
}

// Exit terminates a launched mock process
func (m *MockService) Exit(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitLocked(pid)
}

func (m *MockService) exitLocked(pid int) {
	if p, ok := m.procs[pid]; ok && !p.exited {
		p.exited = true
		close(p.done)
	}
}

// WaitExit blocks until the mock process exits or ctx is done.
// Unknown pids are treated as already exited.
func (m *MockService) WaitExit(ctx context.Context, pid int) error {
	m.mu.Lock()
	p, ok := m.procs[pid]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WatchState streams state changes when PushNotifications is enabled
func (m *MockService) WatchState(ctx context.Context, udid string) (<-chan DeviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.PushNotifications {
		return nil, ErrWatchUnsupported
	}

	ch := make(chan DeviceState, 16)
	m.watchers[udid] = append(m.watchers[udid], ch)

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		watchers := m.watchers[udid]
		for i, w := range watchers {
			if w == ch {
				m.watchers[udid] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// setStateLocked updates the state and notifies watchers
func (m *MockService) setStateLocked(dev *Device, state DeviceState) {
	dev.State = state
	if state == StateBooted {
		dev.LastBootedAt = time.Now().UTC().Format(time.RFC3339)
	}
	for _, ch := range m.watchers[dev.UDID] {
		select {
		case ch <- state:
		default:
		}
	}
}

var (
	_ Service      = (*MockService)(nil)
	_ StateWatcher = (*MockService)(nil)
)
