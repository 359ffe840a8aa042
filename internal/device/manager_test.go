package device

import (
	"context"
	"testing"
	"time"

	"github.com/firefly-engineering/simrun/internal/audit"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/provision"
	"github.com/firefly-engineering/simrun/internal/system"
)

type testManager struct {
	*Manager
	svc     *provision.MockService
	exec    *system.MockExecutor
	journal *audit.Journal
}

func newTestManager(t *testing.T, headless bool, opts ...Option) *testManager {
	t.Helper()
	svc := provision.NewMockService(t.TempDir())
	exec := system.NewMockExecutor()
	exec.OnStart = func(p *system.MockProcess) {
		if udid, ok := p.Arg("-CurrentDeviceUDID"); ok {
			svc.FrontEndBoot(udid)
		}
	}
	journal := audit.NewJournal(t.TempDir())

	cfg := config.DefaultRunConfiguration()
	cfg.DeviceType = "com.apple.CoreSimulator.SimDeviceType.iPhone-15"
	cfg.Runtime = "com.apple.CoreSimulator.SimRuntime.iOS-17-5"
	cfg.Headless = headless

	all := append([]Option{
		WithExecutor(exec),
		WithJournal(journal),
		WithBootPolicy(WaitPolicy{Interval: 10 * time.Millisecond, Attempts: 100}),
		WithShutdownPolicy(WaitPolicy{Interval: 10 * time.Millisecond, Attempts: 20}),
	}, opts...)

	return &testManager{
		Manager: NewManager(svc, cfg, all...),
		svc:     svc,
		exec:    exec,
		journal: journal,
	}
}

func TestManager_CreateAndFindRoundTrip(t *testing.T) {
	m := newTestManager(t, true)
	ctx := context.Background()

	h, err := m.CreateDevice(ctx, "")
	if err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}
	if !h.Created {
		t.Error("created handle should be marked Created")
	}
	if h.Name == "" {
		t.Error("expected a generated name")
	}

	found, err := m.FindDevice(ctx, h.UDID)
	if err != nil {
		t.Fatalf("FindDevice() error: %v", err)
	}
	if found == nil || found.UDID != h.UDID || found.DataPath != h.DataPath {
		t.Errorf("FindDevice() = %+v, want device %s", found, h.UDID)
	}
	if found.Created {
		t.Error("looked-up handle should not be marked Created")
	}

	calls := m.svc.GetCallsFor("CreateDevice")
	if len(calls) != 1 {
		t.Fatalf("expected 1 CreateDevice call, got %d", len(calls))
	}
	spec := calls[0].Args[0].(provision.CreateSpec)
	if spec.DeviceType != "com.apple.CoreSimulator.SimDeviceType.iPhone-15" {
		t.Errorf("device type = %q", spec.DeviceType)
	}

	events, _ := m.journal.Events(h.UDID)
	if len(events) != 1 || events[0].Type != audit.EventCreate {
		t.Errorf("journal = %+v", events)
	}
}

func TestManager_FindDeviceAbsent(t *testing.T) {
	m := newTestManager(t, true)

	h, err := m.FindDevice(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("FindDevice() error: %v", err)
	}
	if h != nil {
		t.Errorf("expected nil handle, got %+v", h)
	}
}

func TestManager_CreateDeviceFailure(t *testing.T) {
	m := newTestManager(t, true)
	m.svc.SetError("CreateDevice", provision.ErrServiceUnavailable)

	_, err := m.CreateDevice(context.Background(), "named")
	if !errors.HasCode(err, errors.ExitProvisioning) {
		t.Errorf("expected provisioning error, got %v", err)
	}
}

func TestManager_HeadlessBootConvergesOnFifthPoll(t *testing.T) {
	m := newTestManager(t, true, WithBootPolicy(WaitPolicy{Interval: 100 * time.Millisecond, Attempts: 1200}))
	m.svc.BootPolls = 5
	ctx := context.Background()

	h, err := m.CreateDevice(ctx, "boot-test")
	if err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}

	start := time.Now()
	if err := m.Boot(ctx, h); err != nil {
		t.Fatalf("Boot() error: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 450*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("boot took %v, want about 500ms", elapsed)
	}
	if h.State() != provision.StateBooted {
		t.Errorf("handle state = %s, want Booted", h.State())
	}
	if len(m.exec.Started) != 0 {
		t.Error("headless boot must not start a front-end")
	}
}

func TestManager_BootTimeoutTerminatesFrontEnd(t *testing.T) {
	m := newTestManager(t, false, WithBootPolicy(WaitPolicy{Interval: 5 * time.Millisecond, Attempts: 10}))
	m.svc.NeverBoot = true
	ctx := context.Background()

	h, _ := m.CreateDevice(ctx, "stuck")

	err := m.Boot(ctx, h)
	if !errors.HasCode(err, errors.ExitBootTimeout) {
		t.Fatalf("expected boot timeout, got %v", err)
	}

	if len(m.exec.Started) != 1 {
		t.Fatalf("expected one front-end start, got %d", len(m.exec.Started))
	}
	fe := m.exec.Started[0]
	if !fe.Terminated() {
		t.Error("front-end should be terminated after boot timeout")
	}
	if fe.Name != FrontEndPath(config.DefaultDeveloperDir) {
		t.Errorf("front-end binary = %q", fe.Name)
	}
	if h.FrontEnd() != nil {
		t.Error("handle should drop the terminated front-end")
	}
	if got := m.svc.GetCallsFor("Boot"); len(got) != 0 {
		t.Errorf("front-end boot should not send a boot request, got %d", len(got))
	}
}

func TestManager_BootWithFrontEnd(t *testing.T) {
	m := newTestManager(t, false)
	m.svc.BootPolls = 2
	ctx := context.Background()

	h, _ := m.CreateDevice(ctx, "interactive")
	if err := m.Boot(ctx, h); err != nil {
		t.Fatalf("Boot() error: %v", err)
	}

	if m.svc.Devices[h.UDID].State != provision.StateBooted {
		t.Errorf("state = %s, want Booted", m.svc.Devices[h.UDID].State)
	}
	if len(m.exec.Started) != 1 || m.exec.Started[0].Terminated() {
		t.Fatal("front-end should be started and left running")
	}
	if udid, _ := m.exec.Started[0].Arg("-CurrentDeviceUDID"); udid != h.UDID {
		t.Errorf("front-end device = %q, want %q", udid, h.UDID)
	}
	if h.FrontEnd() == nil {
		t.Error("handle should keep the front-end")
	}
	if got := m.svc.GetCallsFor("Boot"); len(got) != 0 {
		t.Errorf("front-end boot should not send a boot request, got %d", len(got))
	}
}

func TestManager_BootRequestErrorIsInformational(t *testing.T) {
	m := newTestManager(t, true)
	ctx := context.Background()

	dev, _ := m.svc.AddDevice("already-booted", provision.StateBooted)
	h, _ := m.FindDevice(ctx, dev.UDID)

	// Boot on a booted device errors, but the state says Booted
	if err := m.Boot(ctx, h); err != nil {
		t.Errorf("Boot() error: %v", err)
	}
}

func TestManager_BootWithPushNotification(t *testing.T) {
	m := newTestManager(t, true, WithBootPolicy(WaitPolicy{Interval: 5 * time.Second, Attempts: 2}))
	m.svc.PushNotifications = true
	ctx := context.Background()

	h, _ := m.CreateDevice(ctx, "push")

	done := make(chan error, 1)
	go func() { done <- m.WaitForBooted(ctx, h) }()

	time.Sleep(50 * time.Millisecond)
	if err := m.svc.Boot(ctx, h.UDID, provision.BootOptions{}); err != nil {
		t.Fatalf("Boot() error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForBooted() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("push notification did not cut the wait short")
	}
}

func TestManager_AttachToShutdownDevice(t *testing.T) {
	m := newTestManager(t, false)
	ctx := context.Background()

	dev, _ := m.svc.AddDevice("idle", provision.StateShutdown)
	h, _ := m.FindDevice(ctx, dev.UDID)

	err := m.AttachToRunningDevice(ctx, h)
	if !errors.HasCode(err, errors.ExitDeviceNotBooted) {
		t.Fatalf("expected not-booted error, got %v", err)
	}
	if len(m.exec.Started) != 0 {
		t.Error("attach must not launch a front-end")
	}
	if len(m.exec.Commands) != 0 {
		t.Errorf("attach to a shutdown device should not scan processes, ran %v", m.exec.Commands)
	}
	if got := m.svc.GetCallsFor("Boot"); len(got) != 0 {
		t.Error("attach must not change device state")
	}
}

func TestManager_AttachRequiresFrontEnd(t *testing.T) {
	m := newTestManager(t, false)
	ctx := context.Background()

	dev, _ := m.svc.AddDevice("running", provision.StateBooted)
	h, _ := m.FindDevice(ctx, dev.UDID)

	m.exec.AddResponse("ps", []byte("  1 /sbin/launchd\n"), nil)
	if err := m.AttachToRunningDevice(ctx, h); !errors.HasCode(err, errors.ExitNoFrontEnd) {
		t.Errorf("expected no-front-end error, got %v", err)
	}

	ps := "  1 /sbin/launchd\n  812 " + FrontEndPath(config.DefaultDeveloperDir) + " -CurrentDeviceUDID " + dev.UDID + "\n"
	m.exec.AddResponse("ps", []byte(ps), nil)
	if err := m.AttachToRunningDevice(ctx, h); err != nil {
		t.Errorf("AttachToRunningDevice() error: %v", err)
	}
}

func TestManager_AttachHeadlessSkipsFrontEnd(t *testing.T) {
	m := newTestManager(t, true)
	ctx := context.Background()

	dev, _ := m.svc.AddDevice("running", provision.StateBooted)
	h, _ := m.FindDevice(ctx, dev.UDID)

	if err := m.AttachToRunningDevice(ctx, h); err != nil {
		t.Errorf("AttachToRunningDevice() error: %v", err)
	}
	if len(m.exec.Commands) != 0 {
		t.Error("headless attach should not scan processes")
	}
}

func TestManager_AttachMissingDevice(t *testing.T) {
	m := newTestManager(t, true)
	h := &Handle{UDID: "GONE"}

	if err := m.AttachToRunningDevice(context.Background(), h); !errors.HasCode(err, errors.ExitDeviceNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestManager_ShutdownNeverConverges(t *testing.T) {
	m := newTestManager(t, true)
	m.svc.NeverShutdown = true
	ctx := context.Background()

	dev, _ := m.svc.AddDevice("sticky", provision.StateBooted)
	h, _ := m.FindDevice(ctx, dev.UDID)

	if err := m.Shutdown(ctx, h); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if m.WaitForShutdown(ctx, h) {
		t.Fatal("WaitForShutdown() should report false")
	}

	if err := m.Delete(ctx, h); err != nil {
		t.Errorf("Delete() error: %v", err)
	}
	if len(m.svc.GetCallsFor("Delete")) != 1 {
		t.Error("delete should still be invoked")
	}
}

func TestManager_ShutdownConverges(t *testing.T) {
	m := newTestManager(t, true)
	m.svc.ShutdownPolls = 3
	ctx := context.Background()

	dev, _ := m.svc.AddDevice("normal", provision.StateBooted)
	h, _ := m.FindDevice(ctx, dev.UDID)

	_ = m.Shutdown(ctx, h)
	if !m.WaitForShutdown(ctx, h) {
		t.Error("WaitForShutdown() should report true")
	}
	if h.State() != provision.StateShutdown {
		t.Errorf("state = %s, want Shutdown", h.State())
	}
}

func TestManager_DeleteFailure(t *testing.T) {
	m := newTestManager(t, true)
	ctx := context.Background()

	dev, _ := m.svc.AddDevice("undeletable", provision.StateShutdown)
	h, _ := m.FindDevice(ctx, dev.UDID)
	m.svc.SetError("Delete", provision.ErrServiceUnavailable)

	if err := m.Delete(ctx, h); !errors.HasCode(err, errors.ExitDeleteFailed) {
		t.Errorf("expected delete error, got %v", err)
	}
}

func TestWaitPolicy_Backoff(t *testing.T) {
	p := WaitPolicy{Interval: 100 * time.Millisecond, Backoff: 2, MaxInterval: 300 * time.Millisecond}

	d := p.next(p.Interval)
	if d != 200*time.Millisecond {
		t.Errorf("first backoff = %v, want 200ms", d)
	}
	if d = p.next(d); d != 300*time.Millisecond {
		t.Errorf("capped backoff = %v, want 300ms", d)
	}

	flat := WaitPolicy{Interval: time.Second}
	if got := flat.next(time.Second); got != time.Second {
		t.Errorf("no backoff = %v, want 1s", got)
	}
}
