package provision

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestMockService_BootConvergesAfterPolls(t *testing.T) {
	m := NewMockService(t.TempDir())
	m.BootPolls = 3
	ctx := context.Background()

	dev, err := m.CreateDevice(ctx, CreateSpec{Name: "d"})
	if err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}
	if dev.State != StateShutdown {
		t.Fatalf("new device state = %s, want Shutdown", dev.State)
	}

	if err := m.Boot(ctx, dev.UDID, BootOptions{}); err != nil {
		t.Fatalf("Boot() error: %v", err)
	}

	for i := 1; i <= 3; i++ {
		got, _ := m.Device(ctx, dev.UDID)
		want := StateBooting
		if i == 3 {
			want = StateBooted
		}
		if got.State != want {
			t.Errorf("poll %d: state = %s, want %s", i, got.State, want)
		}
	}
}

func TestMockService_NeverBoot(t *testing.T) {
	m := NewMockService(t.TempDir())
	m.NeverBoot = true
	ctx := context.Background()

	dev, _ := m.CreateDevice(ctx, CreateSpec{Name: "d"})
	_ = m.Boot(ctx, dev.UDID, BootOptions{})

	for i := 0; i < 10; i++ {
		got, _ := m.Device(ctx, dev.UDID)
		if got.State != StateBooting {
			t.Fatalf("poll %d: state = %s, want Booting", i, got.State)
		}
	}
}

func TestMockService_FrontEndBoot(t *testing.T) {
	m := NewMockService(t.TempDir())
	m.BootPolls = 2
	ctx := context.Background()

	dev, _ := m.CreateDevice(ctx, CreateSpec{Name: "d"})
	m.FrontEndBoot(dev.UDID)
	m.FrontEndBoot("unknown")

	got, _ := m.Device(ctx, dev.UDID)
	if got.State != StateBooting {
		t.Fatalf("state = %s, want Booting", got.State)
	}
	got, _ = m.Device(ctx, dev.UDID)
	if got.State != StateBooted {
		t.Fatalf("state = %s, want Booted", got.State)
	}
	if calls := m.GetCallsFor("Boot"); len(calls) != 0 {
		t.Errorf("front-end boot recorded %d Boot calls", len(calls))
	}

	m.FrontEndBoot(dev.UDID)
	if got, _ := m.Device(ctx, dev.UDID); got.State != StateBooted {
		t.Errorf("booted device changed state to %s", got.State)
	}
}

func TestMockService_ShutdownAndDelete(t *testing.T) {
	m := NewMockService(t.TempDir())
	ctx := context.Background()

	dev, _ := m.AddDevice("d", StateBooted)

	if err := m.Shutdown(ctx, dev.UDID); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	got, _ := m.Device(ctx, dev.UDID)
	if got.State != StateShutdown {
		t.Errorf("state after shutdown = %s", got.State)
	}

	if err := m.Shutdown(ctx, dev.UDID); err == nil {
		t.Error("second shutdown should fail")
	}

	if err := m.Delete(ctx, dev.UDID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if got, _ := m.Device(ctx, dev.UDID); got != nil {
		t.Error("device should be gone after delete")
	}
	if _, err := os.Stat(dev.DataPath); !os.IsNotExist(err) {
		t.Errorf("data path should be removed, stat err = %v", err)
	}
}

func TestMockService_ErrorInjection(t *testing.T) {
	m := NewMockService(t.TempDir())
	injected := errors.New("boom")
	m.SetError("CreateDevice", injected)

	if _, err := m.CreateDevice(context.Background(), CreateSpec{Name: "d"}); !errors.Is(err, injected) {
		t.Errorf("expected injected error, got %v", err)
	}
	if calls := m.GetCallsFor("CreateDevice"); len(calls) != 1 {
		t.Errorf("expected 1 CreateDevice call, got %d", len(calls))
	}
}

func TestMockService_LaunchRequiresBooted(t *testing.T) {
	m := NewMockService(t.TempDir())
	dev, _ := m.AddDevice("d", StateShutdown)

	if _, err := m.Launch(context.Background(), dev.UDID, "com.example.demo", LaunchOptions{}); err == nil {
		t.Error("launch on a shutdown device should fail")
	}
}

func TestMockService_LaunchWritesOutputAndExits(t *testing.T) {
	m := NewMockService(t.TempDir())
	m.Behavior = LaunchBehavior{Output: []string{"hello", "world"}}
	ctx := context.Background()

	dev, _ := m.AddDevice("d", StateBooted)
	fifo := filepath.Join(dev.DataPath, "out.fifo")
	if err := syscall.Mkfifo(fifo, 0640); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	reader, err := os.OpenFile(fifo, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open fifo: %v", err)
	}
	defer reader.Close()

	pid, err := m.Launch(ctx, dev.UDID, "com.example.demo", LaunchOptions{StdoutPath: "out.fifo"})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.WaitExit(waitCtx, pid); err != nil {
		t.Fatalf("WaitExit() error: %v", err)
	}

	scanner := bufio.NewScanner(reader)
	var lines []string
	for len(lines) < 2 && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 || lines[0] != "hello" || lines[1] != "world" {
		t.Errorf("read lines %v", lines)
	}
}

func TestMockService_ForcedHang(t *testing.T) {
	m := NewMockService(t.TempDir())
	dev, _ := m.AddDevice("d", StateBooted)

	pid, err := m.Launch(context.Background(), dev.UDID, "com.example.demo", LaunchOptions{
		Environment: map[string]string{EnvForceHang: "YES"},
	})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.WaitExit(ctx, pid); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("hung process should not exit, got %v", err)
	}

	m.Exit(pid)
	if err := m.WaitExit(context.Background(), pid); err != nil {
		t.Errorf("WaitExit after Exit: %v", err)
	}
}

func TestMockService_WatchState(t *testing.T) {
	m := NewMockService(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev, _ := m.AddDevice("d", StateShutdown)

	if _, err := m.WatchState(ctx, dev.UDID); !errors.Is(err, ErrWatchUnsupported) {
		t.Fatalf("expected ErrWatchUnsupported, got %v", err)
	}

	m.PushNotifications = true
	ch, err := m.WatchState(ctx, dev.UDID)
	if err != nil {
		t.Fatalf("WatchState() error: %v", err)
	}

	_ = m.Boot(ctx, dev.UDID, BootOptions{})

	select {
	case st := <-ch:
		if st != StateBooted {
			t.Errorf("notified state = %s, want Booted", st)
		}
	case <-time.After(time.Second):
		t.Fatal("no state notification")
	}
}
