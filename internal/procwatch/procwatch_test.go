package procwatch

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

func startSleep(t *testing.T, d string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", d)
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	return cmd
}

func TestWaitExit_ProcessExits(t *testing.T) {
	cmd := startSleep(t, "0.2")
	go func() { _ = cmd.Wait() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := New().WaitExit(ctx, cmd.Process.Pid); err != nil {
		t.Fatalf("WaitExit() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("WaitExit returned too early (%v)", elapsed)
	}
}

func TestWaitExit_AlreadyExited(t *testing.T) {
	cmd := startSleep(t, "0")
	_ = cmd.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := New().WaitExit(ctx, cmd.Process.Pid); err != nil {
		t.Errorf("WaitExit() on exited process: %v", err)
	}
}

func TestWaitExit_ContextCancelled(t *testing.T) {
	cmd := startSleep(t, "10")
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := New().WaitExit(ctx, cmd.Process.Pid)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestPollExit(t *testing.T) {
	cmd := startSleep(t, "0.1")
	go func() { _ = cmd.Wait() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pollExit(ctx, cmd.Process.Pid, 20*time.Millisecond); err != nil {
		t.Errorf("pollExit() error: %v", err)
	}
}

func TestWaitExit_InvalidPid(t *testing.T) {
	if err := New().WaitExit(context.Background(), 0); err == nil {
		t.Error("expected error for pid 0")
	}
}

func TestAlive(t *testing.T) {
	cmd := startSleep(t, "5")
	pid := cmd.Process.Pid

	if !Alive(pid) {
		t.Error("running process should be alive")
	}

	_ = cmd.Process.Kill()
	_ = cmd.Wait()

	if Alive(pid) {
		t.Error("reaped process should not be alive")
	}
	if Alive(0) || Alive(-1) {
		t.Error("non-positive pids are never alive")
	}
}
