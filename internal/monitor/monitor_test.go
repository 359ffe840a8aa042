package monitor

import (
	"bytes"
	"testing"

	"github.com/firefly-engineering/simrun/internal/events"
)

func feed(t *Tracker, kinds ...events.Event) {
	for _, e := range kinds {
		t.HandleEvent(e)
	}
}

func TestTracker_New(t *testing.T) {
	tr := New()
	if tr.IsExecutionComplete() {
		t.Error("new tracker should not be complete")
	}
	if tr.ExitStatus() != StatusUnknown {
		t.Errorf("ExitStatus() = %s, want Unknown", tr.ExitStatus())
	}
	if tr.IsApplicationStarted() || tr.DidTestsStart() {
		t.Error("new tracker should not report activity")
	}
}

func TestTracker_Classification(t *testing.T) {
	tests := []struct {
		name   string
		events []events.Event
		want   ExitStatus
	}{
		{
			name: "all passed",
			events: []events.Event{
				{Kind: events.KindAppStarted},
				{Kind: events.KindBeginTests},
				{Kind: events.KindEndTest, Test: "a", Result: events.ResultSuccess},
				{Kind: events.KindEndTests, Passed: 1},
				{Kind: events.KindProcessExited},
			},
			want: StatusAllTestsPassed,
		},
		{
			name: "failure counted from end-test",
			events: []events.Event{
				{Kind: events.KindBeginTests},
				{Kind: events.KindEndTest, Test: "a", Result: events.ResultFailure},
				{Kind: events.KindEndTests},
			},
			want: StatusSomeTestsFailed,
		},
		{
			name: "failure counted from summary",
			events: []events.Event{
				{Kind: events.KindBeginTests},
				{Kind: events.KindEndTests, Passed: 3, Failed: 1},
			},
			want: StatusSomeTestsFailed,
		},
		{
			name: "crash mid tests",
			events: []events.Event{
				{Kind: events.KindAppStarted},
				{Kind: events.KindBeginTest, Test: "a"},
				{Kind: events.KindProcessExited},
			},
			want: StatusAppCrashed,
		},
		{
			name: "started but never reported tests",
			events: []events.Event{
				{Kind: events.KindAppStarted},
				{Kind: events.KindOutput, Line: "hello"},
				{Kind: events.KindProcessExited},
			},
			want: StatusLaunchedButNeverReportedTests,
		},
		{
			name:   "crash before start",
			events: []events.Event{{Kind: events.KindProcessExited}},
			want:   StatusAppCrashed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New()
			feed(tr, tt.events...)
			if !tr.IsExecutionComplete() {
				t.Fatal("expected complete")
			}
			if got := tr.ExitStatus(); got != tt.want {
				t.Errorf("ExitStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTracker_NotCompleteWhileRunning(t *testing.T) {
	tr := New()
	feed(tr,
		events.Event{Kind: events.KindAppStarted, PID: 77},
		events.Event{Kind: events.KindBeginTests},
		events.Event{Kind: events.KindEndTest, Result: events.ResultSuccess},
	)

	if tr.IsExecutionComplete() {
		t.Error("should not be complete before end-tests or exit")
	}
	if tr.ExitStatus() != StatusUnknown {
		t.Errorf("ExitStatus() = %s, want Unknown", tr.ExitStatus())
	}
	if !tr.IsApplicationStarted() || !tr.DidTestsStart() {
		t.Error("expected started and tests started")
	}
	if tr.Summary().PID != 77 {
		t.Errorf("PID from app-started = %d, want 77", tr.Summary().PID)
	}
}

func TestTracker_StatusIsSticky(t *testing.T) {
	tr := New()
	feed(tr,
		events.Event{Kind: events.KindBeginTests},
		events.Event{Kind: events.KindEndTests, Passed: 2},
		events.Event{Kind: events.KindProcessExited},
	)
	tr.MarkTimedOut()

	if got := tr.ExitStatus(); got != StatusAllTestsPassed {
		t.Errorf("ExitStatus() = %s, want AllTestsPassed", got)
	}
}

func TestTracker_MarkTimedOut(t *testing.T) {
	tr := New()
	feed(tr, events.Event{Kind: events.KindAppStarted})
	tr.MarkTimedOut()

	if got := tr.ExitStatus(); got != StatusTimedOut {
		t.Errorf("ExitStatus() = %s, want TimedOut", got)
	}
	if got := tr.ExitStatus(); got.IsTerminalSuccess() {
		t.Error("TimedOut must not be terminal success")
	}
}

func TestTracker_ProcessIDFromLauncherWins(t *testing.T) {
	tr := New()
	tr.SetTarget("AAAA", "com.example.demo")
	tr.SetProcessID(10)
	feed(tr, events.Event{Kind: events.KindAppStarted, PID: 20})

	if got := tr.Summary().PID; got != 10 {
		t.Errorf("PID = %d, want 10", got)
	}
}

func TestTracker_OutputAndHook(t *testing.T) {
	var out bytes.Buffer
	var seen []events.Kind
	tr := New(
		WithOutput(&out),
		WithEventHook(func(e events.Event) { seen = append(seen, e.Kind) }),
	)

	feed(tr,
		events.Event{Kind: events.KindOutput, Line: "line one"},
		events.Event{Kind: events.KindOutput, Line: "line two"},
		events.Event{Kind: events.KindProcessExited},
	)

	if out.String() != "line one\nline two\n" {
		t.Errorf("output = %q", out.String())
	}
	if len(seen) != 3 {
		t.Errorf("hook saw %d events, want 3", len(seen))
	}
	if tr.Summary().OutputLines != 2 {
		t.Errorf("OutputLines = %d, want 2", tr.Summary().OutputLines)
	}
}

func TestExitStatus_IsTerminalSuccess(t *testing.T) {
	tests := []struct {
		status ExitStatus
		want   bool
	}{
		{StatusAllTestsPassed, true},
		{StatusSomeTestsFailed, true},
		{StatusAppCrashed, false},
		{StatusLaunchedButNeverReportedTests, false},
		{StatusTimedOut, false},
		{StatusUnknown, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminalSuccess(); got != tt.want {
			t.Errorf("%s.IsTerminalSuccess() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
