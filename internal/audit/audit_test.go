package audit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestJournal_LogAndEvents(t *testing.T) {
	journal := NewJournal(t.TempDir())
	now := time.Now().Truncate(time.Millisecond)

	events := []Event{
		{Timestamp: now, Type: EventCreate, Device: "AAAA", Details: "name=simrun-1"},
		{Timestamp: now.Add(time.Second), Type: EventBoot, Device: "AAAA"},
		{Timestamp: now.Add(2 * time.Second), Type: EventLaunch, Device: "AAAA", Details: "pid=4242"},
		{Timestamp: now.Add(3 * time.Second), Type: EventFinish, Device: "AAAA", Details: "AllTestsPassed"},
	}

	for _, e := range events {
		if err := journal.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	result, err := journal.Events("AAAA")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(result) != len(events) {
		t.Fatalf("got %d events, want %d", len(result), len(events))
	}
	for i, e := range result {
		if e.Type != events[i].Type || e.Details != events[i].Details {
			t.Errorf("event %d = %+v, want %+v", i, e, events[i])
		}
	}
}

func TestJournal_EventsEmpty(t *testing.T) {
	journal := NewJournal(t.TempDir())

	result, err := journal.Events("nonexistent")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("got %d events, want 0", len(result))
	}
}

func TestJournal_Record(t *testing.T) {
	journal := NewJournal(t.TempDir())

	if err := journal.Record(EventError, "BBBB", "booting", "boot timed out"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	events, err := journal.Events("BBBB")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Type != EventError || e.Stage != "booting" || e.Details != "boot timed out" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp should be set automatically")
	}
}

func TestJournal_RequiresDevice(t *testing.T) {
	journal := NewJournal(t.TempDir())
	if err := journal.Record(EventCreate, "", "", ""); err == nil {
		t.Error("expected error for empty device")
	}
}

func TestJournal_PathConfined(t *testing.T) {
	dir := t.TempDir()
	journal := NewJournal(filepath.Join(dir, "runs"))

	if err := journal.Record(EventCreate, "../../escape", "", ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.jsonl")); !os.IsNotExist(err) {
		t.Error("journal escaped its directory")
	}
}

func TestJournal_Devices(t *testing.T) {
	journal := NewJournal(t.TempDir())
	_ = journal.Record(EventCreate, "CCCC", "", "")
	_ = journal.Record(EventCreate, "AAAA", "", "")

	devices, err := journal.Devices()
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(devices) != 2 || devices[0] != "AAAA" || devices[1] != "CCCC" {
		t.Errorf("Devices() = %v", devices)
	}
}

func TestJournal_ConcurrentLog(t *testing.T) {
	journal := NewJournal(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = journal.Record(EventLaunch, "DDDD", "", "")
		}()
	}
	wg.Wait()

	events, _ := journal.Events("DDDD")
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}

func TestJournal_Remove(t *testing.T) {
	journal := NewJournal(t.TempDir())
	_ = journal.Record(EventCreate, "EEEE", "", "")

	if err := journal.Remove("EEEE"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	events, _ := journal.Events("EEEE")
	if len(events) != 0 {
		t.Errorf("got %d events after remove, want 0", len(events))
	}
	if err := journal.Remove("EEEE"); err != nil {
		t.Errorf("Remove of missing journal should succeed: %v", err)
	}
}
