package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/firefly-engineering/simrun/internal/health"
	"github.com/firefly-engineering/simrun/internal/provision"
)

func testEntry(name string, status health.Status) DeviceEntry {
	return DeviceEntry{
		Device: &provision.Device{
			UDID:       "UDID-" + name,
			Name:       name,
			DeviceType: "com.apple.CoreSimulator.SimDeviceType.iPhone-15",
			Runtime:    "com.apple.CoreSimulator.SimRuntime.iOS-17-5",
		},
		Status: status,
		Uptime: "2h 30m",
	}
}

func TestDeviceItemMethods(t *testing.T) {
	item := deviceItem{entry: testEntry("simrun-1", health.StatusBooted)}

	if got := item.Title(); got != "simrun-1" {
		t.Errorf("Title() = %q, want %q", got, "simrun-1")
	}
	if got := item.FilterValue(); got != "simrun-1" {
		t.Errorf("FilterValue() = %q, want %q", got, "simrun-1")
	}

	desc := item.Description()
	for _, want := range []string{"✓", "UDID-simrun-1", "iPhone-15", "2h 30m"} {
		if !strings.Contains(desc, want) {
			t.Errorf("Description() = %q, should contain %q", desc, want)
		}
	}
}

func TestStatusIcons(t *testing.T) {
	tests := []struct {
		status health.Status
		icon   string
	}{
		{health.StatusBooted, "✓"},
		{health.StatusHeadless, "○"},
		{health.StatusShutdown, "●"},
		{health.StatusNotFound, "⚠"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := statusIcon(tt.status); got != tt.icon {
				t.Errorf("statusIcon(%s) = %q, want %q", tt.status, got, tt.icon)
			}
		})
	}
}

func TestModelKeyHandling(t *testing.T) {
	entries := []DeviceEntry{testEntry("simrun-1", health.StatusBooted)}

	t.Run("quit with q", func(t *testing.T) {
		m := NewPicker(entries)
		newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		model := newModel.(Model)

		if model.result.Action != ActionQuit {
			t.Errorf("Action = %v, want ActionQuit", model.result.Action)
		}
		if !model.quitting {
			t.Error("Model should be quitting")
		}
		if cmd == nil {
			t.Error("Should return tea.Quit command")
		}
	})

	t.Run("status with enter", func(t *testing.T) {
		m := NewPicker(entries)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		model := newModel.(Model)

		if model.result.Action != ActionStatus {
			t.Fatalf("Action = %v, want ActionStatus", model.result.Action)
		}
		if model.result.Device.Name != "simrun-1" {
			t.Errorf("Device = %q", model.result.Device.Name)
		}
	})

	t.Run("delete with d", func(t *testing.T) {
		m := NewPicker(entries)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
		if got := newModel.(Model).result.Action; got != ActionDelete {
			t.Errorf("Action = %v, want ActionDelete", got)
		}
	})

	t.Run("shutdown with s", func(t *testing.T) {
		m := NewPicker(entries)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
		if got := newModel.(Model).result.Action; got != ActionShutdown {
			t.Errorf("Action = %v, want ActionShutdown", got)
		}
	})

	t.Run("window size update", func(t *testing.T) {
		m := NewPicker(entries)
		newModel, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 50})
		model := newModel.(Model)

		if model.width != 100 || model.height != 50 {
			t.Errorf("size = %dx%d, want 100x50", model.width, model.height)
		}
		if cmd != nil {
			t.Error("Window size update should not return a command")
		}
	})
}

func TestModelView(t *testing.T) {
	m := NewPicker([]DeviceEntry{testEntry("simrun-1", health.StatusHeadless)})

	view := m.View()
	if !strings.Contains(view, "[enter] Status") || !strings.Contains(view, "[q] Quit") {
		t.Errorf("View should contain help, got %q", view)
	}

	m.quitting = true
	if view := m.View(); view != "" {
		t.Errorf("Quitting view should be empty, got %q", view)
	}
}

func TestRunPickerEmpty(t *testing.T) {
	result, err := RunPicker(nil)
	if err != nil {
		t.Fatalf("RunPicker() error: %v", err)
	}
	if result.Action != ActionQuit {
		t.Errorf("Action = %v, want ActionQuit", result.Action)
	}
}

func TestSimplePicker(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		output := SimplePicker(nil)
		if !strings.Contains(output, "No devices found") {
			t.Error("Should indicate no devices found")
		}
		if !strings.Contains(output, "simrun create") {
			t.Error("Should show how to create a device")
		}
	})

	t.Run("with devices", func(t *testing.T) {
		output := SimplePicker([]DeviceEntry{
			testEntry("first", health.StatusBooted),
			testEntry("second", health.StatusShutdown),
		})
		for _, want := range []string{"first", "second", "UDID-first", "iOS-17-5", "shutdown"} {
			if !strings.Contains(output, want) {
				t.Errorf("output should contain %q", want)
			}
		}
	})
}
