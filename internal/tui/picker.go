// Package tui provides terminal user interface components for simrun
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/simrun/internal/health"
	"github.com/firefly-engineering/simrun/internal/provision"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionStatus
	ActionShutdown
	ActionDelete
	ActionQuit
)

// DeviceEntry is one device with its health summary
type DeviceEntry struct {
	Device *provision.Device
	Status health.Status
	Uptime string
}

// PickerResult holds the result of the picker
type PickerResult struct {
	Action Action
	Device *provision.Device
}

// deviceItem implements list.Item for device display
type deviceItem struct {
	entry DeviceEntry
}

func (i deviceItem) Title() string {
	return i.entry.Device.Name
}

func (i deviceItem) Description() string {
	uptime := i.entry.Uptime
	if uptime == "" {
		uptime = "-"
	}
	return fmt.Sprintf("%s %s | %s | %s",
		statusIcon(i.entry.Status),
		i.entry.Device.UDID,
		shortenIdentifier(i.entry.Device.DeviceType),
		uptime,
	)
}

func (i deviceItem) FilterValue() string {
	return i.entry.Device.Name
}

func statusIcon(status health.Status) string {
	switch status {
	case health.StatusBooted:
		return "✓"
	case health.StatusHeadless:
		return "○"
	case health.StatusNotFound:
		return "⚠"
	}
	return "●"
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the device picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	width    int
	height   int
}

// NewPicker creates a device picker with entries grouped by runtime
func NewPicker(entries []DeviceEntry) Model {
	items := buildGroupedItems(entries)

	l := list.New(items, newGroupedDelegate(), 80, 20)
	l.Title = "simrun - Select Device"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle
	skipHeaders(&l, 1)

	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) selected() (*provision.Device, bool) {
	if item, ok := m.list.SelectedItem().(deviceItem); ok {
		return item.entry.Device, true
	}
	return nil, false
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if dev, ok := m.selected(); ok {
				m.result = PickerResult{Action: ActionStatus, Device: dev}
				m.quitting = true
				return m, tea.Quit
			}

		case "s":
			if dev, ok := m.selected(); ok {
				m.result = PickerResult{Action: ActionShutdown, Device: dev}
				m.quitting = true
				return m, tea.Quit
			}

		case "d":
			if dev, ok := m.selected(); ok {
				m.result = PickerResult{Action: ActionDelete, Device: dev}
				m.quitting = true
				return m, tea.Quit
			}

		case "q", "esc":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit

		case "up", "k", "down", "j":
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			skipHeaders(&m.list, navigationDirection(msg))
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("[enter] Status  [s] Shutdown  [d] Delete  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive device picker
func RunPicker(entries []DeviceEntry) (PickerResult, error) {
	if len(entries) == 0 {
		return PickerResult{Action: ActionQuit}, nil
	}

	m := NewPicker(entries)
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimplePicker is a non-interactive listing of devices
func SimplePicker(entries []DeviceEntry) string {
	var sb strings.Builder

	sb.WriteString("simrun - Devices\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(entries) == 0 {
		sb.WriteString("No devices found.\n")
		sb.WriteString("Create one with: simrun create --device-type <type> --runtime <runtime>\n")
		return sb.String()
	}

	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. %s %s (%s)\n",
			i+1, statusIcon(e.Status), e.Device.Name, e.Status))
		sb.WriteString(fmt.Sprintf("   UDID: %s | Runtime: %s\n\n",
			e.Device.UDID, shortenIdentifier(e.Device.Runtime)))
	}

	return sb.String()
}
