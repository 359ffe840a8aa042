package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/simrun/internal/runner"
)

// StateMsg reports a runner state transition
type StateMsg runner.State

// DoneMsg reports the end of the run
type DoneMsg struct {
	Result *runner.Result
	Err    error
}

type stage struct {
	state   runner.State
	started time.Time
	elapsed time.Duration
}

var (
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	retryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// ProgressModel shows the stages of a run as they happen
type ProgressModel struct {
	spinner     spinner.Model
	title       string
	stages      []stage
	result      *runner.Result
	err         error
	done        bool
	interrupted bool
	now         func() time.Time
}

// NewProgress creates a progress view
func NewProgress(title string) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = currentStyle
	return ProgressModel{
		spinner: s,
		title:   title,
		now:     time.Now,
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		m.advance(runner.State(msg))
		return m, nil

	case DoneMsg:
		m.finishCurrent()
		m.result = msg.Result
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ProgressModel) advance(s runner.State) {
	m.finishCurrent()
	if s.IsTerminal() {
		return
	}
	m.stages = append(m.stages, stage{state: s, started: m.now()})
}

func (m *ProgressModel) finishCurrent() {
	if n := len(m.stages); n > 0 && m.stages[n-1].elapsed == 0 {
		m.stages[n-1].elapsed = m.now().Sub(m.stages[n-1].started)
	}
}

func (m ProgressModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title) + "\n")

	for i, st := range m.stages {
		current := i == len(m.stages)-1 && !m.done
		switch {
		case current:
			sb.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), currentStyle.Render(string(st.state))))
		case m.done && i == len(m.stages)-1 && m.err != nil:
			sb.WriteString(fmt.Sprintf("%s %s %s\n", failStyle.Render("✗"), st.state, mutedStyle.Render(st.elapsed.Round(time.Millisecond).String())))
		default:
			sb.WriteString(fmt.Sprintf("%s %s %s\n", doneStyle.Render("✓"), st.state, mutedStyle.Render(st.elapsed.Round(time.Millisecond).String())))
		}
	}

	if m.done {
		sb.WriteString("\n" + m.finalLine() + "\n")
	}
	return sb.String()
}

func (m ProgressModel) finalLine() string {
	if m.err != nil {
		return failStyle.Render("aborted: " + m.err.Error())
	}
	if m.result == nil {
		return failStyle.Render("no result")
	}
	line := fmt.Sprintf("%s (%s) in %s", m.result.Outcome, m.result.Status, m.result.Duration.Round(time.Millisecond))
	switch m.result.Outcome {
	case runner.OutcomePassed:
		return passStyle.Render(line)
	case runner.OutcomeNeedsRetry:
		return retryStyle.Render(line)
	}
	return failStyle.Render(line)
}

// Interrupted reports whether the user quit before the run finished
func (m ProgressModel) Interrupted() bool {
	return m.interrupted
}

// RunFunc performs a run, reporting each state to observe
type RunFunc func(ctx context.Context, observe func(runner.State)) (*runner.Result, error)

// RunProgress drives run while rendering its progress to out.
// Quitting the view cancels the run; teardown still completes before
// RunProgress returns.
func RunProgress(ctx context.Context, title string, out io.Writer, run RunFunc) (*runner.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgress(title), tea.WithOutput(out), tea.WithContext(ctx))

	type outcome struct {
		res *runner.Result
		err error
	}
	finished := make(chan outcome, 1)
	go func() {
		res, err := run(ctx, func(s runner.State) { p.Send(StateMsg(s)) })
		finished <- outcome{res, err}
		p.Send(DoneMsg{Result: res, Err: err})
	}()

	_, uiErr := p.Run()
	cancel()

	o := <-finished
	if o.err == nil && uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return o.res, uiErr
	}
	return o.res, o.err
}
