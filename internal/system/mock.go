package system

import (
	"context"
	"strings"
	"sync"
)

// MockExecutor implements CommandExecutor for testing.
type MockExecutor struct {
	mu sync.Mutex

	// Commands records all executed commands for verification.
	Commands []MockCommand

	// Responses maps command patterns to responses.
	// Key format: "command arg1 arg2..."; the longest matching prefix wins.
	Responses map[string]MockResponse

	// DefaultResponse is used when no matching response is found.
	DefaultResponse MockResponse

	// StartErr is returned by StartBackground if set.
	StartErr error

	// Started records processes launched with StartBackground.
	Started []*MockProcess

	// OnStart, if set, is called with every process StartBackground starts.
	OnStart func(p *MockProcess)

	nextPid int
}

// MockCommand records an executed command.
type MockCommand struct {
	Name string
	Args []string
	Env  []string
}

// String renders the command as a single space-separated line.
func (c MockCommand) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// MockResponse defines the response for a command.
type MockResponse struct {
	Output []byte
	Err    error
}

// MockProcess is a fake background process.
type MockProcess struct {
	mu         sync.Mutex
	pid        int
	Name       string
	Args       []string
	terminated bool
}

// Pid returns the fake process identifier.
func (p *MockProcess) Pid() int { return p.pid }

// Terminate marks the process as terminated.
func (p *MockProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = true
	return nil
}

// Terminated reports whether Terminate was called.
func (p *MockProcess) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Commands:  make([]MockCommand, 0),
		Responses: make(map[string]MockResponse),
		nextPid:   40000,
	}
}

// AddResponse adds a response for a specific command pattern.
func (m *MockExecutor) AddResponse(pattern string, output []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[pattern] = MockResponse{Output: output, Err: err}
}

// lookup finds the response for the longest registered prefix of the command.
func (m *MockExecutor) lookup(name string, args []string) MockResponse {
	for n := len(args); n >= 0; n-- {
		key := strings.Join(append([]string{name}, args[:n]...), " ")
		if resp, ok := m.Responses[key]; ok {
			return resp
		}
	}
	return m.DefaultResponse
}

func (m *MockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, MockCommand{Name: name, Args: args})
	resp := m.lookup(name, args)
	return resp.Output, resp.Err
}

func (m *MockExecutor) ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, MockCommand{Name: name, Args: args, Env: env})
	resp := m.lookup(name, args)
	return resp.Output, resp.Err
}

func (m *MockExecutor) StartBackground(name string, args ...string) (BackgroundProcess, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, MockCommand{Name: name, Args: args})
	if m.StartErr != nil {
		m.mu.Unlock()
		return nil, m.StartErr
	}

	m.nextPid++
	p := &MockProcess{pid: m.nextPid, Name: name, Args: args}
	m.Started = append(m.Started, p)
	onStart := m.OnStart
	m.mu.Unlock()

	if onStart != nil {
		onStart(p)
	}
	return p, nil
}

// Arg returns the value following flag in the process arguments.
func (p *MockProcess) Arg(flag string) (string, bool) {
	for i := 0; i+1 < len(p.Args); i++ {
		if p.Args[i] == flag {
			return p.Args[i+1], true
		}
	}
	return "", false
}

// LastCommand returns the most recently executed command.
func (m *MockExecutor) LastCommand() (MockCommand, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commands) == 0 {
		return MockCommand{}, false
	}
	return m.Commands[len(m.Commands)-1], true
}

// CommandsMatching returns the recorded commands whose rendered form starts with prefix.
func (m *MockExecutor) CommandsMatching(prefix string) []MockCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCommand
	for _, c := range m.Commands {
		if strings.HasPrefix(c.String(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all recorded commands.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = make([]MockCommand, 0)
	m.Started = nil
}

var _ CommandExecutor = (*MockExecutor)(nil)
