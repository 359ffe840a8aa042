// Package events turns the raw byte stream read from an application's
// output pipe into structured test events.
//
// The test harness inside the application prints one JSON object per line
// for each lifecycle event:
//
//	{"event":"app-started","pid":4242}
//	{"event":"begin-tests"}
//	{"event":"begin-test","suite":"LoginTests","test":"testValidPassword"}
//	{"event":"end-test","suite":"LoginTests","test":"testValidPassword","result":"success","duration":0.12}
//	{"event":"end-tests","passed":12,"failed":1}
//
// Every other line is forwarded as an output event. The output pipe's
// termination sentinel is reported as a process-exited event.
package events

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/firefly-engineering/simrun/internal/outputpipe"
)

// Kind identifies an event.
type Kind string

const (
	KindAppStarted    Kind = "app-started"
	KindBeginTests    Kind = "begin-tests"
	KindBeginTest     Kind = "begin-test"
	KindEndTest       Kind = "end-test"
	KindEndTests      Kind = "end-tests"
	KindProcessExited Kind = "process-exited"
	KindOutput        Kind = "output"
)

// Test results reported on end-test events
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Event is one structured event.
type Event struct {
	Kind     Kind    `json:"event"`
	PID      int     `json:"pid,omitempty"`
	Suite    string  `json:"suite,omitempty"`
	Test     string  `json:"test,omitempty"`
	Result   string  `json:"result,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Message  string  `json:"message,omitempty"`
	Passed   int     `json:"passed,omitempty"`
	Failed   int     `json:"failed,omitempty"`

	// Line is the raw text of an output event
	Line string `json:"-"`
}

// Delegate receives parsed events.
type Delegate interface {
	HandleEvent(Event)
}

// DelegateFunc adapts a function to Delegate.
type DelegateFunc func(Event)

// HandleEvent calls f(e).
func (f DelegateFunc) HandleEvent(e Event) { f(e) }

// Parser consumes raw output chunks.
type Parser interface {
	// SetDelegate configures the receiver of parsed events
	SetDelegate(Delegate)

	// Feed consumes one chunk; chunk boundaries are arbitrary
	Feed(chunk []byte)
}

// MaxLineLength caps a buffered partial line; longer lines are split.
const MaxLineLength = 1 << 20

// LineParser frames chunks into lines and decodes event lines.
type LineParser struct {
	mu       sync.Mutex
	delegate Delegate
	partial  []byte
	exited   bool
}

// NewLineParser creates a parser reporting to delegate.
func NewLineParser(delegate Delegate) *LineParser {
	return &LineParser{delegate: delegate}
}

// SetDelegate configures the receiver of parsed events.
func (p *LineParser) SetDelegate(d Delegate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = d
}

// Feed consumes one chunk. Delegate calls happen on the caller's goroutine,
// in stream order.
func (p *LineParser) Feed(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := append(p.partial, chunk...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		p.emitLine(data[:idx])
		data = data[idx+1:]
	}

	if len(data) > MaxLineLength {
		p.emitLine(data)
		data = nil
	}
	p.partial = append(p.partial[:0:0], data...)
}

// Flush emits any buffered partial line.
func (p *LineParser) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.partial) > 0 {
		p.emitLine(p.partial)
		p.partial = nil
	}
}

func (p *LineParser) emitLine(raw []byte) {
	line := bytes.TrimRight(raw, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	if p.delegate == nil {
		return
	}

	if string(bytes.TrimSpace(line)) == outputpipe.Sentinel {
		if !p.exited {
			p.exited = true
			p.delegate.HandleEvent(Event{Kind: KindProcessExited})
		}
		return
	}

	p.delegate.HandleEvent(ParseLine(string(line)))
}

// ParseLine decodes a single line. Lines that are not recognised event
// objects become output events.
func ParseLine(line string) Event {
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var e Event
		if err := json.Unmarshal(trimmed, &e); err == nil && isStructured(e.Kind) {
			return e
		}
	}
	return Event{Kind: KindOutput, Line: line}
}

func isStructured(k Kind) bool {
	switch k {
	case KindAppStarted, KindBeginTests, KindBeginTest, KindEndTest, KindEndTests:
		return true
	}
	return false
}

var _ Parser = (*LineParser)(nil)
