package runner

// State is the position of a run in its lifecycle.
type State string

const (
	StateNotStarted      State = "not-started"
	StateDeviceAcquiring State = "acquiring-device"
	StateBooting         State = "booting"
	StateBooted          State = "booted"
	StateInstalling      State = "installing"
	StateLaunching       State = "launching"
	StateRunning         State = "running"
	StatePassed          State = "passed"
	StateFailed          State = "failed"
	StateNeedsRetry      State = "needs-retry"
	StateAborted         State = "aborted"
)

// IsTerminal reports whether no further transitions follow.
func (s State) IsTerminal() bool {
	switch s {
	case StatePassed, StateFailed, StateNeedsRetry, StateAborted:
		return true
	}
	return false
}

// transitions lists the states reachable from each state. Every state
// before Running may abort.
var transitions = map[State][]State{
	StateNotStarted:      {StateDeviceAcquiring, StateAborted},
	StateDeviceAcquiring: {StateBooting, StateBooted, StateAborted},
	StateBooting:         {StateBooted, StateAborted},
	StateBooted:          {StateInstalling, StateAborted},
	StateInstalling:      {StateLaunching, StateAborted},
	StateLaunching:       {StateRunning, StateAborted},
	StateRunning:         {StatePassed, StateFailed, StateNeedsRetry, StateAborted},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outcome is the result of a finished run.
type Outcome string

const (
	OutcomePassed     Outcome = "passed"
	OutcomeFailed     Outcome = "failed"
	OutcomeNeedsRetry Outcome = "needs-retry"
	OutcomeAborted    Outcome = "aborted"
)

func outcomeState(o Outcome) State {
	switch o {
	case OutcomePassed:
		return StatePassed
	case OutcomeFailed:
		return StateFailed
	case OutcomeNeedsRetry:
		return StateNeedsRetry
	}
	return StateAborted
}
