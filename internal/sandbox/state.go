package sandbox

import "fmt"

// ExecState is the lifecycle state of a single execution. Terminal states
// have no outgoing transitions; retry is the caller's responsibility.
type ExecState string

const (
	StateReceived      ExecState = "received"
	StateCompiling     ExecState = "compiling"
	StateCompiled      ExecState = "compiled"
	StateCompileFailed ExecState = "compile_failed"
	StateRunning       ExecState = "running"
	StateSucceeded     ExecState = "succeeded"
	StateFailed        ExecState = "failed"
	StateTimedOut      ExecState = "timed_out"
)

var execTransitions = map[ExecState][]ExecState{
	StateReceived:  {StateCompiling},
	StateCompiling: {StateCompiled, StateCompileFailed},
	StateCompiled:  {StateRunning},
	StateRunning:   {StateSucceeded, StateFailed, StateTimedOut},
}

// Terminal reports whether the state has no outgoing transitions.
func (s ExecState) Terminal() bool {
	return len(execTransitions[s]) == 0
}

// CanTransition reports whether moving from s to next is legal.
func (s ExecState) CanTransition(next ExecState) bool {
	for _, allowed := range execTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ExecTracker validates lifecycle transitions for one execution.
type ExecTracker struct {
	state ExecState
}

// NewExecTracker starts a tracker in the received state.
func NewExecTracker() *ExecTracker {
	return &ExecTracker{state: StateReceived}
}

// State returns the current state.
func (t *ExecTracker) State() ExecState {
	return t.state
}

// To transitions to next, panicking on an illegal transition. Transitions
// are driven entirely by worker code, so an illegal one is a programming
// error, not an input error.
func (t *ExecTracker) To(next ExecState) ExecState {
	if !t.state.CanTransition(next) {
		panic(fmt.Sprintf("illegal execution state transition %s -> %s", t.state, next))
	}
	t.state = next
	return next
}
