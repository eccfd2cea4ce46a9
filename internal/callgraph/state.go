package callgraph

import "strings"

// State is the lifecycle position of a conversation.
type State string

const (
	StateGreeting   State = "greeting"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// ParseState normalizes free-form state names returned by the AI
// ("In-Progress", "in progress") onto the known constants. Unknown names are
// returned as-is so loose mode can still record them.
func ParseState(raw string) State {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "greeting":
		return StateGreeting
	case "in_progress", "inprogress", "collecting", "collecting_info":
		return StateInProgress
	case "completed", "complete", "done", "transfer", "transferred":
		return StateCompleted
	case "error", "failed":
		return StateError
	}
	return State(s)
}

// Known reports whether s is one of the enumerated states.
func (s State) Known() bool {
	_, ok := Transitions[s]
	return ok
}

// Transitions is the allowed-successor table used in strict mode. Staying in
// the same state is always allowed.
var Transitions = map[State][]State{
	StateGreeting:   {StateInProgress, StateCompleted, StateError},
	StateInProgress: {StateCompleted, StateError},
	StateError:      {StateInProgress, StateCompleted},
	StateCompleted:  {},
}

// CanTransition reports whether from -> to is allowed by Transitions.
func CanTransition(from, to State) bool {
	if !to.Known() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
