// Package agent tracks per-agent lifecycle: who is connected, what they
// are allowed to do next, and which task they hold. Transitions are
// validated against a canonical table; the acceptance timer and the
// reaper re-read registry state under the lock before acting.
package agent

import "fmt"

// State is one of the discrete agent lifecycle states.
type State string

const (
	StateIdle     State = "idle"
	StateAssigned State = "assigned"
	StateWorking  State = "working"
	StateBlocked  State = "blocked"
	StateOffline  State = "offline"
)

// Event triggers a state transition.
type Event string

const (
	EventConnect       Event = "connect"
	EventDisconnect    Event = "disconnect"
	EventAssign        Event = "assign"
	EventAccept        Event = "accept"
	EventReject        Event = "reject"
	EventAcceptTimeout Event = "accept_timeout"
	EventComplete      Event = "complete"
	EventFail          Event = "fail"
	EventBlock         Event = "block"
	EventUnblock       Event = "unblock"
	EventRecover       Event = "recover"
)

// transition defines a valid (from, event) → to mapping.
type transition struct {
	From  State
	Event Event
	To    State
}

// validTransitions is the canonical transition table.
var validTransitions = []transition{
	// Presence. Connect is valid from any state: a fresh session resets
	// the record, and supersession may race the old session's close.
	{StateOffline, EventConnect, StateIdle},
	{StateIdle, EventConnect, StateIdle},
	{StateAssigned, EventConnect, StateIdle},
	{StateWorking, EventConnect, StateIdle},
	{StateBlocked, EventConnect, StateIdle},
	{StateIdle, EventDisconnect, StateOffline},
	{StateAssigned, EventDisconnect, StateOffline},
	{StateWorking, EventDisconnect, StateOffline},
	{StateBlocked, EventDisconnect, StateOffline},

	// Assignment lifecycle.
	{StateIdle, EventAssign, StateAssigned},
	{StateAssigned, EventAccept, StateWorking},
	{StateAssigned, EventReject, StateIdle},
	{StateAssigned, EventAcceptTimeout, StateIdle},
	{StateWorking, EventComplete, StateIdle},
	{StateWorking, EventFail, StateIdle},

	// Reconnect recovery: a continued task puts the agent straight back
	// to working without a new assignment.
	{StateIdle, EventRecover, StateWorking},

	// Blocking.
	{StateIdle, EventBlock, StateBlocked},
	{StateWorking, EventBlock, StateBlocked},
	{StateBlocked, EventUnblock, StateIdle},
}

// transitionKey indexes the table for O(1) lookups.
type transitionKey struct {
	from  State
	event Event
}

var transitionIndex = buildTransitionIndex()

func buildTransitionIndex() map[transitionKey]State {
	index := make(map[transitionKey]State, len(validTransitions))
	for _, t := range validTransitions {
		index[transitionKey{t.From, t.Event}] = t.To
	}
	return index
}

// nextState returns the target state for (from, event). ok is false when
// the transition is not in the table.
func nextState(from State, event Event) (State, bool) {
	to, ok := transitionIndex[transitionKey{from, event}]
	return to, ok
}

// TransitionError reports an event applied in a state that does not
// permit it.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s in state %s", e.Event, e.From)
}
