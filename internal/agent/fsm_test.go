package agent

import "testing"

func TestNextState(t *testing.T) {
	cases := []struct {
		from  State
		event Event
		to    State
		ok    bool
	}{
		{StateOffline, EventConnect, StateIdle, true},
		{StateIdle, EventAssign, StateAssigned, true},
		{StateAssigned, EventAccept, StateWorking, true},
		{StateAssigned, EventReject, StateIdle, true},
		{StateAssigned, EventAcceptTimeout, StateIdle, true},
		{StateWorking, EventComplete, StateIdle, true},
		{StateWorking, EventFail, StateIdle, true},
		{StateWorking, EventBlock, StateBlocked, true},
		{StateBlocked, EventUnblock, StateIdle, true},
		{StateIdle, EventRecover, StateWorking, true},
		{StateWorking, EventDisconnect, StateOffline, true},

		{StateOffline, EventAssign, "", false},
		{StateWorking, EventAssign, "", false},
		{StateIdle, EventAccept, "", false},
		{StateWorking, EventAcceptTimeout, "", false},
		{StateBlocked, EventBlock, "", false},
		{StateIdle, EventUnblock, "", false},
	}
	for _, tc := range cases {
		to, ok := nextState(tc.from, tc.event)
		if ok != tc.ok {
			t.Errorf("nextState(%s, %s): ok = %v, want %v", tc.from, tc.event, ok, tc.ok)
			continue
		}
		if ok && to != tc.to {
			t.Errorf("nextState(%s, %s) = %s, want %s", tc.from, tc.event, to, tc.to)
		}
	}
}

func TestConnectValidFromEveryState(t *testing.T) {
	for _, from := range []State{StateOffline, StateIdle, StateAssigned, StateWorking, StateBlocked} {
		to, ok := nextState(from, EventConnect)
		if !ok || to != StateIdle {
			t.Errorf("connect from %s: got (%s, %v), want (idle, true)", from, to, ok)
		}
	}
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{From: StateOffline, Event: EventAccept}
	want := "invalid transition: accept in state offline"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
