package booking

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateValidating, StateChecking, true},
		{StateValidating, StateRejected, true},
		{StateValidating, StateCommitting, false},
		{StateValidating, StateDone, false},
		{StateChecking, StateCommitting, true},
		{StateChecking, StateAwaitingConfirmation, true},
		{StateChecking, StateDone, true},
		{StateChecking, StateValidating, false},
		{StateCommitting, StateDone, true},
		{StateCommitting, StateChecking, true},
		{StateCommitting, StateAwaitingConfirmation, false},
		{StateAwaitingConfirmation, StateCommitting, true},
		{StateAwaitingConfirmation, StateRejected, true},
		{StateAwaitingConfirmation, StateDone, false},
		{StateDone, StateChecking, false},
		{StateRejected, StateChecking, false},
	}
	for _, tc := range cases {
		if got := ValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRunPanicsOnInvalidTransition(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r := newRun(StateDone)
	r.to(StateCommitting)
}

func TestRunRecordsPath(t *testing.T) {
	r := newRun(StateValidating)
	r.to(StateChecking)
	r.to(StateCommitting)
	r.to(StateDone)
	res := r.finish(Result{Status: StatusApproved})
	want := []State{StateValidating, StateChecking, StateCommitting, StateDone}
	if len(res.Path) != len(want) {
		t.Fatalf("path %v, want %v", res.Path, want)
	}
	for i := range want {
		if res.Path[i] != want[i] {
			t.Fatalf("path %v, want %v", res.Path, want)
		}
	}
}
