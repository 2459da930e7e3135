package booking

import "fmt"

type State string

const (
	StateValidating           State = "validating"
	StateChecking             State = "checking"
	StateCommitting           State = "committing"
	StateAwaitingConfirmation State = "awaiting-confirmation"
	StateDone                 State = "done"
	StateRejected             State = "rejected"
)

var transitionMap = map[State][]State{
	StateValidating: {StateChecking, StateRejected},
	// checking -> done is the idempotent cancel of an already cancelled
	// appointment.
	StateChecking: {StateCommitting, StateAwaitingConfirmation, StateDone, StateRejected},
	// committing -> checking is a lost final re-check.
	StateCommitting:           {StateDone, StateChecking, StateRejected},
	StateAwaitingConfirmation: {StateCommitting, StateRejected},
}

func ValidTransition(from, to State) bool {
	for _, s := range transitionMap[from] {
		if s == to {
			return true
		}
	}
	return false
}

// run tracks one operation through the state machine.
type run struct {
	state State
	path  []State
}

func newRun(start State) *run {
	return &run{state: start, path: []State{start}}
}

// to panics on a transition missing from transitionMap: that is a bug in
// the engine, not a runtime condition.
func (r *run) to(next State) {
	if !ValidTransition(r.state, next) {
		panic(fmt.Sprintf("booking: invalid transition %s -> %s", r.state, next))
	}
	r.state = next
	r.path = append(r.path, next)
}

func (r *run) finish(res Result) Result {
	res.Path = append([]State(nil), r.path...)
	return res
}
