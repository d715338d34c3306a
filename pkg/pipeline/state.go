package pipeline

import "fmt"

// State is a step of a generation run.
type State string

const (
	StateStart           State = "START"
	StateMarkupFetched   State = "MARKUP_FETCHED"
	StateActionsPlanned  State = "ACTIONS_PLANNED"
	StateActionsExecuted State = "ACTIONS_EXECUTED"
	StateInterpreted     State = "INTERPRETED"
	StateScenariosBuilt  State = "SCENARIOS_BUILT"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StageError is returned when a run ends in FAILED. State is the state the
// run was trying to reach; Err is the taxonomy error that stopped it.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
