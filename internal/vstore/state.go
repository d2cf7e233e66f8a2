package vstore

import "fmt"

// VectorState is the per-vector state machine from spec §4.2.
type VectorState int

const (
	StateAbsent VectorState = iota
	StateWriting
	StateResident
	StateUpdating
	StateDeleting
)

func (s VectorState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateWriting:
		return "writing"
	case StateResident:
		return "resident"
	case StateUpdating:
		return "updating"
	case StateDeleting:
		return "deleting"
	default:
		return "unknown"
	}
}

// transitions enumerates the legal edges of the per-vector state machine.
var transitions = map[VectorState][]VectorState{
	StateAbsent:   {StateWriting},
	StateWriting:  {StateResident, StateAbsent},
	StateResident: {StateUpdating, StateDeleting},
	StateUpdating: {StateResident, StateAbsent},
	StateDeleting: {StateAbsent},
}

// checkTransition reports whether moving from 'from' to 'to' is legal.
func checkTransition(from, to VectorState) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("vstore: illegal state transition %s -> %s", from, to)
}
