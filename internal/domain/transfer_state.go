package domain

import "fmt"

// transferTransitions encodes the forward-only transfer state machine.
// COMPENSATED is reachable from any non-terminal state; terminal states have
// no successors.
var transferTransitions = map[string]map[string]struct{}{
	TransferStatusPending: {
		TransferStatusProcessing:  {},
		TransferStatusFailed:      {},
		TransferStatusCompensated: {},
	},
	TransferStatusProcessing: {
		TransferStatusCompleted:   {},
		TransferStatusFailed:      {},
		TransferStatusCompensated: {},
	},
	TransferStatusCompleted:   {},
	TransferStatusFailed:      {},
	TransferStatusCompensated: {},
}

func CanTransition(current, next string) bool {
	nextStates, ok := transferTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// ValidateTransition returns an error describing an illegal transition.
func ValidateTransition(current, next string) error {
	if !CanTransition(current, next) {
		return fmt.Errorf("invalid transfer state transition: %s -> %s", current, next)
	}
	return nil
}
