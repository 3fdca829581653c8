package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_ForwardOnly(t *testing.T) {
	assert.True(t, CanTransition(TransferStatusPending, TransferStatusProcessing))
	assert.True(t, CanTransition(TransferStatusProcessing, TransferStatusCompleted))
	assert.True(t, CanTransition(TransferStatusProcessing, TransferStatusFailed))
	assert.True(t, CanTransition(TransferStatusPending, TransferStatusFailed))

	// Never backward.
	assert.False(t, CanTransition(TransferStatusProcessing, TransferStatusPending))
	assert.False(t, CanTransition(TransferStatusCompleted, TransferStatusProcessing))
}

func TestCanTransition_TerminalStates(t *testing.T) {
	for _, terminal := range []string{TransferStatusCompleted, TransferStatusFailed, TransferStatusCompensated} {
		for _, next := range []string{TransferStatusPending, TransferStatusProcessing, TransferStatusCompleted, TransferStatusFailed, TransferStatusCompensated} {
			assert.False(t, CanTransition(terminal, next), "%s -> %s must be rejected", terminal, next)
		}
	}
}

func TestCanTransition_CompensatedFromNonTerminal(t *testing.T) {
	assert.True(t, CanTransition(TransferStatusPending, TransferStatusCompensated))
	assert.True(t, CanTransition(TransferStatusProcessing, TransferStatusCompensated))
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(TransferStatusPending, TransferStatusProcessing))
	assert.Error(t, ValidateTransition(TransferStatusCompleted, TransferStatusFailed))
}
