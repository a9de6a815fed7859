package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTransitions(t *testing.T) {
	assert.True(t, StatusDraft.CanTransitionTo(StatusActive))
	assert.True(t, StatusDraft.CanTransitionTo(StatusDiscontinued))
	assert.True(t, StatusActive.CanTransitionTo(StatusDiscontinued))

	assert.False(t, StatusActive.CanTransitionTo(StatusDraft))
	assert.False(t, StatusDiscontinued.CanTransitionTo(StatusActive))
	assert.False(t, StatusDiscontinued.CanTransitionTo(StatusDraft))
}

func TestDiscontinuedHasNoOutgoingTransitions(t *testing.T) {
	assert.True(t, StatusDiscontinued.IsTerminal())
	assert.False(t, StatusDraft.IsTerminal())
	assert.False(t, StatusActive.IsTerminal())
}
