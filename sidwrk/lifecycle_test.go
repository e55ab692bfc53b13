package sidwrk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateCanSend(t *testing.T) {
	assert.True(t, StateNew.canSend())
	assert.True(t, StateIdle.canSend())
	assert.True(t, StateAssigned.canSend())
	assert.False(t, StateExiting.canSend())
	assert.False(t, StateExited.canSend())
	assert.False(t, StateTimedOut.canSend())
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateExited.terminal())
	assert.False(t, StateNew.terminal())
	assert.False(t, StateExiting.terminal())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
}
