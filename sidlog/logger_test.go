package sidlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullLoggerDiscards(t *testing.T) {
	l, err := New(TargetNull, false)
	require.NoError(t, err)
	l.Info("res/a", "hello", F("x", 1))
	l.With("c 123").Debug("res/a", "child prefix")
	assert.NotNil(t, l)
}

func TestStandardLoggerBuilds(t *testing.T) {
	l, err := New(TargetStandard, true)
	require.NoError(t, err)
	require.NotNil(t, l)
	child := l.With("c 42")
	assert.NotNil(t, child)
}
