package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToyPreemptionFlag(t *testing.T) {
	m := NewToy(func(preempted func() bool) int {
		if preempted() {
			return 0
		}
		return 1
	})

	require.False(t, m.Preempted())
	require.Equal(t, 1, m.Run())

	m.RaisePreemption()
	require.True(t, m.Preempted())
	require.Equal(t, 0, m.Run())

	m.ClearPreemption()
	require.False(t, m.Preempted())
	require.NoError(t, m.Close())
}
