package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManagerInsertRoutesByState(t *testing.T) {
	var mgr Manager

	dormant := New("d", 1)
	mgr.Insert(dormant)
	require.Equal(t, dormant, mgr.DormantQ.Head())

	ready := New("r", 1)
	ready.State = Ready
	mgr.Insert(ready)
	require.Equal(t, ready, mgr.ReadyQ.Head())

	waiting := New("w", 1)
	waiting.State = Waiting
	mgr.Insert(waiting)
	require.Equal(t, waiting, mgr.WaitingQ.Head())

	suspended := New("s", 1)
	suspended.State = Suspended
	mgr.Insert(suspended)
	require.Equal(t, suspended, mgr.SuspendedQ.Head())
}

func TestManagerRequeueHonorsMutation(t *testing.T) {
	var mgr Manager
	tcb := New("t", 100)
	tcb.State = Ready
	mgr.Insert(tcb)

	mgr.Requeue(tcb, func(t *TCB) {
		t.State = Suspended
	})

	require.True(t, mgr.ReadyQ.Empty())
	require.Equal(t, tcb, mgr.SuspendedQ.Head())
}

func TestManagerIdle(t *testing.T) {
	var mgr Manager
	require.True(t, mgr.Idle())

	dormant := New("d", 1)
	mgr.Insert(dormant)
	require.True(t, mgr.Idle(), "a dormant-only kernel has nothing left runnable")

	ready := New("r", 1)
	ready.State = Ready
	mgr.Insert(ready)
	require.False(t, mgr.Idle())
}
