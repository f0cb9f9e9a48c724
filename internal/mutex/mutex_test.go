package mutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chikuwait/coresched/internal/hal"
	"github.com/chikuwait/coresched/internal/task"
	"github.com/chikuwait/coresched/internal/vm"
)

type fakeHAL struct{ mu sync.Mutex }

func (f *fakeHAL) Init() error           { return nil }
func (f *fakeHAL) DisableIRQ() hal.State { f.mu.Lock(); return struct{}{} }
func (f *fakeHAL) Restore(hal.State)     { f.mu.Unlock() }
func (f *fakeHAL) IdleCPU()              {}
func (f *fakeHAL) Start(func()) error    { return nil }
func (f *fakeHAL) Stop()                 {}

func readyTask(name string, priority uint8) *task.TCB {
	tcb := task.New(name, priority)
	tcb.State = task.Ready
	tcb.VM = vm.NewToy(func(func() bool) int { return -1 })
	return tcb
}

// TestTryLockThenLockBlocks covers spec §8 law L1.
func TestTryLockThenLockBlocks(t *testing.T) {
	var m Mutex
	Init(&m)
	h := &fakeHAL{}
	var mgr task.Manager

	owner := readyTask("owner", 1)
	mgr.Insert(owner)
	require.True(t, TryLock(&m, owner, h))
	require.True(t, m.Locked())

	other := readyTask("other", 1)
	mgr.Insert(other)
	acquired := Lock(&m, other, &mgr, h)
	require.False(t, acquired)
	require.Equal(t, task.Waiting, other.State)
	require.Equal(t, task.WaitMutex, other.Reason)
	require.Equal(t, &m, other.Mutex)
}

func TestUnlockByNonOwnerPanics(t *testing.T) {
	var m Mutex
	Init(&m)
	h := &fakeHAL{}
	var mgr task.Manager

	owner := readyTask("owner", 1)
	mgr.Insert(owner)
	require.True(t, TryLock(&m, owner, h))

	intruder := readyTask("intruder", 1)
	mgr.Insert(intruder)

	require.Panics(t, func() {
		Unlock(&m, intruder, &mgr, h)
	})
}

func TestUnlockWithNoWaitersFrees(t *testing.T) {
	var m Mutex
	Init(&m)
	h := &fakeHAL{}
	var mgr task.Manager

	owner := readyTask("owner", 1)
	mgr.Insert(owner)
	require.True(t, TryLock(&m, owner, h))

	Unlock(&m, owner, &mgr, h)
	require.False(t, m.Locked())
	require.Nil(t, m.Owner())
}
