package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chikuwait/coresched/internal/hal"
	"github.com/chikuwait/coresched/internal/mutex"
	"github.com/chikuwait/coresched/internal/task"
	"github.com/chikuwait/coresched/internal/vm"
)

// fakeHAL emulates interrupt masking with a mutex, per spec §9's note that
// hosted builds without a real interrupt controller should do exactly
// this. IdleCPU is a no-op since these tests drive everything
// synchronously and never expect the dispatcher to actually idle.
type fakeHAL struct {
	mu sync.Mutex
}

func (f *fakeHAL) Init() error           { return nil }
func (f *fakeHAL) DisableIRQ() hal.State { f.mu.Lock(); return struct{}{} }
func (f *fakeHAL) Restore(hal.State)     { f.mu.Unlock() }
func (f *fakeHAL) IdleCPU()              {}
func (f *fakeHAL) Start(func()) error    { return nil }
func (f *fakeHAL) Stop()                 {}

type discardConsole struct{}

func (discardConsole) Printf(string, ...any) {}
func (discardConsole) Warnf(string, ...any)  {}

func newTestKernel() *Kernel {
	return New(&fakeHAL{}, discardConsole{}, 10)
}

// spawn creates a task whose guest program is driven by step, wiring up
// the *task.TCB so step's closure can call blocking ops on itself — this
// stands in for the out-of-scope guest binding layer (spec §6). task.New
// always returns a Dormant TCB, so unless dormant is true, it is flipped to
// Ready here before CreateTask sees it, mirroring the "reservation vs.
// create and run" distinction CreateTask itself makes.
func spawn(t *testing.T, k *Kernel, name string, priority uint8, dormant bool, step func(tcb *task.TCB, preempted func() bool) int) *task.TCB {
	t.Helper()
	var tcb *task.TCB
	pre := task.New(name, priority)
	if !dormant {
		pre.State = task.Ready
	}
	created, err := k.CreateTask(pre, priority, func() (task.VM, error) {
		return vm.NewToy(func(preempted func() bool) int {
			return step(tcb, preempted)
		}), nil
	})
	require.NoError(t, err)
	tcb = created
	return created
}

// TestScenarioRoundRobinWithinPriority covers spec §8 scenario 1: three
// equal-priority tasks relinquish every step; the dispatcher rotates them
// A,B,C,A,B,C,...
func TestScenarioRoundRobinWithinPriority(t *testing.T) {
	k := newTestKernel()
	var order []string

	makeStep := func(name string) func(*task.TCB, func() bool) int {
		calls := 0
		return func(tcb *task.TCB, _ func() bool) int {
			order = append(order, name)
			calls++
			if calls >= 3 {
				return -1
			}
			k.Relinquish(tcb)
			return 0
		}
	}

	spawn(t, k, "A", 100, false, makeStep("A"))
	spawn(t, k, "B", 100, false, makeStep("B"))
	spawn(t, k, "C", 100, false, makeStep("C"))

	k.Run()

	require.Equal(t, []string{"A", "B", "C", "A", "B", "C", "A", "B", "C"}, order)
}

// TestScenarioPriorityPreemption covers spec §8 scenario 2: a suspended
// high-priority task resumed from within a running low-priority task
// preempts it at the very next dispatch, because Resume inserts it ahead
// of the still-linked running task in the priority-sorted ready queue.
func TestScenarioPriorityPreemption(t *testing.T) {
	k := newTestKernel()
	var order []string

	var hTCB *task.TCB
	lCalls := 0
	spawn(t, k, "L", 200, false, func(tcb *task.TCB, _ func() bool) int {
		order = append(order, "L")
		lCalls++
		if lCalls == 1 {
			k.Resume(hTCB)
			return 0
		}
		return -1
	})

	hCalls := 0
	hTCB = spawn(t, k, "H", 50, false, func(tcb *task.TCB, _ func() bool) int {
		order = append(order, "H")
		hCalls++
		return -1
	})
	// spawn(..., dormant=false, ...) creates a READY task; force H into
	// SUSPENDED for this scenario, the way suspend_task would have left it.
	k.Suspend(hTCB)

	k.Run()

	require.Equal(t, []string{"L", "H", "L"}, order, "H must run immediately after being resumed, before L resumes")
}

// TestScenarioSleepWakeup covers spec §8 scenario 3: a task sleeping for
// 5 ticks is WAITING at ticks 1..4 and READY at tick 5.
func TestScenarioSleepWakeup(t *testing.T) {
	k := newTestKernel()

	var tcb *task.TCB
	calls := 0
	tcb = spawn(t, k, "T", 100, false, func(self *task.TCB, _ func() bool) int {
		calls++
		if calls == 1 {
			k.Sleep(self, 5)
			return 0
		}
		return -1
	})

	// Drive the first step manually (normally Run() would do this, but we
	// want to inspect WAITING state between ticks without looping to
	// completion).
	tcb.State = task.Running
	tcb.VM.ClearPreemption()
	res := tcb.VM.Run()
	require.Equal(t, 0, res)
	require.Equal(t, task.Waiting, tcb.State)
	require.Equal(t, task.WaitSleep, tcb.Reason)

	for i := 0; i < 4; i++ {
		k.TickHandler()
		require.Equal(t, task.Waiting, tcb.State, "tick %d", i+1)
	}
	k.TickHandler()
	require.Equal(t, task.Ready, tcb.State, "tick 5")
}

// TestScenarioMutexPriorityHandoff covers spec §8 scenario 4: two waiters
// block on a held mutex, lower PriorityPreemption value (higher priority)
// enqueued second; on unlock, the higher-priority waiter gets the mutex.
func TestScenarioMutexPriorityHandoff(t *testing.T) {
	k := newTestKernel()
	var m mutex.Mutex
	k.MutexInit(&m)

	owner := spawn(t, k, "O", 1, false, func(*task.TCB, func() bool) int { return -1 })
	require.True(t, k.MutexTryLock(&m, owner))

	w1 := spawn(t, k, "W1", 100, false, func(*task.TCB, func() bool) int { return -1 })
	w2 := spawn(t, k, "W2", 50, false, func(*task.TCB, func() bool) int { return -1 })

	require.False(t, k.MutexLock(&m, w1))
	require.False(t, k.MutexLock(&m, w2))

	k.MutexUnlock(&m, owner)

	require.Equal(t, w2, m.Owner())
	require.Equal(t, task.Ready, w2.State)
	require.Equal(t, task.Waiting, w1.State)
}

// TestScenarioMutexFIFOAmongEquals covers spec §8 scenario 5.
func TestScenarioMutexFIFOAmongEquals(t *testing.T) {
	k := newTestKernel()
	var m mutex.Mutex
	k.MutexInit(&m)

	owner := spawn(t, k, "O", 1, false, func(*task.TCB, func() bool) int { return -1 })
	require.True(t, k.MutexTryLock(&m, owner))

	w1 := spawn(t, k, "W1", 100, false, func(*task.TCB, func() bool) int { return -1 })
	w2 := spawn(t, k, "W2", 100, false, func(*task.TCB, func() bool) int { return -1 })

	require.False(t, k.MutexLock(&m, w1))
	require.False(t, k.MutexLock(&m, w2))

	k.MutexUnlock(&m, owner)

	require.Equal(t, w1, m.Owner(), "first enqueued waiter wins among equal priority")
}

// TestScenarioTerminateDrains covers spec §8 scenario 6: a single task
// returning a negative result moves to DORMANT, closes its VM, and Run
// returns since no queue has anything left runnable.
func TestScenarioTerminateDrains(t *testing.T) {
	k := newTestKernel()
	tcb := spawn(t, k, "only", 1, false, func(*task.TCB, func() bool) int { return -1 })

	done := make(chan struct{})
	go func() {
		k.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the only task terminated")
	}

	require.Equal(t, task.Dormant, tcb.State)
	require.Nil(t, tcb.VM)
}
