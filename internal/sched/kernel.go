// Package sched implements the dispatcher and tick handler named in spec
// §4.3–§4.4: the central loop that picks the highest-priority ready task,
// runs its VM for one step, and reacts to the outcome, plus the interrupt
// handler that drives preemption and timed wakeups.
//
// Grounded on runtime/scheduler_cores.go's scheduler() loop (pop the
// runqueue, resume the task, react, repeat) and scheduleTask/addSleepTask,
// generalized from TinyGo's own goroutine scheduler to the spec's explicit
// priority + mutex + suspend model.
package sched

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/inhies/go-bytesize"

	"github.com/chikuwait/coresched/internal/alloc"
	"github.com/chikuwait/coresched/internal/console"
	"github.com/chikuwait/coresched/internal/hal"
	"github.com/chikuwait/coresched/internal/mutex"
	"github.com/chikuwait/coresched/internal/task"
)

// vmWorkspaceSize is a notional reservation size checked against the
// allocator before a VM is opened, standing in for the real memory budget
// a bare-metal build would have to account for per task (spec §7's "Out of
// memory" path).
const vmWorkspaceSize = 4096

var errOutOfMemory = fmt.Errorf("out of memory")

// Kernel is the scheduler. The zero value is not usable; construct with
// New.
type Kernel struct {
	mgr       task.Manager
	hal       hal.HAL
	console   console.Sink
	alloc     alloc.Allocator
	timeslice uint8
	tick      atomic.Uint64
}

// New builds a Kernel with the given HAL, console sink, and configured
// slice length (spec §6, TIMESLICE_TICK; 0 means use task.DefaultTimeslice).
func New(h hal.HAL, c console.Sink, timesliceTicks uint8) *Kernel {
	if timesliceTicks == 0 {
		timesliceTicks = task.DefaultTimeslice
	}
	return &Kernel{hal: h, console: c, alloc: alloc.Heap{}, timeslice: timesliceTicks}
}

// Tick returns the current value of the global tick counter (spec §3).
func (k *Kernel) Tick() uint64 {
	return k.tick.Load()
}

// CreateTask implements spec §4.2's create_task. If tcb is nil, a fresh TCB
// is allocated at the given priority and made runnable immediately — this
// is the ordinary "create and run a task" path. If the caller supplies an
// already-Dormant tcb of their own (the "optional preallocated tcb"
// reservation spec §4.2's last paragraph describes), it is instead parked
// in the dormant queue without a VM and open is never called — promoting
// a parked TCB to runnable is left to external means, per spec §4.2.
// Otherwise open is called to obtain and load a VM; on failure CreateTask
// returns a nil TCB and the error, without touching any queue (spec §7:
// allocation/VM failures surface as a nil return, not a panic).
func (k *Kernel) CreateTask(tcb *task.TCB, priority uint8, open func() (task.VM, error)) (*task.TCB, error) {
	if tcb == nil {
		tcb = task.New("", priority)
		tcb.State = task.Ready
	}
	tcb.Timeslice = k.timeslice
	tcb.PriorityPreemption = tcb.Priority

	if tcb.State == task.Dormant {
		mask := k.hal.DisableIRQ()
		k.mgr.Insert(tcb)
		k.hal.Restore(mask)
		return tcb, nil
	}

	if buf := k.alloc.RawAlloc(vmWorkspaceSize); buf == nil {
		k.console.Warnf("coresched: create task %q: out of memory", tcb.Name)
		return nil, fmt.Errorf("sched: create task %q: %w", tcb.Name, errOutOfMemory)
	}

	vmInst, err := open()
	if err != nil {
		k.console.Warnf("coresched: create task %q: %v", tcb.Name, err)
		return nil, fmt.Errorf("sched: create task %q: %w", tcb.Name, err)
	}
	tcb.VM = vmInst
	tcb.State = task.Ready

	mask := k.hal.DisableIRQ()
	// Unlink tcb in case an earlier call parked it in the dormant queue.
	k.mgr.DormantQ.Remove(tcb)
	k.mgr.Insert(tcb)
	k.hal.Restore(mask)
	return tcb, nil
}

// Run is the dispatcher: it never returns until the ready, waiting, and
// suspended queues all drain (spec §4.4, negative-result case), meaning
// every task that was ever runnable has terminated.
func (k *Kernel) Run() {
	for {
		mask := k.hal.DisableIRQ()
		head := k.mgr.ReadyQ.Head()
		if head == nil {
			k.hal.Restore(mask)
			k.hal.IdleCPU()
			continue
		}
		head.State = task.Running
		head.VM.ClearPreemption()
		k.hal.Restore(mask)

		result := head.VM.Run()

		mask = k.hal.DisableIRQ()
		if result < 0 {
			k.mgr.Remove(head)
			head.State = task.Dormant
			k.mgr.Insert(head)
			dead := head.VM
			head.VM = nil
			idle := k.mgr.Idle()
			k.hal.Restore(mask)
			_ = dead.Close()
			if idle {
				return
			}
			continue
		}

		if head.State == task.Running {
			head.State = task.Ready
			if head.Timeslice == 0 {
				k.mgr.Requeue(head, func(t *task.TCB) {
					t.Timeslice = k.timeslice
				})
			}
			// else: timeslice not exhausted, leave head in place — it is
			// picked again next iteration, e.g. right after a tick-driven
			// preemption that didn't exhaust the slice.
		}
		// Otherwise head's state already changed (WAITING/SUSPENDED) via a
		// blocking op invoked during the VM step, and the queues already
		// reflect it; nothing further to do here (spec §4.4 step 3).
		k.hal.Restore(mask)
	}
}

// tickDue reports whether a sleeper with the given wakeup tick should be
// woken at now. Spec §4.3 describes literal equality (wakeup_tick == tick)
// as the source behavior, but flags it as unsound against missed ticks
// (§9, OPEN QUESTION). This uses the strengthened signed-difference
// comparison the spec recommends, so a scheduler that skips a tick (e.g.
// a long dispatcher stall) still wakes overdue sleepers on the next one
// instead of losing the wakeup to wraparound or starvation.
func tickDue(wakeupTick, now uint64) bool {
	return int64(now-wakeupTick) >= 0
}

// TickHandler implements spec §4.3. It is meant to be registered as the
// HAL's onTick callback. The HAL does not mask interrupts on its behalf
// (see hal.HAL.Start), so it takes the mask itself, which also keeps it
// correct when called directly (e.g. from the no-timer alternative build
// described in spec §4.4).
func (k *Kernel) TickHandler() {
	mask := k.hal.DisableIRQ()
	defer k.hal.Restore(mask)

	now := k.tick.Add(1)

	if head := k.mgr.ReadyQ.Head(); head != nil && head.State == task.Running && head.Timeslice > 0 {
		head.Timeslice--
		if head.Timeslice == 0 {
			head.VM.RaisePreemption()
		}
	}

	var overdue []*task.TCB
	k.mgr.WaitingQ.Each(func(t *task.TCB) {
		if t.Reason == task.WaitSleep && tickDue(t.WakeupTick, now) {
			overdue = append(overdue, t)
		}
	})
	for _, t := range overdue {
		k.mgr.Requeue(t, func(t *task.TCB) {
			t.State = task.Ready
			t.Reason = task.NotWaiting
			t.Timeslice = k.timeslice
		})
	}

	if len(overdue) > 0 {
		// A woken task may now sit ahead of the running one, so find the
		// running task by state rather than by queue position.
		k.mgr.ReadyQ.Each(func(t *task.TCB) {
			if t.State == task.Running {
				t.VM.RaisePreemption()
			}
		})
	}
}

// Sleep implements spec §4.5's sleep_ms. A no-op if tcb is nil (spec §7:
// blocking ops silently no-op on an unresolved guest-side lookup).
func (k *Kernel) Sleep(tcb *task.TCB, ms uint64) {
	if tcb == nil {
		return
	}
	mask := k.hal.DisableIRQ()
	now := k.tick.Load()
	k.mgr.Requeue(tcb, func(t *task.TCB) {
		t.State = task.Waiting
		t.Reason = task.WaitSleep
		t.WakeupTick = now + ms
	})
	k.hal.Restore(mask)
	tcb.VM.RaisePreemption()
}

// Relinquish implements spec §4.5's relinquish: it exhausts the task's
// slice so the dispatcher rotates it to the tail of its priority group on
// its next return to READY.
func (k *Kernel) Relinquish(tcb *task.TCB) {
	if tcb == nil {
		return
	}
	mask := k.hal.DisableIRQ()
	tcb.Timeslice = 0
	k.hal.Restore(mask)
	tcb.VM.RaisePreemption()
}

// ChangePriority implements spec §4.5's change_priority. Unlike the source
// behavior spec §9 describes (mutate priority in place and rely on the
// next relinquish to force a re-sort), this removes and reinserts tcb
// under the mask immediately, so the sort invariant (spec §3, invariant 2)
// never has a window where it doesn't hold.
func (k *Kernel) ChangePriority(tcb *task.TCB, priority uint8) {
	if tcb == nil {
		return
	}
	mask := k.hal.DisableIRQ()
	k.mgr.Requeue(tcb, func(t *task.TCB) {
		t.Priority = priority
		t.PriorityPreemption = priority
		t.Timeslice = 0
	})
	k.hal.Restore(mask)
	tcb.VM.RaisePreemption()
}

// Suspend implements spec §4.5's suspend_task.
func (k *Kernel) Suspend(tcb *task.TCB) {
	if tcb == nil {
		return
	}
	mask := k.hal.DisableIRQ()
	k.mgr.Requeue(tcb, func(t *task.TCB) {
		t.State = task.Suspended
	})
	k.hal.Restore(mask)
	tcb.VM.RaisePreemption()
}

// Resume implements spec §4.5's resume_task: it moves tcb back to READY
// and raises the preemption flag on the current RUNNING task (if any), so
// a higher-priority resumed task preempts it at the next dispatch.
func (k *Kernel) Resume(tcb *task.TCB) {
	if tcb == nil {
		return
	}
	mask := k.hal.DisableIRQ()
	k.mgr.Requeue(tcb, func(t *task.TCB) {
		t.State = task.Ready
	})
	// tcb may now sit ahead of the running task, so find it by state.
	var running *task.TCB
	k.mgr.ReadyQ.Each(func(t *task.TCB) {
		if t.State == task.Running {
			running = t
		}
	})
	k.hal.Restore(mask)
	if running != nil {
		running.VM.RaisePreemption()
	}
}

// MutexInit, MutexLock, MutexTryLock, and MutexUnlock delegate to package
// mutex, supplying this kernel's queues and HAL. Kept as Kernel methods so
// guest bindings only ever need a single *Kernel handle.

func (k *Kernel) MutexInit(m *mutex.Mutex) {
	mutex.Init(m)
}

func (k *Kernel) MutexLock(m *mutex.Mutex, tcb *task.TCB) bool {
	return mutex.Lock(m, tcb, &k.mgr, k.hal)
}

func (k *Kernel) MutexTryLock(m *mutex.Mutex, tcb *task.TCB) bool {
	return mutex.TryLock(m, tcb, k.hal)
}

func (k *Kernel) MutexUnlock(m *mutex.Mutex, tcb *task.TCB) {
	mutex.Unlock(m, tcb, &k.mgr, k.hal)
}

// Dump writes a snapshot of all four queues and the process's current heap
// footprint to the console sink (spec §6, "a debug dump of the queues").
func (k *Kernel) Dump() {
	mask := k.hal.DisableIRQ()
	defer k.hal.Restore(mask)

	k.dumpQueue("DORMANT", &k.mgr.DormantQ)
	k.dumpQueue("READY/RUNNING", &k.mgr.ReadyQ)
	k.dumpQueue("WAITING", &k.mgr.WaitingQ)
	k.dumpQueue("SUSPENDED", &k.mgr.SuspendedQ)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	k.console.Printf("tick=%d heap_in_use=%s", k.tick.Load(), bytesize.New(float64(ms.HeapInuse)))
}

func (k *Kernel) dumpQueue(label string, q *task.Queue) {
	k.console.Printf("-- %s (%d) --", label, q.Len())
	q.Each(func(t *task.TCB) {
		k.console.Printf("  %-12s pri=%-3d pprio=%-3d slice=%-3d reason=%s",
			t.Name, t.Priority, t.PriorityPreemption, t.Timeslice, reasonString(t.Reason))
	})
}

func reasonString(r task.WaitReason) string {
	switch r {
	case task.WaitSleep:
		return "SLEEP"
	case task.WaitMutex:
		return "MUTEX"
	default:
		return "-"
	}
}
