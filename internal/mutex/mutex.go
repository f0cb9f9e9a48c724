// Package mutex implements the scheduler's blocking mutex primitive (spec
// §4.6): a lock/try-lock/unlock trio whose waiters live in the scheduler's
// global WAITING queue rather than inside the mutex itself, distinguished
// by Reason == WaitMutex and a non-owning Mutex reference.
//
// This generalizes the handoff protocol in the teacher's src/sync/mutex.go
// RWMutex (a futex-word "wake the one waiter who should own the lock next"
// dance) from an opaque futex word to an explicit owner/wait-queue model,
// since spec §4.6 requires direct ownership handoff with no futex
// re-acquire race.
package mutex

import (
	"github.com/chikuwait/coresched/internal/hal"
	"github.com/chikuwait/coresched/internal/task"
)

// Mutex is a scheduler-aware lock. The zero value is unlocked; prefer
// calling Init for clarity at call sites that mirror spec §4.6's
// mutex_init.
type Mutex struct {
	locked bool
	owner  *task.TCB
}

// Init resets m to the unlocked state with no owner.
func Init(m *Mutex) {
	m.locked = false
	m.owner = nil
}

// Locked reports whether m is currently held.
func (m *Mutex) Locked() bool { return m.locked }

// Owner returns the current owner, or nil if unlocked.
func (m *Mutex) Owner() *task.TCB { return m.owner }

// Lock acquires m for tcb. If m is free, tcb becomes the owner immediately
// and Lock returns true. Otherwise tcb is moved to WAITING/WaitMutex and
// Lock returns false; the caller (the dispatcher, after the VM step
// returns) will not see tcb run again until some Unlock hands it the lock.
//
// Must be called without h's interrupt mask held: Lock takes the mask
// itself around its check and its queue mutation.
func Lock(m *Mutex, tcb *task.TCB, mgr *task.Manager, h hal.HAL) bool {
	mask := h.DisableIRQ()
	defer h.Restore(mask)

	if !m.locked {
		m.locked = true
		m.owner = tcb
		return true
	}

	mgr.Requeue(tcb, func(t *task.TCB) {
		t.State = task.Waiting
		t.Reason = task.WaitMutex
		t.Mutex = m
	})
	tcb.VM.RaisePreemption()
	return false
}

// TryLock attempts to acquire m for tcb without blocking. It returns true
// if the lock was acquired, matching spec §4.6's "return 0" (success) /
// "non-zero" (contended) convention inverted into a bool for idiomatic Go.
func TryLock(m *Mutex, tcb *task.TCB, h hal.HAL) bool {
	mask := h.DisableIRQ()
	defer h.Restore(mask)

	if m.locked {
		return false
	}
	m.locked = true
	m.owner = tcb
	return true
}

// Unlock releases m, which must currently be owned by tcb. Unlocking a
// mutex you don't own is a programmer error (spec §7) and panics.
//
// If a task is waiting on m, ownership transfers directly to the
// highest-priority (then earliest-enqueued) waiter: it is moved to READY
// and m stays locked, now under the new owner. No intervening Lock call
// can steal the mutex in between (spec §8, L2), because the whole
// operation runs under the interrupt mask.
func Unlock(m *Mutex, tcb *task.TCB, mgr *task.Manager, h hal.HAL) {
	mask := h.DisableIRQ()
	defer h.Restore(mask)

	if !m.locked || m.owner != tcb {
		panic("coresched: mutex unlock by non-owner")
	}

	var waiter *task.TCB
	mgr.WaitingQ.Each(func(t *task.TCB) {
		if waiter == nil && t.Reason == task.WaitMutex && t.Mutex == m {
			waiter = t
		}
	})

	if waiter == nil {
		m.locked = false
		m.owner = nil
		return
	}

	m.owner = waiter
	mgr.Requeue(waiter, func(t *task.TCB) {
		t.State = task.Ready
		t.Reason = task.NotWaiting
		t.Mutex = nil
	})
	// The waiter may now sit ahead of the running task, so find the running
	// task by state rather than by queue position.
	mgr.ReadyQ.Each(func(t *task.TCB) {
		if t.State == task.Running {
			t.VM.RaisePreemption()
		}
	})
}
