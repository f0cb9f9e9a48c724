// Package task defines the task control block (TCB) and the four
// state-keyed queues that the scheduler moves TCBs between.
//
// This mirrors the shape of the TinyGo runtime's internal/task package
// (see internal/task/queue.go in the original TinyGo tree this module was
// adapted from): tasks are an intrusive singly-linked list, and the queue
// operations are plain pointer-chasing with no allocation. Unlike that
// package, the queues here do not take their own lock — per the scheduler
// design, callers are required to hold the HAL interrupt mask before calling
// any Queue or Manager method, since the tick handler walks these same
// queues from interrupt context.
package task

import "fmt"

// State is one of the five TCB lifecycle states.
type State uint8

const (
	Dormant State = iota
	Ready
	Running
	Waiting
	Suspended
)

func (s State) String() string {
	switch s {
	case Dormant:
		return "DORMANT"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Waiting:
		return "WAITING"
	case Suspended:
		return "SUSPENDED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// WaitReason is meaningful only while State == Waiting.
type WaitReason uint8

const (
	NotWaiting WaitReason = iota
	WaitSleep
	WaitMutex
)

// VM is the out-of-scope guest virtual machine collaborator (spec §6). The
// scheduler calls Run and the preemption flag accessors, and Close when a
// task terminates; loading bytecode and opening the VM happen in the
// bytecode/vm packages before a TCB owns it.
type VM interface {
	// Run executes the guest program until it reaches a safe point, blocks,
	// or terminates. A negative return means the task terminated.
	Run() int
	// RaisePreemption asks the VM to return at its next safe point.
	RaisePreemption()
	// ClearPreemption resets the flag before a fresh run.
	ClearPreemption()
	// Close releases the VM's resources. Safe to call once, after Run has
	// returned a negative result or the task was otherwise torn down.
	Close() error
}

// DefaultTimeslice is the slice length in tick units (spec §6,
// TIMESLICE_TICK), used when a TCB is created without an explicit override.
const DefaultTimeslice = 10

// MaxTimeslice is the largest representable slice length.
const MaxTimeslice = 255

// TCB is a task control block. The zero value is a dormant, unpriveleged
// task with no VM bound; use New to get sane defaults.
type TCB struct {
	State    State
	Reason   WaitReason
	Priority uint8

	// PriorityPreemption is the effective scheduling priority. It currently
	// always mirrors Priority; kept distinct so a future priority
	// inheritance scheme has somewhere to write a boosted value without
	// touching the task's configured base priority.
	PriorityPreemption uint8

	// Timeslice is the number of ticks remaining in the task's current
	// run. Zero means the slice is exhausted and the dispatcher should
	// rotate this task to the tail of its priority group.
	Timeslice uint8

	// WakeupTick is the absolute tick at which a WaitSleep task becomes
	// Ready. Only meaningful when Reason == WaitSleep.
	WakeupTick uint64

	// VM is the guest VM instance bound to this task. Non-nil iff State
	// != Dormant.
	VM VM

	// Mutex is a non-owning reference to the mutex this task is blocked
	// on. Only meaningful when Reason == WaitMutex. Declared as `any` to
	// avoid an import cycle with package mutex; callers compare it for
	// identity against a *mutex.Mutex.
	Mutex any

	// Next is the intrusive singly-linked list link. A TCB is on at most
	// one queue at a time.
	Next *TCB

	// Name is a human-readable label used only by the debug dump.
	Name string
}

// New returns a TCB in the canonical zero-state: Dormant, the given
// priority, a full timeslice, and PriorityPreemption mirroring Priority.
func New(name string, priority uint8) *TCB {
	return &TCB{
		Name:               name,
		State:              Dormant,
		Priority:           priority,
		PriorityPreemption: priority,
		Timeslice:          DefaultTimeslice,
	}
}
