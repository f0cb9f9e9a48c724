// Package hal is the hardware abstraction layer collaborator named in
// spec §6: interrupt masking, idle, and a periodic tick source. The
// scheduler only ever sees this interface; everything platform-specific
// lives behind one of the two implementations in this package.
package hal

// HAL is consumed by the scheduler for interrupt masking and idling, and
// drives the scheduler by calling a registered tick callback at a fixed
// rate (nominally TickHz times a second).
type HAL interface {
	// Init prepares the tick source. Must be called once before Start.
	Init() error

	// DisableIRQ masks interrupts and returns an opaque token that Restore
	// uses to reinstate the prior mask state. Callers must pair every
	// DisableIRQ with exactly one Restore, and must not block while
	// masked.
	DisableIRQ() State

	// Restore unmasks interrupts to the state captured by a prior
	// DisableIRQ call.
	Restore(State)

	// IdleCPU is called by the dispatcher when no task is runnable. It
	// should block (or spin) until the next tick or external event, then
	// return.
	IdleCPU()

	// Start begins delivering ticks to onTick at TickHz. onTick runs in
	// interrupt context: it must not block and must itself bracket any
	// queue access with DisableIRQ/Restore (the tick handler in package
	// sched does this internally).
	Start(onTick func()) error

	// Stop halts tick delivery. Idempotent.
	Stop()
}

// State is the opaque interrupt-mask token returned by DisableIRQ.
type State interface{}
