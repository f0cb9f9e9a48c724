// Package vm implements the guest VM collaborator named in spec §6:
// open/load/begin/run/end/close plus a mutable preemption flag. The
// scheduler only depends on the small method set task.VM declares; this
// package supplies two concrete machines.
package vm

import "sync/atomic"

// Toy is a dependency-free VM used by the scheduler's own property and
// scenario tests (spec §8). Guest "bytecode" is just a Go closure that runs
// one unit of work per Run call and decides for itself when to yield (by
// polling Preempted) versus terminate (by returning a negative result) —
// standing in for a real bytecode interpreter's safe-point check.
type Toy struct {
	preempt atomic.Bool
	step    func(preempted func() bool) int
}

// NewToy wraps step as a task.VM. step is called once per Run and should
// return a negative value to signal termination.
func NewToy(step func(preempted func() bool) int) *Toy {
	return &Toy{step: step}
}

func (t *Toy) Run() int {
	return t.step(t.Preempted)
}

// Preempted reports the current preemption flag. Exposed so a Toy program
// can poll it the way a real VM's interpreter loop would at a safe point.
func (t *Toy) Preempted() bool {
	return t.preempt.Load()
}

func (t *Toy) RaisePreemption() {
	t.preempt.Store(true)
}

func (t *Toy) ClearPreemption() {
	t.preempt.Store(false)
}

func (t *Toy) Close() error {
	return nil
}
