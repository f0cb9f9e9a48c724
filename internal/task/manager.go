package task

// Manager owns the four state-keyed queues (spec §3): one each for
// Dormant, Waiting, and Suspended, and one shared Ready/Running queue. The
// dispatcher runs the head of that queue, so a RUNNING task is the head
// when its step begins; a higher-priority task made READY during that step
// (by a resume, a mutex handoff, or a sleep wakeup) is linked ahead of it
// until the step returns.
//
// Manager itself performs no locking; every exported method must be called
// with the HAL interrupt mask held, because the tick handler walks the same
// queues from interrupt context (spec §4.1).
type Manager struct {
	DormantQ   Queue
	ReadyQ     Queue // READY and RUNNING tasks; the dispatcher runs Head()
	WaitingQ   Queue
	SuspendedQ Queue
}

// queueFor selects the target queue purely from t.State.
func (m *Manager) queueFor(s State) *Queue {
	switch s {
	case Dormant:
		return &m.DormantQ
	case Ready, Running:
		return &m.ReadyQ
	case Waiting:
		return &m.WaitingQ
	case Suspended:
		return &m.SuspendedQ
	default:
		assert(false, "invalid task state")
		return nil
	}
}

// Insert places t into the queue matching its current State.
func (m *Manager) Insert(t *TCB) {
	m.queueFor(t.State).Insert(t)
}

// Remove unlinks t from whichever queue its current State maps to. No-op if
// t isn't actually there (e.g. already removed, or never inserted).
func (m *Manager) Remove(t *TCB) {
	m.queueFor(t.State).Remove(t)
}

// Requeue removes t from its current queue and reinserts it, honoring any
// State/Priority change made in between. Most blocking ops follow this
// remove-then-mutate-then-reinsert shape so the sort invariant (spec §3,
// invariant 2) holds unconditionally rather than relying on a later
// dispatcher pass to re-sort (see spec §9, "Priority change semantics").
func (m *Manager) Requeue(t *TCB, mutate func(*TCB)) {
	m.Remove(t)
	mutate(t)
	m.Insert(t)
}

// Idle reports whether the ready, waiting, and suspended queues are all
// empty. The dispatcher uses this to decide when Run should return (spec
// §4.4, step 3, negative-result case): dormant tasks don't count, since a
// fully-drained dormant task can never run again without external
// intervention this layer doesn't provide.
func (m *Manager) Idle() bool {
	return m.ReadyQ.Empty() && m.WaitingQ.Empty() && m.SuspendedQ.Empty()
}
