package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tcbAt(name string, prio uint8) *TCB {
	t := New(name, prio)
	t.State = Ready
	return t
}

// TestQueueSortedInsert covers spec §8 P1: queues stay sorted
// non-decreasing by PriorityPreemption, FIFO among equals.
func TestQueueSortedInsert(t *testing.T) {
	var q Queue
	a := tcbAt("a", 100)
	b := tcbAt("b", 50)
	c := tcbAt("c", 100)
	d := tcbAt("d", 10)

	q.Insert(a)
	q.Insert(b)
	q.Insert(c)
	q.Insert(d)

	var order []string
	q.Each(func(tcb *TCB) { order = append(order, tcb.Name) })
	require.Equal(t, []string{"d", "b", "a", "c"}, order)
}

func TestQueueRemoveByIdentity(t *testing.T) {
	var q Queue
	a := tcbAt("a", 1)
	b := tcbAt("b", 1)
	q.Insert(a)
	q.Insert(b)

	q.Remove(a)
	require.Equal(t, b, q.Head())
	require.Nil(t, a.Next)

	// Removing something not present is a no-op.
	q.Remove(a)
	require.Equal(t, b, q.Head())
}

func TestQueueEmpty(t *testing.T) {
	var q Queue
	require.True(t, q.Empty())
	q.Insert(tcbAt("a", 1))
	require.False(t, q.Empty())
}
