package kernel

import (
	"math/bits"

	"github.com/robotalks/taskvisor/pkg/conf"
)

// fifo is a FIFO of tasks linked through Task.next.
// The zero value is an empty queue.
type fifo struct {
	head, tail *Task
}

func (q *fifo) push(t *Task) {
	if t.next != nil || q.tail == t {
		panic("kernel: pushing a queued task")
	}
	if q.tail != nil {
		q.tail.next = t
	}
	q.tail = t
	if q.head == nil {
		q.head = t
	}
}

func (q *fifo) pop() *Task {
	t := q.head
	if t == nil {
		return nil
	}
	q.head = t.next
	if q.tail == t {
		q.tail = nil
	}
	t.next = nil
	return t
}

func (q *fifo) remove(t *Task) bool {
	var prev *Task
	for curr := q.head; curr != nil; prev, curr = curr, curr.next {
		if curr != t {
			continue
		}
		if prev == nil {
			q.head = curr.next
		} else {
			prev.next = curr.next
		}
		if q.tail == curr {
			q.tail = prev
		}
		curr.next = nil
		return true
	}
	return false
}

// readyQueue keeps one FIFO per priority level and a bitmap of the
// non-empty levels, bit n set means level n has ready tasks.
type readyQueue struct {
	levels [conf.PriorityLevels]fifo
	bitmap uint32
}

func (q *readyQueue) push(t *Task) {
	q.levels[t.prio].push(t)
	q.bitmap |= 1 << t.prio
	t.queued = true
}

// pop removes the highest priority task, FIFO within the level.
func (q *readyQueue) pop() *Task {
	if q.bitmap == 0 {
		return nil
	}
	level := bits.TrailingZeros32(q.bitmap)
	t := q.levels[level].pop()
	if q.levels[level].head == nil {
		q.bitmap &^= 1 << uint(level)
	}
	t.queued = false
	return t
}

func (q *readyQueue) remove(t *Task) bool {
	if !t.queued {
		return false
	}
	lst := &q.levels[t.prio]
	if !lst.remove(t) {
		return false
	}
	if lst.head == nil {
		q.bitmap &^= 1 << t.prio
	}
	t.queued = false
	return true
}

// hasHigher reports whether a task with priority higher than p is ready.
func (q *readyQueue) hasHigher(p Priority) bool {
	return q.bitmap&(1<<p-1) != 0
}

func (q *readyQueue) empty() bool {
	return q.bitmap == 0
}

// waitQueue is the ordered set of tasks blocked on an object.
// Its capacity is fixed at creation so adding never allocates.
type waitQueue struct {
	tasks []*Task
}

func newWaitQueue(capacity int) waitQueue {
	return waitQueue{tasks: make([]*Task, 0, capacity)}
}

func (q *waitQueue) contains(t *Task) bool {
	for _, w := range q.tasks {
		if w == t {
			return true
		}
	}
	return false
}

func (q *waitQueue) add(t *Task) {
	if q.contains(t) {
		panic("kernel: task already in wait queue")
	}
	if len(q.tasks) == cap(q.tasks) {
		panic("kernel: wait queue overflow")
	}
	q.tasks = append(q.tasks, t)
}

func (q *waitQueue) removeAt(n int) *Task {
	t := q.tasks[n]
	copy(q.tasks[n:], q.tasks[n+1:])
	q.tasks[len(q.tasks)-1] = nil
	q.tasks = q.tasks[:len(q.tasks)-1]
	return t
}

func (q *waitQueue) remove(t *Task) bool {
	for n, w := range q.tasks {
		if w == t {
			q.removeAt(n)
			return true
		}
	}
	return false
}

// highest returns the index of the highest priority waiter, the earliest
// among equals, or -1 if empty.
func (q *waitQueue) highest() int {
	best := -1
	for n, w := range q.tasks {
		if best < 0 || w.prio < q.tasks[best].prio {
			best = n
		}
	}
	return best
}

func (q *waitQueue) popHighest() *Task {
	if n := q.highest(); n >= 0 {
		return q.removeAt(n)
	}
	return nil
}

func (q *waitQueue) len() int {
	return len(q.tasks)
}

func (q *waitQueue) ids() []TaskID {
	ids := make([]TaskID, len(q.tasks))
	for n, t := range q.tasks {
		ids[n] = t.id
	}
	return ids
}
