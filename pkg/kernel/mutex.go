package kernel

import (
	"github.com/golang/glog"
)

// Mutex is a kernel mutex with priority inheritance. A task blocking on a
// mutex owned by a lower priority task lends its priority to the owner until
// the owner releases, and the inversion is reported as an event.
type Mutex struct {
	name  string
	owner *Task
	queue waitQueue
}

// NewMutex creates a Mutex. Its wait queue is sized for every task slot.
func (k *Kernel) NewMutex(name string) *Mutex {
	return &Mutex{name: name, queue: newWaitQueue(k.conf.MaxTasks)}
}

func (m *Mutex) objectName() string {
	return "mutex:" + m.name
}

func (m *Mutex) waiters() *waitQueue {
	return &m.queue
}

// Name returns the mutex name.
func (m *Mutex) Name() string {
	return m.name
}

// Acquire locks the mutex, blocking while another task owns it. Acquiring a
// mutex the caller already owns returns ErrDeadlock, acquiring one from a
// task being killed returns ErrKilled.
func (m *Mutex) Acquire(c *Context) error {
	c.preemptPoint()
	k, t := c.k, c.t
	k.mask.Lock()
	switch {
	case t.kill:
		k.mask.Unlock()
		return ErrKilled
	case m.owner == t:
		k.mask.Unlock()
		return ErrDeadlock
	case len(t.held) == cap(t.held):
		k.mask.Unlock()
		return ErrHeldLimit
	case m.owner == nil:
		m.owner = t
		t.addHeld(m)
		k.mask.Unlock()
		return nil
	}

	owner := m.owner
	var inversion *Event
	if owner.prio > t.prio {
		k.stats.Inversions++
		inversion = &Event{
			Kind:  EventPriorityInversion,
			Tick:  k.stats.Ticks,
			Task:  owner.info(),
			Other: t.info(),
		}
		k.setPriorityLocked(owner, t.prio)
	}
	k.blockLocked(t, m)
	k.mask.Unlock()
	if inversion != nil {
		glog.Warningf("priority inversion on %s: %s (prio %d) waits for %s (prio %d)",
			m.name, t.name, inversion.Other.Priority, owner.name, inversion.Task.Priority)
		k.emit(*inversion)
	}
	// The releaser hands ownership over before waking the task.
	c.park()
	return nil
}

// TryAcquire locks the mutex if it is free and reports whether it did.
func (m *Mutex) TryAcquire(c *Context) (bool, error) {
	k, t := c.k, c.t
	k.mask.Lock()
	defer k.mask.Unlock()
	switch {
	case m.owner == t:
		return false, ErrDeadlock
	case m.owner != nil:
		return false, nil
	}
	if err := t.addHeld(m); err != nil {
		return false, err
	}
	m.owner = t
	return true, nil
}

// Release unlocks the mutex and hands it to the highest priority waiter,
// FIFO among equals. Only the owner may release.
func (m *Mutex) Release(c *Context) error {
	k, t := c.k, c.t
	k.mask.Lock()
	if m.owner != t {
		k.mask.Unlock()
		return ErrNotOwner
	}
	k.releaseLocked(m)
	k.mask.Unlock()
	c.preemptPoint()
	return nil
}

// Owner returns the id of the owning task.
func (m *Mutex) Owner(k *Kernel) (TaskID, bool) {
	k.mask.Lock()
	defer k.mask.Unlock()
	if m.owner == nil {
		return 0, false
	}
	return m.owner.id, true
}

// Waiters returns the ids of the blocked tasks in arrival order.
func (m *Mutex) Waiters(k *Kernel) []TaskID {
	k.mask.Lock()
	defer k.mask.Unlock()
	return m.queue.ids()
}

// releaseLocked takes the mutex from its owner, restores the owner's
// priority and transfers ownership to the next waiter, which is returned.
func (k *Kernel) releaseLocked(m *Mutex) *Task {
	owner := m.owner
	owner.removeHeld(m)
	m.owner = nil
	k.setPriorityLocked(owner, k.inheritedPriority(owner))

	next := m.queue.popHighest()
	if next == nil {
		return nil
	}
	m.owner = next
	next.addHeld(m)
	k.readyLocked(next)
	k.setPriorityLocked(next, k.inheritedPriority(next))
	return next
}

// inheritedPriority is the base priority of a task raised to the highest
// priority waiting on a mutex it holds.
func (k *Kernel) inheritedPriority(t *Task) Priority {
	p := t.basePrio
	for _, m := range t.held {
		if n := m.queue.highest(); n >= 0 && m.queue.tasks[n].prio < p {
			p = m.queue.tasks[n].prio
		}
	}
	return p
}
