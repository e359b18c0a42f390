package kernel

// syncObject is anything a task can block on.
type syncObject interface {
	objectName() string
	waiters() *waitQueue
}

// schedule pops the highest priority Ready task, nil if none.
func (k *Kernel) schedule() *Task {
	t := k.ready.pop()
	if t != nil && t.state != Ready {
		panic("kernel: " + t.state.String() + " task " + t.name + " in ready queue")
	}
	return t
}

// readyLocked makes a task Ready and queues it.
func (k *Kernel) readyLocked(t *Task) {
	t.waitingOn = nil
	t.state = Ready
	k.ready.push(t)
}

// blockLocked moves a task to Blocked on obj, removing it from the ready
// queue.
func (k *Kernel) blockLocked(t *Task, obj syncObject) {
	k.ready.remove(t)
	t.state = Blocked
	t.waitingOn = obj
	obj.waiters().add(t)
}

// setPriorityLocked changes the effective priority of a task, requeueing it
// and propagating the change along the chain of mutex owners it waits on.
func (k *Kernel) setPriorityLocked(t *Task, p Priority) {
	for depth := 0; t != nil && depth < len(k.table.slots); depth++ {
		if t.prio == p {
			return
		}
		requeue := k.ready.remove(t)
		t.prio = p
		if requeue {
			k.ready.push(t)
		}
		m, ok := t.waitingOn.(*Mutex)
		if !ok || m.owner == nil {
			return
		}
		t = m.owner
		p = k.inheritedPriority(t)
	}
}

// park hands the baton back to the dispatcher and waits to be resumed. The
// caller must have made the task Ready or Blocked. A task being killed can't
// park, its deferred calls keep unwinding instead.
func (c *Context) park() {
	t := c.t
	if t.kill {
		panic(killSignal{})
	}
	c.k.switchCh <- switchEvent{task: t, reason: switchParked}
	<-t.resume
	if t.kill {
		panic(killSignal{})
	}
}

// block parks the task on obj. It must be called with the mask held and
// returns once another task or an ISR made the task Ready again.
func (c *Context) block(obj syncObject) {
	c.k.blockLocked(c.t, obj)
	c.k.mask.Unlock()
	c.park()
}

// Yield re-enqueues the task behind the other ready tasks of its priority and
// lets the scheduler pick the next task.
func (c *Context) Yield() {
	k, t := c.k, c.t
	k.mask.Lock()
	t.state = Ready
	k.ready.push(t)
	k.mask.Unlock()
	c.park()
}

// Checkpoint is a preemption point: if a higher priority task became ready,
// for example from an interrupt, the task is preempted here.
func (c *Context) Checkpoint() {
	c.preemptPoint()
}

func (c *Context) preemptPoint() {
	k, t := c.k, c.t
	k.mask.Lock()
	if t.kill || !k.conf.AllowPreemption || !k.ready.hasHigher(t.prio) {
		k.mask.Unlock()
		return
	}
	t.state = Ready
	k.ready.push(t)
	k.stats.Preemptions++
	k.mask.Unlock()
	c.park()
}
