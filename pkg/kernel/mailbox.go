package kernel

// Mailbox delivers notifications, typically from an ISR to a task.
// Notifications posted while nobody waits are counted.
type Mailbox struct {
	name    string
	pending uint32
	queue   waitQueue
}

// NewMailbox creates a Mailbox.
func (k *Kernel) NewMailbox(name string) *Mailbox {
	return &Mailbox{name: name, queue: newWaitQueue(k.conf.MaxTasks)}
}

func (mb *Mailbox) objectName() string {
	return "mailbox:" + mb.name
}

func (mb *Mailbox) waiters() *waitQueue {
	return &mb.queue
}

// Name returns the mailbox name.
func (mb *Mailbox) Name() string {
	return mb.name
}

// Wait consumes one notification, blocking until one is posted.
func (mb *Mailbox) Wait(c *Context) {
	c.preemptPoint()
	c.k.mask.Lock()
	if mb.pending > 0 {
		mb.pending--
		c.k.mask.Unlock()
		return
	}
	c.block(mb)
}

// Notify posts a notification from task context.
func (mb *Mailbox) Notify(c *Context) {
	c.k.mask.Lock()
	c.k.notifyLocked(mb)
	c.k.mask.Unlock()
	c.preemptPoint()
}

// Pending returns the number of notifications not yet consumed.
func (mb *Mailbox) Pending(k *Kernel) uint32 {
	k.mask.Lock()
	defer k.mask.Unlock()
	return mb.pending
}

func (k *Kernel) notifyLocked(mb *Mailbox) {
	if t := mb.queue.popHighest(); t != nil {
		k.readyLocked(t)
		return
	}
	mb.pending++
}
