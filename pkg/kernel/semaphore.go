package kernel

// Semaphore is a counting semaphore. A zero max means unbounded.
type Semaphore struct {
	name  string
	count int
	max   int
	queue waitQueue
}

// NewSemaphore creates a Semaphore with an initial count.
func (k *Kernel) NewSemaphore(name string, initial, max int) *Semaphore {
	if initial < 0 || (max > 0 && initial > max) {
		panic("kernel: invalid semaphore count")
	}
	return &Semaphore{
		name:  name,
		count: initial,
		max:   max,
		queue: newWaitQueue(k.conf.MaxTasks),
	}
}

func (s *Semaphore) objectName() string {
	return "sem:" + s.name
}

func (s *Semaphore) waiters() *waitQueue {
	return &s.queue
}

// Name returns the semaphore name.
func (s *Semaphore) Name() string {
	return s.name
}

// Wait decrements the count, blocking while it is zero.
func (s *Semaphore) Wait(c *Context) {
	c.preemptPoint()
	k := c.k
	k.mask.Lock()
	if s.count > 0 {
		s.count--
		k.mask.Unlock()
		return
	}
	// Signal hands the unit to the woken task directly. A task killed
	// before it runs gives the unit back in detachLocked.
	c.block(s)
	k.mask.Lock()
	c.t.grant = nil
	k.mask.Unlock()
}

// TryWait decrements the count if it is positive and reports whether it did.
func (s *Semaphore) TryWait(c *Context) bool {
	c.k.mask.Lock()
	defer c.k.mask.Unlock()
	if s.count > 0 {
		s.count--
		return true
	}
	return false
}

// Signal increments the count, or wakes the highest priority waiter.
func (s *Semaphore) Signal(c *Context) error {
	c.k.mask.Lock()
	err := c.k.signalLocked(s)
	c.k.mask.Unlock()
	c.preemptPoint()
	return err
}

// Count returns the current count.
func (s *Semaphore) Count(k *Kernel) int {
	k.mask.Lock()
	defer k.mask.Unlock()
	return s.count
}

func (k *Kernel) signalLocked(s *Semaphore) error {
	if t := s.queue.popHighest(); t != nil {
		t.grant = s
		k.readyLocked(t)
		return nil
	}
	if s.max > 0 && s.count >= s.max {
		return ErrSemaphoreFull
	}
	s.count++
	return nil
}
