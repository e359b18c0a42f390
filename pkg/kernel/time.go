package kernel

// timerQueue holds the sleeping tasks.
type timerQueue struct {
	queue waitQueue
}

func (q *timerQueue) objectName() string {
	return "timer"
}

func (q *timerQueue) waiters() *waitQueue {
	return &q.queue
}

// Tick is the SysTick interrupt: it advances the tick count and wakes the
// sleepers whose deadline has come.
func (k *Kernel) Tick() error {
	return k.Interrupt(SysTick, k.sysTick)
}

// SysTickHandler returns the SysTick ISR, for timer sources raising the
// interrupt themselves.
func (k *Kernel) SysTickHandler() Handler {
	return k.sysTick
}

func (k *Kernel) sysTick(*ISR) {
	k.stats.Ticks++
	now := k.stats.Ticks
	q := &k.timer.queue
	for n := 0; n < q.len(); {
		if t := q.tasks[n]; t.wakeAt <= now {
			q.removeAt(n)
			k.readyLocked(t)
			continue
		}
		n++
	}
}

// Ticks returns the SysTick count.
func (k *Kernel) Ticks() uint64 {
	k.mask.Lock()
	defer k.mask.Unlock()
	return k.stats.Ticks
}

// Ticks returns the SysTick count.
func (c *Context) Ticks() uint64 {
	return c.k.Ticks()
}

// Sleep blocks the task for the given number of ticks. Sleep(0) yields.
func (c *Context) Sleep(ticks uint64) {
	if ticks == 0 {
		c.Yield()
		return
	}
	k, t := c.k, c.t
	k.mask.Lock()
	t.wakeAt = k.stats.Ticks + ticks
	c.block(&k.timer)
}

// IntervalBarrier lets a task pass once per interval. Deadlines are fixed
// multiples of the interval from the creation tick, so the period doesn't
// drift with the task's own run time. Missed deadlines are skipped.
type IntervalBarrier struct {
	interval uint64
	next     uint64
}

// NewIntervalBarrier creates an IntervalBarrier starting now.
func NewIntervalBarrier(c *Context, interval uint64) *IntervalBarrier {
	if interval == 0 {
		panic("kernel: zero barrier interval")
	}
	return &IntervalBarrier{interval: interval, next: c.Ticks()}
}

// Wait blocks until the next deadline.
func (b *IntervalBarrier) Wait(c *Context) {
	now := c.Ticks()
	b.next += b.interval
	for b.next <= now {
		b.next += b.interval
	}
	c.Sleep(b.next - now)
}
