package kernel

// Context is handed to a task entry and carries the task's view of the
// kernel. It must only be used by the task it was handed to.
type Context struct {
	k *Kernel
	t *Task
}

// Kernel returns the kernel running the task.
func (c *Context) Kernel() *Kernel {
	return c.k
}

// ID returns the task id.
func (c *Context) ID() TaskID {
	return c.t.id
}

// Name returns the task name.
func (c *Context) Name() string {
	return c.t.name
}

// Priority returns the effective priority of the task.
func (c *Context) Priority() Priority {
	c.k.mask.Lock()
	defer c.k.mask.Unlock()
	return c.t.prio
}

// Restarts returns how many times the task has been restarted.
func (c *Context) Restarts() int {
	return c.t.restarts
}

// SP returns the current stack pointer.
func (c *Context) SP() uint32 {
	c.k.mask.Lock()
	defer c.k.mask.Unlock()
	return c.t.sp
}

// Push grows the stack by n bytes (rounded up to 4) and returns the new
// frame. Growing into the guard region raises a *StackOverflowError panic
// before the stack pointer moves, which faults the task.
func (c *Context) Push(n uint32) []byte {
	c.preemptPoint()
	k, t := c.k, c.t
	size := alignFrame(n)
	k.mask.Lock()
	boundary := k.arena.boundary(t)
	if size > uint64(t.sp-boundary) {
		err := &StackOverflowError{Task: t.id, Boundary: boundary}
		if size <= uint64(t.sp) {
			err.SP = t.sp - uint32(size)
		}
		k.mask.Unlock()
		panic(err)
	}
	sp := t.sp
	t.sp -= uint32(size)
	if t.sp < t.lowWater {
		t.lowWater = t.sp
	}
	frame := k.arena.bytes(t.sp, sp)
	k.mask.Unlock()
	return frame
}

// Pop shrinks the stack by n bytes (rounded up to 4).
func (c *Context) Pop(n uint32) {
	k, t := c.k, c.t
	size := alignFrame(n)
	k.mask.Lock()
	if size > uint64(t.stackTop-t.sp) {
		k.mask.Unlock()
		panic(ErrStackUnderflow)
	}
	t.sp += uint32(size)
	k.mask.Unlock()
}

// alignFrame rounds n up to 4 without wrapping.
func alignFrame(n uint32) uint64 {
	return (uint64(n) + 3) &^ 3
}

// Call runs fn with a stack frame of the given size, popped when fn returns.
func (c *Context) Call(frameSize uint32, fn func(frame []byte)) {
	frame := c.Push(frameSize)
	defer c.Pop(frameSize)
	fn(frame)
}

// WriteStack writes raw bytes to the task's stack at addr. A write reaching
// below the guard boundary is flagged before any byte is written.
func (c *Context) WriteStack(addr uint32, data []byte) {
	k, t := c.k, c.t
	k.mask.Lock()
	if err := k.arena.checkWrite(t, addr, uint32(len(data))); err != nil {
		k.mask.Unlock()
		panic(err)
	}
	copy(k.arena.bytes(addr, addr+uint32(len(data))), data)
	if addr < t.lowWater {
		t.lowWater = addr
	}
	k.mask.Unlock()
}
