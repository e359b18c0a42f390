package kernel

// BreathingBuilder builds a task made of an init phase followed by a loop of
// wait and work phases:
//
//	state := init()
//	for {
//		item := wait(state)
//		work(state, item)
//	}
//
// At most conf.BreathingConcurrency breathing tasks are in their work phase
// at any time, which keeps the stack peaks of these tasks from adding up.
type BreathingBuilder struct {
	b    *TaskBuilder
	init func(*Context) interface{}
	wait func(*Context, interface{}) interface{}
	work func(*Context, interface{}, interface{})
}

// BuildBreathing starts building a breathing task.
func (k *Kernel) BuildBreathing() *BreathingBuilder {
	return &BreathingBuilder{b: k.Build()}
}

// SetName sets the task name.
func (bb *BreathingBuilder) SetName(name string) *BreathingBuilder {
	bb.b.SetName(name)
	return bb
}

// SetPriority sets the base priority.
func (bb *BreathingBuilder) SetPriority(p Priority) *BreathingBuilder {
	bb.b.SetPriority(p)
	return bb
}

// SetStackLimit sets the stack size.
func (bb *BreathingBuilder) SetStackLimit(size uint32) *BreathingBuilder {
	bb.b.SetStackLimit(size)
	return bb
}

// SetInit sets the function creating the task state. It runs again on
// every restart.
func (bb *BreathingBuilder) SetInit(fn func(*Context) interface{}) *BreathingBuilder {
	bb.init = fn
	return bb
}

// SetWait sets the function waiting for the next work item.
func (bb *BreathingBuilder) SetWait(fn func(c *Context, state interface{}) interface{}) *BreathingBuilder {
	bb.wait = fn
	return bb
}

// SetWork sets the function processing a work item.
func (bb *BreathingBuilder) SetWork(fn func(c *Context, state, item interface{})) *BreathingBuilder {
	bb.work = fn
	return bb
}

// Spawn creates the task.
func (bb *BreathingBuilder) Spawn() (TaskID, error) {
	if bb.wait == nil || bb.work == nil {
		return 0, ErrNoEntry
	}
	return bb.b.SetEntry(bb.entry).Spawn()
}

// SpawnRestartable creates a task which is restarted from init when it
// faults.
func (bb *BreathingBuilder) SpawnRestartable() (TaskID, error) {
	if bb.wait == nil || bb.work == nil {
		return 0, ErrNoEntry
	}
	return bb.b.SetEntry(bb.entry).SpawnRestartable()
}

func (bb *BreathingBuilder) entry(c *Context) {
	var state interface{}
	if bb.init != nil {
		state = bb.init(c)
	}
	for {
		item := bb.wait(c, state)
		c.k.breathing.Wait(c)
		bb.exhale(c, state, item)
	}
}

func (bb *BreathingBuilder) exhale(c *Context, state, item interface{}) {
	k := c.k
	// Released without a preemption point, it also runs while unwinding.
	defer func() {
		k.mask.Lock()
		k.signalLocked(k.breathing)
		k.mask.Unlock()
	}()
	bb.work(c, state, item)
}

// BreathingSlots returns how many more breathing tasks may enter their work
// phase right now.
func (k *Kernel) BreathingSlots() int {
	return k.breathing.Count(k)
}
