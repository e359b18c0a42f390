// Package kernel is a task supervisor for a single microcontroller core.
//
// Tasks are Go functions, each backed by its own goroutine, but the kernel
// passes one execution baton between them: only the Running task executes,
// every other task goroutine is parked until the dispatcher resumes it.
// Scheduling is preemptive by priority (0 is the highest) and FIFO among
// equal priorities. A task is preempted at kernel calls, which is where an
// interrupt-driven wakeup gets noticed, like a pended context switch.
//
// Stacks live in a statically reserved arena. Task code grows its stack
// through Context.Push, so the stack guard sees every write before it lands,
// and the guard region of each task is verified on every context switch.
//
// A faulted task (a Go panic in task code or a stack guard violation) is
// restarted if it was spawned restartable; otherwise the kernel halts and
// Run returns a *HaltError describing the fault.
package kernel

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/taskvisor/pkg/conf"
)

type switchReason int

const (
	switchParked switchReason = iota
	switchExited
	switchFaulted
	switchKilled
)

type switchEvent struct {
	task   *Task
	reason switchReason
	fault  error
}

// Kernel is the task supervisor.
type Kernel struct {
	conf conf.Config

	// mask is the interrupt mask. Holding it is a critical section: tasks,
	// ISRs and the dispatcher mutate shared queues only while holding it.
	mask sync.Mutex

	table   taskTable
	ready   readyQueue
	arena   stackArena
	timer   timerQueue
	current *Task
	nextID  TaskID
	inISR   bool
	halt    *HaltError
	stats   Stats

	listeners []Listener
	breathing *Semaphore

	switchCh chan switchEvent
	wakeCh   chan struct{}
	// dispatching serializes Run, RunUntilIdle and Shutdown.
	dispatching sync.Mutex
}

// New creates a Kernel. All task memory is reserved here.
func New(c *conf.Config) (*Kernel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	k := &Kernel{
		conf:     *c,
		table:    newTaskTable(c.MaxTasks),
		arena:    newStackArena(c.MaxTasks, c.StackSize, c.GuardSize),
		nextID:   TaskID(conf.MainTaskID),
		switchCh: make(chan switchEvent),
		wakeCh:   make(chan struct{}, 1),
	}
	k.timer.queue = newWaitQueue(c.MaxTasks)
	k.breathing = k.NewSemaphore("breathing", conf.BreathingConcurrency, conf.BreathingConcurrency)
	idle := k.table.idle()
	idle.stackTop = k.arena.slotTop(0)
	idle.stackBase = idle.stackTop - c.StackSize
	k.arena.reset(idle)
	idle.ctx = Context{k: k, t: idle}
	k.current = idle
	idle.state = Running
	return k, nil
}

// MustNew creates a Kernel and panics on error.
func MustNew(c *conf.Config) *Kernel {
	k, err := New(c)
	if err != nil {
		panic(err)
	}
	return k
}

// Config returns the kernel parameters.
func (k *Kernel) Config() conf.Config {
	return k.conf
}

// Run schedules tasks until the context is done or the system halts. When no
// task is ready the idle task waits for an interrupt. All task goroutines are
// unwound before Run returns.
func (k *Kernel) Run(ctx context.Context) error {
	k.dispatching.Lock()
	defer k.dispatching.Unlock()
	defer k.shutdown()
	return k.dispatch(ctx, false)
}

// RunUntilIdle schedules tasks until none is ready and returns. It returns a
// *HaltError if the system halts.
func (k *Kernel) RunUntilIdle() error {
	k.dispatching.Lock()
	defer k.dispatching.Unlock()
	err := k.dispatch(context.Background(), true)
	if err != nil {
		k.shutdown()
	}
	return err
}

// Shutdown unwinds all task goroutines. The kernel can't run afterwards.
func (k *Kernel) Shutdown() {
	k.dispatching.Lock()
	defer k.dispatching.Unlock()
	k.shutdown()
}

func (k *Kernel) dispatch(ctx context.Context, untilIdle bool) error {
	idle := k.table.idle()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		k.mask.Lock()
		if k.halt != nil {
			err := k.halt
			k.mask.Unlock()
			return err
		}
		t := k.schedule()
		if t == nil {
			k.current, idle.state = idle, Running
			k.mask.Unlock()
			if untilIdle {
				return nil
			}
			select {
			case <-k.wakeCh:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := k.arena.check(t); err != nil {
			k.mask.Unlock()
			k.faultParked(t, err)
			continue
		}
		idle.state = Ready
		t.state, k.current = Running, t
		k.stats.Switches++
		k.mask.Unlock()

		if glog.V(4) {
			glog.Infof("switch to %s (id %d, prio %d)", t.name, t.id, t.prio)
		}
		t.resume <- struct{}{}
		k.afterSwitch(<-k.switchCh)
	}
}

func (k *Kernel) afterSwitch(ev switchEvent) {
	t := ev.task
	switch ev.reason {
	case switchParked:
		k.mask.Lock()
		k.current = nil
		err := k.arena.check(t)
		k.mask.Unlock()
		if err != nil {
			k.faultParked(t, err)
		}
	case switchExited:
		t.alive = false
		k.mask.Lock()
		k.current = nil
		info, tick := t.info(), k.stats.Ticks
		info.State = Dead
		k.reclaimLocked(t)
		k.mask.Unlock()
		glog.V(2).Infof("task %s (id %d) exited", info.Name, info.ID)
		k.emit(Event{Kind: EventExited, Tick: tick, Task: info})
	case switchFaulted:
		t.alive = false
		k.mask.Lock()
		k.current = nil
		k.mask.Unlock()
		k.recoverTask(t, ev.fault)
	case switchKilled:
		t.alive = false
	}
}

// faultParked unwinds a parked task whose stack check failed and runs the
// recovery path.
func (k *Kernel) faultParked(t *Task, err error) {
	k.kill(t)
	k.recoverTask(t, err)
}

// kill unwinds the goroutine of a parked task.
func (k *Kernel) kill(t *Task) {
	k.mask.Lock()
	k.detachLocked(t)
	t.kill = true
	alive := t.alive
	k.mask.Unlock()
	if !alive {
		return
	}
	// A killed task can't park again, the next event is its exit.
	t.resume <- struct{}{}
	<-k.switchCh
	t.alive = false
}

func (k *Kernel) shutdown() {
	for n := 1; n < len(k.table.slots); n++ {
		t := &k.table.slots[n]
		if t.used && t.alive {
			k.kill(t)
		}
	}
}

// launch starts a goroutine for a new instance of the task. The goroutine
// waits for the dispatcher before entering the task.
func (k *Kernel) launch(t *Task) {
	t.kill = false
	t.alive = true
	t.ctx = Context{k: k, t: t}
	go k.taskMain(t)
}

func (k *Kernel) taskMain(t *Task) {
	<-t.resume
	ev := switchEvent{task: t, reason: switchExited}
	defer func() {
		if r := recover(); r != nil {
			ev.reason, ev.fault = classifyPanic(t, r)
		} else if t.kill {
			ev.reason = switchKilled
		}
		k.switchCh <- ev
	}()
	if t.kill {
		return
	}
	t.entry(&t.ctx)
}

// poke wakes the idle dispatcher.
func (k *Kernel) poke() {
	select {
	case k.wakeCh <- struct{}{}:
	default:
	}
}

// detachLocked removes a task from every queue and releases its mutexes.
func (k *Kernel) detachLocked(t *Task) {
	k.ready.remove(t)
	if obj := t.waitingOn; obj != nil {
		obj.waiters().remove(t)
		t.waitingOn = nil
		if m, ok := obj.(*Mutex); ok && m.owner != nil {
			k.setPriorityLocked(m.owner, k.inheritedPriority(m.owner))
		}
	}
	if s := t.grant; s != nil {
		t.grant = nil
		k.signalLocked(s)
	}
	for len(t.held) > 0 {
		k.releaseLocked(t.held[len(t.held)-1])
	}
	t.prio = t.basePrio
}

// reclaimLocked frees a task slot. The stack region is zeroed before the
// slot can be reused.
func (k *Kernel) reclaimLocked(t *Task) {
	k.detachLocked(t)
	k.arena.reset(t)
	t.state = Dead
	t.entry = nil
	t.used = false
}

// Tasks returns a snapshot of the task table, idle task first.
func (k *Kernel) Tasks() []TaskInfo {
	k.mask.Lock()
	defer k.mask.Unlock()
	return k.tasksLocked()
}

func (k *Kernel) tasksLocked() []TaskInfo {
	infos := make([]TaskInfo, 0, len(k.table.slots))
	for n := range k.table.slots {
		if t := &k.table.slots[n]; t.used {
			infos = append(infos, t.info())
		}
	}
	return infos
}

// Task returns a snapshot of a task.
func (k *Kernel) Task(id TaskID) (TaskInfo, bool) {
	k.mask.Lock()
	defer k.mask.Unlock()
	if t := k.table.lookup(id); t != nil {
		return t.info(), true
	}
	return TaskInfo{}, false
}

// Current returns the Running task, the idle task if nothing else runs.
func (k *Kernel) Current() TaskInfo {
	k.mask.Lock()
	defer k.mask.Unlock()
	if k.current == nil {
		return TaskInfo{}
	}
	return k.current.info()
}

// Stats returns kernel counters.
func (k *Kernel) Stats() Stats {
	k.mask.Lock()
	defer k.mask.Unlock()
	return k.stats
}

// Halted returns the halt error, nil if the system is running.
func (k *Kernel) Halted() *HaltError {
	k.mask.Lock()
	defer k.mask.Unlock()
	return k.halt
}
