package kernel

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/taskvisor/pkg/conf"
)

// TaskBuilder collects the parameters of a new task.
type TaskBuilder struct {
	k          *Kernel
	name       string
	entry      Entry
	prio       Priority
	stackLimit uint32
}

// Build starts building a task with the default priority and a full slot
// of stack.
func (k *Kernel) Build() *TaskBuilder {
	return &TaskBuilder{
		k:          k,
		prio:       conf.DefaultPriority,
		stackLimit: k.conf.StackSize,
	}
}

// SetName sets the task name.
func (b *TaskBuilder) SetName(name string) *TaskBuilder {
	b.name = name
	return b
}

// SetEntry sets the entry function.
func (b *TaskBuilder) SetEntry(entry Entry) *TaskBuilder {
	b.entry = entry
	return b
}

// SetPriority sets the base priority. The lowest level is reserved for the
// idle task.
func (b *TaskBuilder) SetPriority(p Priority) *TaskBuilder {
	b.prio = p
	return b
}

// SetStackLimit sets the stack size, rounded up to 4 bytes. It includes the
// guard region.
func (b *TaskBuilder) SetStackLimit(size uint32) *TaskBuilder {
	b.stackLimit = size
	return b
}

// Spawn creates the task. It becomes Ready and runs once the scheduler picks
// it.
func (b *TaskBuilder) Spawn() (TaskID, error) {
	return b.spawn(false)
}

// SpawnRestartable creates a task which is restarted when it faults. The
// restart reuses the slot and id once the faulted instance is torn down, so
// the two never run side by side.
func (b *TaskBuilder) SpawnRestartable() (TaskID, error) {
	return b.spawn(true)
}

func (b *TaskBuilder) spawn(restartable bool) (TaskID, error) {
	k := b.k
	if b.entry == nil {
		return 0, ErrNoEntry
	}
	if b.prio >= conf.IdlePriority {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPriority, b.prio)
	}
	limit := (b.stackLimit + 3) &^ 3
	if limit > k.conf.StackSize || limit <= k.conf.GuardSize {
		return 0, fmt.Errorf("%w: %d", ErrStackLimit, b.stackLimit)
	}

	k.mask.Lock()
	if k.halt != nil {
		k.mask.Unlock()
		return 0, ErrHalted
	}
	t := k.table.alloc()
	if t == nil {
		k.mask.Unlock()
		return 0, ErrTableFull
	}
	t.id = k.nextID
	k.nextID++
	t.name = b.name
	if t.name == "" {
		t.name = fmt.Sprintf("task%d", t.id)
	}
	t.used = true
	t.basePrio, t.prio = b.prio, b.prio
	t.entry = b.entry
	t.restartable = restartable
	t.restarts = 0
	t.stackTop = k.arena.slotTop(t.slot)
	t.stackBase = t.stackTop - limit
	k.arena.reset(t)
	k.launch(t)
	k.readyLocked(t)
	k.poke()
	info, tick := t.info(), k.stats.Ticks
	k.mask.Unlock()

	glog.V(2).Infof("spawned task %s (id %d, prio %d, restartable %v)", info.Name, info.ID, info.Priority, restartable)
	k.emit(Event{Kind: EventSpawned, Tick: tick, Task: info})
	return info.ID, nil
}
