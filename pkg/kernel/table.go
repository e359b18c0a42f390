package kernel

import "github.com/robotalks/taskvisor/pkg/conf"

// maxHeld is the number of mutexes a task may hold at once.
const maxHeld = 8

// Task is a task control block. Tasks live in the task table and are only
// referenced by queues.
type Task struct {
	id          TaskID
	name        string
	slot        int
	used        bool
	state       State
	basePrio    Priority
	prio        Priority
	entry       Entry
	restartable bool
	restarts    int

	// stack region is [stackBase, stackTop), guard is the low guardSize bytes.
	stackBase uint32
	stackTop  uint32
	sp        uint32
	lowWater  uint32

	next      *Task
	queued    bool
	waitingOn syncObject
	wakeAt    uint64
	held      []*Mutex
	// grant is a semaphore unit handed over by Signal, not yet taken.
	grant *Semaphore

	resume chan struct{}
	alive  bool
	kill   bool
	ctx    Context
}

func (t *Task) info() TaskInfo {
	info := TaskInfo{
		ID:           t.id,
		Name:         t.name,
		State:        t.state,
		Priority:     t.prio,
		BasePriority: t.basePrio,
		Restartable:  t.restartable,
		Restarts:     t.restarts,
		StackBase:    t.stackBase,
		StackTop:     t.stackTop,
		SP:           t.sp,
		StackPeak:    t.stackTop - t.lowWater,
	}
	if t.waitingOn != nil {
		info.BlockedOn = t.waitingOn.objectName()
	}
	return info
}

func (t *Task) addHeld(m *Mutex) error {
	if len(t.held) == cap(t.held) {
		return ErrHeldLimit
	}
	t.held = append(t.held, m)
	return nil
}

func (t *Task) removeHeld(m *Mutex) {
	for n, h := range t.held {
		if h == m {
			copy(t.held[n:], t.held[n+1:])
			t.held[len(t.held)-1] = nil
			t.held = t.held[:len(t.held)-1]
			return
		}
	}
}

// taskTable is the fixed-capacity registry of task control blocks.
// Slot 0 is the idle task.
type taskTable struct {
	slots []Task
}

func newTaskTable(maxTasks int) taskTable {
	tt := taskTable{slots: make([]Task, maxTasks)}
	for n := range tt.slots {
		t := &tt.slots[n]
		t.slot = n
		t.held = make([]*Mutex, 0, maxHeld)
		t.resume = make(chan struct{}, 1)
	}
	idle := &tt.slots[0]
	idle.id = TaskID(conf.IdleTaskID)
	idle.name = "idle"
	idle.used = true
	idle.state = Ready
	idle.basePrio = conf.IdlePriority
	idle.prio = conf.IdlePriority
	return tt
}

func (tt *taskTable) idle() *Task {
	return &tt.slots[0]
}

// alloc returns a free slot, or nil if the table is full.
func (tt *taskTable) alloc() *Task {
	for n := 1; n < len(tt.slots); n++ {
		if t := &tt.slots[n]; !t.used {
			return t
		}
	}
	return nil
}

func (tt *taskTable) lookup(id TaskID) *Task {
	for n := range tt.slots {
		if t := &tt.slots[n]; t.used && t.id == id {
			return t
		}
	}
	return nil
}

func (tt *taskTable) live() int {
	var n int
	for i := 1; i < len(tt.slots); i++ {
		if tt.slots[i].used {
			n++
		}
	}
	return n
}
