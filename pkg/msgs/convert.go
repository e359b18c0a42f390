package msgs

import (
	"github.com/robotalks/taskvisor/pkg/kernel"
)

// FromTaskInfo converts a task snapshot.
func FromTaskInfo(info kernel.TaskInfo) *TaskInfo {
	return &TaskInfo{
		Id:           uint32(info.ID),
		Name:         info.Name,
		State:        int32(info.State),
		Priority:     uint32(info.Priority),
		BasePriority: uint32(info.BasePriority),
		Restartable:  info.Restartable,
		Restarts:     uint32(info.Restarts),
		BlockedOn:    info.BlockedOn,
		StackBase:    info.StackBase,
		StackTop:     info.StackTop,
		Sp:           info.SP,
		StackPeak:    info.StackPeak,
	}
}

// ToTaskInfo converts back to a task snapshot.
func (m *TaskInfo) ToTaskInfo() kernel.TaskInfo {
	if m == nil {
		return kernel.TaskInfo{}
	}
	return kernel.TaskInfo{
		ID:           kernel.TaskID(m.Id),
		Name:         m.Name,
		State:        kernel.State(m.State),
		Priority:     kernel.Priority(m.Priority),
		BasePriority: kernel.Priority(m.BasePriority),
		Restartable:  m.Restartable,
		Restarts:     int(m.Restarts),
		BlockedOn:    m.BlockedOn,
		StackBase:    m.StackBase,
		StackTop:     m.StackTop,
		SP:           m.Sp,
		StackPeak:    m.StackPeak,
	}
}

func fromTaskInfos(infos []kernel.TaskInfo) []*TaskInfo {
	tasks := make([]*TaskInfo, len(infos))
	for n, info := range infos {
		tasks[n] = FromTaskInfo(info)
	}
	return tasks
}

// FromEvent converts a kernel event.
func FromEvent(boardID string, ev kernel.Event) *Event {
	m := &Event{
		Kind:    int32(ev.Kind),
		Tick:    ev.Tick,
		Task:    FromTaskInfo(ev.Task),
		Irq:     ev.IRQ,
		BoardId: boardID,
	}
	if ev.Kind == kernel.EventPriorityInversion {
		m.Other = FromTaskInfo(ev.Other)
	}
	if ev.Err != nil {
		m.Error = ev.Err.Error()
	}
	return m
}

// EventKind returns the kind as a kernel.EventKind.
func (m *Event) EventKind() kernel.EventKind {
	return kernel.EventKind(m.Kind)
}

// FromHalt converts a halt error.
func FromHalt(boardID string, h *kernel.HaltError) *HaltReport {
	m := &HaltReport{
		BoardId: boardID,
		Tick:    h.Tick,
		Task:    FromTaskInfo(h.Task),
		Tasks:   fromTaskInfos(h.Tasks),
	}
	if h.Reason != nil {
		m.Reason = h.Reason.Error()
	}
	return m
}

// FromStats converts kernel counters.
func FromStats(boardID string, s kernel.Stats) *Stats {
	return &Stats{
		BoardId:     boardID,
		Ticks:       s.Ticks,
		Switches:    s.Switches,
		Preemptions: s.Preemptions,
		Faults:      s.Faults,
		Restarts:    s.Restarts,
		Overflows:   s.Overflows,
		Inversions:  s.Inversions,
		Interrupts:  s.Interrupts,
	}
}

// NewTaskList snapshots the task table of k.
func NewTaskList(boardID string, k *kernel.Kernel) *TaskList {
	return &TaskList{
		BoardId: boardID,
		Tick:    k.Ticks(),
		Tasks:   fromTaskInfos(k.Tasks()),
	}
}
