package kernel

import (
	"fmt"
)

// TaskID identifies a task instance. Ids are never reused.
type TaskID uint32

// Priority is a task priority, 0 is the highest.
type Priority uint8

// State is the scheduling state of a task.
type State int

// Task states.
const (
	Ready State = iota
	Running
	Blocked
	Dead
	Faulted
)

var stateNames = [...]string{"Ready", "Running", "Blocked", "Dead", "Faulted"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Entry is the entry function of a task.
type Entry func(*Context)

// TaskInfo is a snapshot of a task control block.
type TaskInfo struct {
	ID           TaskID
	Name         string
	State        State
	Priority     Priority
	BasePriority Priority
	Restartable  bool
	Restarts     int
	BlockedOn    string
	StackBase    uint32
	StackTop     uint32
	SP           uint32
	// StackPeak is the largest stack usage in bytes seen so far.
	StackPeak uint32
}

// StackUsed returns the current stack usage in bytes.
func (i TaskInfo) StackUsed() uint32 {
	return i.StackTop - i.SP
}

// IRQ identifies an interrupt line.
type IRQ struct {
	Num  int
	Name string
}

func (q IRQ) String() string {
	return q.Name
}

// SysTick is the system timer interrupt.
var SysTick = IRQ{Num: -1, Name: "SysTick"}

// Stats counts kernel activities.
type Stats struct {
	Ticks       uint64
	Switches    uint64
	Preemptions uint64
	Faults      uint64
	Restarts    uint64
	Overflows   uint64
	Inversions  uint64
	Interrupts  uint64
}
