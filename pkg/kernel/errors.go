package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrTableFull indicates no free task slot is left.
	ErrTableFull = errors.New("task table full")
	// ErrNoEntry indicates a task is spawned without an entry function.
	ErrNoEntry = errors.New("task entry not set")
	// ErrInvalidPriority indicates the priority is out of range.
	ErrInvalidPriority = errors.New("invalid task priority")
	// ErrStackLimit indicates the stack limit doesn't fit the slot.
	ErrStackLimit = errors.New("invalid stack limit")
	// ErrNotOwner indicates a mutex is released by a task not owning it.
	ErrNotOwner = errors.New("mutex not owned by caller")
	// ErrDeadlock indicates a task acquires a mutex it already owns.
	ErrDeadlock = errors.New("mutex already owned by caller")
	// ErrHeldLimit indicates a task holds too many mutexes.
	ErrHeldLimit = errors.New("too many mutexes held")
	// ErrSemaphoreFull indicates a signal beyond the semaphore's maximum.
	ErrSemaphoreFull = errors.New("semaphore count at maximum")
	// ErrKilled is returned by blocking calls made while a task is unwinding.
	ErrKilled = errors.New("task killed")
	// ErrHalted indicates the kernel has halted.
	ErrHalted = errors.New("system halted")
	// ErrStackUnderflow indicates more stack is popped than pushed.
	ErrStackUnderflow = errors.New("stack underflow")
)

// StackOverflowError is raised when a task's stack reaches its guard region.
type StackOverflowError struct {
	Task     TaskID
	SP       uint32
	Boundary uint32
	// Corrupted is set when the guard canary was found overwritten.
	Corrupted bool
}

// Error implements error.
func (e *StackOverflowError) Error() string {
	if e.Corrupted {
		return fmt.Sprintf("stack guard corrupted below 0x%08x", e.Boundary)
	}
	return fmt.Sprintf("stack overflow: sp 0x%08x below boundary 0x%08x", e.SP, e.Boundary)
}

// TaskPanicError wraps a panic raised by task code.
type TaskPanicError struct {
	Value interface{}
	Stack []byte
}

// Error implements error.
func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *TaskPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// HaltError is returned by Run when the system halts.
type HaltError struct {
	Task   TaskInfo
	Reason error
	Tick   uint64
	Tasks  []TaskInfo
}

// Error implements error.
func (e *HaltError) Error() string {
	return fmt.Sprintf("system halted at tick %d: task %q (id %d): %v", e.Tick, e.Task.Name, e.Task.ID, e.Reason)
}

// Unwrap returns the fault which caused the halt.
func (e *HaltError) Unwrap() error {
	return e.Reason
}

// Is lets errors.Is match ErrHalted.
func (e *HaltError) Is(target error) bool {
	return target == ErrHalted
}

type killSignal struct{}
