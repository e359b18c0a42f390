package kernel

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/golang/glog"
)

// classifyPanic maps a value recovered from a task goroutine to the way the
// goroutine ended.
func classifyPanic(t *Task, r interface{}) (switchReason, error) {
	if _, ok := r.(killSignal); ok || t.kill {
		return switchKilled, nil
	}
	if err, ok := r.(*StackOverflowError); ok {
		return switchFaulted, err
	}
	return switchFaulted, &TaskPanicError{Value: r, Stack: debug.Stack()}
}

// recoverTask runs the fault path of a task whose goroutine is gone:
// a restartable task is reset and re-entered, otherwise the system halts,
// or the task is only terminated when halting on faults is disabled.
func (k *Kernel) recoverTask(t *Task, fault error) {
	k.mask.Lock()
	t.state = Faulted
	k.stats.Faults++
	var overflow *StackOverflowError
	if errors.As(fault, &overflow) {
		k.stats.Overflows++
	}
	tick := k.stats.Ticks
	info := t.info()
	events := []Event{{Kind: EventFaulted, Tick: tick, Task: info, Err: fault}}

	limit := k.conf.MaxRestarts
	switch {
	case t.restartable && (limit == 0 || t.restarts < limit):
		k.detachLocked(t)
		k.arena.reset(t)
		t.restarts++
		k.stats.Restarts++
		k.launch(t)
		k.readyLocked(t)
		events = append(events, Event{Kind: EventRestarted, Tick: tick, Task: t.info(), Err: fault})
		glog.Warningf("task %s (id %d) faulted, restart #%d: %v", t.name, t.id, t.restarts, fault)
	case t.restartable || k.conf.HaltOnFault:
		reason := fault
		if t.restartable {
			reason = fmt.Errorf("restart limit %d reached: %w", limit, fault)
		}
		k.halt = &HaltError{Task: info, Reason: reason, Tick: tick, Tasks: k.tasksLocked()}
		events = append(events, Event{Kind: EventHalted, Tick: tick, Task: info, Err: k.halt})
		glog.Errorf("%v", k.halt)
	default:
		k.reclaimLocked(t)
		dead := info
		dead.State = Dead
		events = append(events, Event{Kind: EventTerminated, Tick: tick, Task: dead, Err: fault})
		glog.Warningf("task %s (id %d) terminated: %v", info.Name, info.ID, fault)
	}
	k.mask.Unlock()
	k.emit(events...)
}
