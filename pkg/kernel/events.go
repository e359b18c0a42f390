package kernel

import "fmt"

// EventKind classifies kernel events.
type EventKind int

// Event kinds.
const (
	EventSpawned EventKind = iota
	EventExited
	EventFaulted
	EventRestarted
	EventTerminated
	EventHalted
	EventPriorityInversion
	EventISRFault
)

var eventNames = [...]string{
	"spawned", "exited", "faulted", "restarted", "terminated", "halted", "priority-inversion", "isr-fault",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event reports a task lifecycle change or a detected fault.
type Event struct {
	Kind EventKind
	Tick uint64
	Task TaskInfo
	// Other is the waiting task of a priority inversion.
	Other TaskInfo
	IRQ   string
	Err   error
}

// Listener receives kernel events. It is called synchronously from the
// kernel and must not call back into blocking kernel operations.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc is the func form of Listener.
type ListenerFunc func(Event)

// HandleEvent implements Listener.
func (f ListenerFunc) HandleEvent(ev Event) {
	f(ev)
}

// AddListener registers a Listener.
func (k *Kernel) AddListener(ln Listener) {
	k.mask.Lock()
	k.listeners = append(k.listeners, ln)
	k.mask.Unlock()
}

func (k *Kernel) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	k.mask.Lock()
	lns := k.listeners
	k.mask.Unlock()
	for _, ev := range events {
		for _, ln := range lns {
			ln.HandleEvent(ev)
		}
	}
}
