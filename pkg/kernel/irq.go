package kernel

import (
	"fmt"
	"runtime/debug"

	"github.com/golang/glog"
)

// Handler is an interrupt service routine.
type Handler func(*ISR)

// ISR is the context of a running interrupt handler. Interrupts are masked
// for the whole handler, so it may only use non-blocking operations.
type ISR struct {
	k   *Kernel
	irq IRQ
}

// IRQ returns the interrupt being served.
func (isr *ISR) IRQ() IRQ {
	return isr.irq
}

// Ticks returns the SysTick count.
func (isr *ISR) Ticks() uint64 {
	return isr.k.stats.Ticks
}

// Signal signals a semaphore.
func (isr *ISR) Signal(s *Semaphore) error {
	return isr.k.signalLocked(s)
}

// Notify posts a notification to a mailbox.
func (isr *ISR) Notify(mb *Mailbox) {
	isr.k.notifyLocked(mb)
}

// Interrupt runs handler as the ISR of irq. A task woken by the handler runs
// once the current task reaches its next kernel call, or right away if the
// system is idle. A panic in the handler is caught and returned, the system
// keeps running. Handlers must not raise interrupts themselves.
func (k *Kernel) Interrupt(irq IRQ, handler Handler) error {
	k.mask.Lock()
	if k.halt != nil {
		k.mask.Unlock()
		return ErrHalted
	}
	k.inISR = true
	k.stats.Interrupts++
	fault := k.serve(irq, handler)
	k.inISR = false
	wake := !k.ready.empty()
	tick := k.stats.Ticks
	k.mask.Unlock()

	if fault != nil {
		glog.Warningf("ISR %s faulted: %v", irq.Name, fault)
		k.emit(Event{Kind: EventISRFault, Tick: tick, IRQ: irq.Name, Err: fault})
	}
	if wake {
		k.poke()
	}
	return fault
}

func (k *Kernel) serve(irq IRQ, handler Handler) (fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = fmt.Errorf("ISR %s: %w", irq.Name, &TaskPanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	handler(&ISR{k: k, irq: irq})
	return nil
}

// InISR reports whether an interrupt handler is running.
func (k *Kernel) InISR() bool {
	k.mask.Lock()
	defer k.mask.Unlock()
	return k.inISR
}
