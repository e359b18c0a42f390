package framework

import (
	"context"
	"time"

	"github.com/robotalks/taskvisor/pkg/conf"
	"github.com/robotalks/taskvisor/pkg/kernel"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunnableFunc is the func form of Runnable.
type RunnableFunc func(context.Context) error

// Run implements Runnable.
func (f RunnableFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Interrupter delivers interrupts to the kernel, implemented by
// *kernel.Kernel.
type Interrupter interface {
	Interrupt(kernel.IRQ, kernel.Handler) error
}

// Source is a peripheral which raises an interrupt.
type Source interface {
	// IRQ is the interrupt line of the source.
	IRQ() kernel.IRQ
	// Due reports whether the source raises its interrupt at this time.
	Due(now time.Time) bool
	// Serve is the interrupt handler.
	Serve(*kernel.ISR)
}

// PriorityLevels is the number of interrupt priority levels, the NVIC
// priority byte divided by its granularity.
const PriorityLevels = 256 / int(conf.IRQPriorityGranularity)

// LevelOf maps an NVIC priority byte to a loop priority level.
func LevelOf(nvicPriority uint8) int {
	return int(nvicPriority / conf.IRQPriorityGranularity)
}

// Request is a one-shot interrupt raised by software, for example a button
// press coming from the console.
type Request struct {
	IRQ      kernel.IRQ
	Priority uint8
	Handler  kernel.Handler
}

// LoopControl exposes access to the interrupt loop.
type LoopControl interface {
	// Raise queues a one-shot interrupt for the next iteration.
	Raise(Request)
	// TriggerNext runs the next iteration immediately.
	TriggerNext()
}
