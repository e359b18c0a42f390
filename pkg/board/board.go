// Package board simulates a STM32F4 discovery board: four user LEDs on
// PD12-PD15, the SysTick timer and the TIM2 general purpose timer.
package board

import (
	"sync"
	"time"

	"github.com/robotalks/taskvisor/pkg/conf"
	fx "github.com/robotalks/taskvisor/pkg/framework"
	"github.com/robotalks/taskvisor/pkg/kernel"
)

// Interrupt lines, numbered like the STM32F4 vector table.
var (
	EXTI0 = kernel.IRQ{Num: 6, Name: "EXTI0"}
	TIM2  = kernel.IRQ{Num: 28, Name: "TIM2"}
)

// Interrupt priorities.
const (
	TIM2Priority  = conf.IRQNormalPriority
	EXTI0Priority = conf.IRQHighPriority
)

var ledPins = [NumLEDs]string{"PD12", "PD13", "PD14", "PD15"}

// Board is the simulated discovery board.
type Board struct {
	ID string

	leds    [NumLEDs]*LED
	sysTick *Timer
	tim2    *Timer

	lock      sync.Mutex
	tim2Hooks []kernel.Handler
}

// New creates a Board clocking k.
func New(k *kernel.Kernel, c *Config) *Board {
	b := &Board{ID: c.BoardID()}
	for n := range b.leds {
		b.leds[n] = &LED{Color: Color(n), Pin: ledPins[n]}
	}
	tickHz := k.Config().TickHz
	b.sysTick = NewTimer(kernel.SysTick, time.Second/time.Duration(tickHz), k.SysTickHandler())
	b.tim2 = NewTimer(TIM2, c.TIM2Period, b.serveTIM2)
	return b
}

// LED returns a user LED.
func (b *Board) LED(c Color) *LED {
	return b.leds[c]
}

// LEDs returns the output state of all user LEDs.
func (b *Board) LEDs() [NumLEDs]bool {
	var states [NumLEDs]bool
	for n, led := range b.leds {
		states[n] = led.IsOn()
	}
	return states
}

// SubscribeLEDs registers a listener on every LED.
func (b *Board) SubscribeLEDs(ln LEDListener) {
	for _, led := range b.leds {
		led.subscribe(ln)
	}
}

// OnTIM2 attaches an ISR to the TIM2 update interrupt.
func (b *Board) OnTIM2(handler kernel.Handler) {
	b.lock.Lock()
	b.tim2Hooks = append(b.tim2Hooks, handler)
	b.lock.Unlock()
}

func (b *Board) serveTIM2(isr *kernel.ISR) {
	b.lock.Lock()
	hooks := b.tim2Hooks
	b.lock.Unlock()
	for _, fn := range hooks {
		fn(isr)
	}
}

// PressButton raises EXTI0, the user button interrupt, with handler as ISR.
func (b *Board) PressButton(ctl fx.LoopControl, handler kernel.Handler) {
	ctl.Raise(fx.Request{IRQ: EXTI0, Priority: EXTI0Priority, Handler: handler})
}

// AddToLoop implements framework.LoopAdder.
func (b *Board) AddToLoop(l *fx.Loop) {
	l.Interval = b.sysTick.Period
	l.AddSource(conf.SysTickPriority, b.sysTick)
	l.AddSource(TIM2Priority, b.tim2)
}
