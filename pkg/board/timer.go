package board

import (
	"sync"
	"time"

	"github.com/robotalks/taskvisor/pkg/kernel"
)

// Timer is a periodic interrupt source. Missed periods are dropped, the
// way a timer's update flag is only set once until it is cleared.
type Timer struct {
	Line    kernel.IRQ
	Period  time.Duration
	Handler kernel.Handler

	lock sync.Mutex
	next time.Time
}

// NewTimer creates a Timer.
func NewTimer(irq kernel.IRQ, period time.Duration, handler kernel.Handler) *Timer {
	return &Timer{Line: irq, Period: period, Handler: handler}
}

// IRQ implements framework.Source.
func (t *Timer) IRQ() kernel.IRQ {
	return t.Line
}

// Due implements framework.Source. The first call arms the timer.
func (t *Timer) Due(now time.Time) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.Period <= 0 {
		return false
	}
	if t.next.IsZero() {
		t.next = now.Add(t.Period)
		return false
	}
	if now.Before(t.next) {
		return false
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.Period)
	}
	return true
}

// Serve implements framework.Source.
func (t *Timer) Serve(isr *kernel.ISR) {
	if t.Handler != nil {
		t.Handler(isr)
	}
}
