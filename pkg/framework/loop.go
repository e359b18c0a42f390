package framework

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/taskvisor/pkg/kernel"
)

// Loop is the interrupt controller of the simulated board. Every iteration
// it raises the interrupts of the due sources, highest priority level first,
// then the software requests queued since the last iteration.
type Loop struct {
	Interval time.Duration
	Target   Interrupter

	sources [PriorityLevels]sourceList

	runners []Runnable

	requests requestList
	lock     sync.Mutex

	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type requestList struct {
	head *requestItem
	tail *requestItem
}

type requestItem struct {
	req  Request
	next *requestItem
}

func (l *requestList) append(item *requestItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
}

func (l *requestList) splice(src *requestList) {
	l.head, l.tail, src.head, src.tail = src.head, src.tail, nil, nil
}

type sourceList struct {
	sources []Source
	lock    sync.Mutex
}

// NewLoop creates a Loop delivering interrupts to target.
func NewLoop(target Interrupter) *Loop {
	return &Loop{Interval: time.Millisecond, Target: target}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddSource registers interrupt sources at an NVIC priority.
func (l *Loop) AddSource(nvicPriority uint8, srcs ...Source) *Loop {
	lst := &l.sources[LevelOf(nvicPriority)]
	lst.lock.Lock()
	lst.sources = append(lst.sources, srcs...)
	lst.lock.Unlock()
	for _, src := range srcs {
		if runner, ok := src.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions started together with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable. It stops when the context is done or the kernel
// halts.
func (l *Loop) Run(ctx context.Context) error {
	l.lock.Lock()
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	l.lock.Unlock()

	runner := NewRunnerWith(ctx).Go(l.runners...)
	defer runner.Wait()
	defer runner.Stop()

	interval := l.Interval
	if interval == 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			err = l.runIteration(now)
		case <-l.wakeUpCh:
			err = l.runIteration(time.Now())
		}
		if err != nil {
			return err
		}
	}
}

// Raise implements LoopControl.
func (l *Loop) Raise(req Request) {
	l.lock.Lock()
	l.requests.append(&requestItem{req: req})
	l.lock.Unlock()
	l.TriggerNext()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	l.lock.Lock()
	ch := l.wakeUpCh
	l.lock.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (l *Loop) runIteration(now time.Time) error {
	var pending requestList
	l.lock.Lock()
	pending.splice(&l.requests)
	l.lock.Unlock()

	var byLevel [PriorityLevels][]Request
	for item := pending.head; item != nil; item = item.next {
		lv := LevelOf(item.req.Priority)
		byLevel[lv] = append(byLevel[lv], item.req)
	}

	for lv := 0; lv < PriorityLevels; lv++ {
		if err := l.sources[lv].raise(l.Target, now); err != nil {
			return err
		}
		for _, req := range byLevel[lv] {
			if err := deliver(l.Target, req.IRQ, req.Handler); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *sourceList) raise(target Interrupter, now time.Time) error {
	s.lock.Lock()
	srcs := s.sources
	s.lock.Unlock()
	for _, src := range srcs {
		if !src.Due(now) {
			continue
		}
		if err := deliver(target, src.IRQ(), src.Serve); err != nil {
			return err
		}
	}
	return nil
}

// deliver raises one interrupt. Only a halted kernel stops the loop, a
// faulting handler is logged and the loop carries on.
func deliver(target Interrupter, irq kernel.IRQ, handler kernel.Handler) error {
	err := target.Interrupt(irq, handler)
	if err == nil {
		return nil
	}
	if errors.Is(err, kernel.ErrHalted) {
		return err
	}
	glog.Errorf("interrupt %s error: %v", irq.Name, err)
	return nil
}
