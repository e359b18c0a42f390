package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/taskvisor/pkg/conf"
)

var testIRQ = IRQ{Num: 28, Name: "TIM2"}

func testConfig() *conf.Config {
	c := conf.NewConfig()
	c.MaxTasks = 8
	c.StackSize = 1024
	c.GuardSize = 32
	c.TickHz = 1000
	c.AllowPreemption = true
	c.HaltOnFault = true
	c.MaxRestarts = 0
	return c
}

type recorder struct {
	lock   sync.Mutex
	steps  []string
	events []Event
}

func (r *recorder) add(format string, args ...interface{}) {
	r.lock.Lock()
	r.steps = append(r.steps, fmt.Sprintf(format, args...))
	r.lock.Unlock()
}

func (r *recorder) HandleEvent(ev Event) {
	r.lock.Lock()
	r.events = append(r.events, ev)
	r.lock.Unlock()
}

func (r *recorder) Steps() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.steps...)
}

func (r *recorder) kinds(id TaskID) []EventKind {
	r.lock.Lock()
	defer r.lock.Unlock()
	var kinds []EventKind
	for _, ev := range r.events {
		if ev.Task.ID == id {
			kinds = append(kinds, ev.Kind)
		}
	}
	return kinds
}

func newTestKernel(t *testing.T, c *conf.Config) (*Kernel, *recorder) {
	k, err := New(c)
	require.NoError(t, err)
	t.Cleanup(k.Shutdown)
	r := &recorder{}
	k.AddListener(r)
	return k, r
}

func spawn(t *testing.T, k *Kernel, name string, prio Priority, entry Entry) TaskID {
	id, err := k.Build().SetName(name).SetPriority(prio).SetEntry(entry).Spawn()
	require.NoError(t, err)
	return id
}

func spawnRestartable(t *testing.T, k *Kernel, name string, prio Priority, entry Entry) TaskID {
	id, err := k.Build().SetName(name).SetPriority(prio).SetEntry(entry).SpawnRestartable()
	require.NoError(t, err)
	return id
}

func TestSchedulePriorityThenFIFO(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	for _, tc := range []struct {
		name string
		prio Priority
	}{{"p5", 5}, {"p3a", 3}, {"p3b", 3}, {"p1", 1}, {"p14", 14}} {
		name := tc.name
		spawn(t, k, name, tc.prio, func(c *Context) { r.add(name) })
	}
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"p1", "p3a", "p3b", "p5", "p14"}, r.Steps())
	require.Len(t, k.Tasks(), 1, "only idle remains")
	require.Equal(t, "idle", k.Current().Name)
}

func TestYieldRoundRobin(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	for _, name := range []string{"a", "b"} {
		name := name
		spawn(t, k, name, 4, func(c *Context) {
			for n := 0; n < 3; n++ {
				r.add("%s%d", name, n)
				c.Yield()
			}
		})
	}
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"a0", "b0", "a1", "b1", "a2", "b2"}, r.Steps())
}

func TestScheduleNeverSelectsBlocked(t *testing.T) {
	for prio := Priority(0); prio < conf.IdlePriority-1; prio++ {
		t.Run(fmt.Sprintf("prio-%d", prio), func(t *testing.T) {
			k, r := newTestKernel(t, testConfig())
			sem := k.NewSemaphore("go", 0, 0)
			var blockedState State
			high := spawn(t, k, "high", prio, func(c *Context) {
				r.add("high-wait")
				sem.Wait(c)
				r.add("high-done")
			})
			spawn(t, k, "low", conf.IdlePriority-1, func(c *Context) {
				info, _ := c.Kernel().Task(high)
				blockedState = info.State
				r.add("low")
			})
			require.NoError(t, k.RunUntilIdle())
			require.Equal(t, []string{"high-wait", "low"}, r.Steps())
			require.Equal(t, Blocked, blockedState)
			info, ok := k.Task(high)
			require.True(t, ok)
			require.Equal(t, Blocked, info.State)
			require.Equal(t, "sem:go", info.BlockedOn)

			require.NoError(t, k.Interrupt(testIRQ, func(isr *ISR) {
				require.NoError(t, isr.Signal(sem))
			}))
			require.NoError(t, k.RunUntilIdle())
			require.Equal(t, []string{"high-wait", "low", "high-done"}, r.Steps())
		})
	}
}

func TestMutexHandoffAndInheritance(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	m := k.NewMutex("bus")
	resume := k.NewSemaphore("resume", 0, 1)
	var lowPrioAfter Priority
	var waitersSeen [][]TaskID

	low := spawn(t, k, "low", 10, func(c *Context) {
		if err := m.Acquire(c); err != nil {
			panic(err)
		}
		resume.Wait(c)
		if err := m.Release(c); err != nil {
			panic(err)
		}
		lowPrioAfter = c.Priority()
		r.add("low-released")
	})
	require.NoError(t, k.RunUntilIdle())
	owner, held := m.Owner(k)
	require.True(t, held)
	require.Equal(t, low, owner)

	worker := func(name string) Entry {
		return func(c *Context) {
			if err := m.Acquire(c); err != nil {
				panic(err)
			}
			r.add("%s-acquired", name)
			if err := m.Release(c); err != nil {
				panic(err)
			}
			waitersSeen = append(waitersSeen, m.Waiters(c.Kernel()))
			r.add("%s-released", name)
		}
	}
	high := spawn(t, k, "high", 5, worker("high"))
	peer := spawn(t, k, "peer", 5, worker("peer"))
	require.NoError(t, k.RunUntilIdle())

	require.Equal(t, []TaskID{high, peer}, m.Waiters(k))
	info, _ := k.Task(low)
	require.Equal(t, Priority(5), info.Priority, "owner inherits the waiter priority")
	require.Equal(t, Priority(10), info.BasePriority)
	require.Equal(t, uint64(1), k.Stats().Inversions)
	require.Equal(t, []EventKind{EventSpawned, EventPriorityInversion}, r.kinds(low))

	require.NoError(t, k.Interrupt(testIRQ, func(isr *ISR) {
		require.NoError(t, isr.Signal(resume))
	}))
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{
		"high-acquired", "high-released",
		"peer-acquired", "peer-released",
		"low-released",
	}, r.Steps())
	require.Equal(t, Priority(10), lowPrioAfter)
	for _, waiters := range waitersSeen {
		require.NotContains(t, waiters, high)
		require.NotContains(t, waiters, low)
	}
	require.Empty(t, m.Waiters(k))
	_, held = m.Owner(k)
	require.False(t, held)
}

func TestMutexMisuse(t *testing.T) {
	k, _ := newTestKernel(t, testConfig())
	m := k.NewMutex("m")
	var errs []error
	var took []bool
	spawn(t, k, "misuse", 3, func(c *Context) {
		errs = append(errs, m.Release(c))
		errs = append(errs, m.Acquire(c))
		errs = append(errs, m.Acquire(c))
		ok, err := m.TryAcquire(c)
		took = append(took, ok)
		errs = append(errs, err)
		errs = append(errs, m.Release(c))
		ok, err = m.TryAcquire(c)
		took = append(took, ok)
		errs = append(errs, err)
	})
	require.NoError(t, k.RunUntilIdle())
	require.Len(t, errs, 6)
	require.ErrorIs(t, errs[0], ErrNotOwner)
	require.NoError(t, errs[1])
	require.ErrorIs(t, errs[2], ErrDeadlock)
	require.ErrorIs(t, errs[3], ErrDeadlock)
	require.NoError(t, errs[4])
	require.NoError(t, errs[5])
	require.Equal(t, []bool{false, true}, took)
	_, held := m.Owner(k)
	require.False(t, held, "an exiting task releases its mutexes")
}

func TestSemaphore(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	sem := k.NewSemaphore("items", 0, 2)
	for _, tc := range []struct {
		name string
		prio Priority
	}{{"a", 4}, {"b", 2}} {
		name := tc.name
		spawn(t, k, name, tc.prio, func(c *Context) {
			sem.Wait(c)
			r.add(name)
		})
	}
	require.NoError(t, k.RunUntilIdle())
	require.Empty(t, r.Steps())

	signal := func(isr *ISR) { require.NoError(t, isr.Signal(sem)) }
	require.NoError(t, k.Interrupt(testIRQ, signal))
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"b"}, r.Steps(), "highest priority waiter first")
	require.NoError(t, k.Interrupt(testIRQ, signal))
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"b", "a"}, r.Steps())
	require.Zero(t, sem.Count(k))

	var errs []error
	require.NoError(t, k.Interrupt(testIRQ, func(isr *ISR) {
		errs = append(errs, isr.Signal(sem), isr.Signal(sem), isr.Signal(sem))
	}))
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.ErrorIs(t, errs[2], ErrSemaphoreFull)
	require.Equal(t, 2, sem.Count(k))

	var got []bool
	spawn(t, k, "try", 1, func(c *Context) {
		got = append(got, sem.TryWait(c), sem.TryWait(c), sem.TryWait(c))
	})
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []bool{true, true, false}, got)
}

func TestInterruptWakeupPreemptsAtCheckpoint(t *testing.T) {
	testCases := []struct {
		name    string
		preempt bool
		expect  []string
	}{
		{"preemptive", true, []string{"low1", "low2", "high", "low3"}},
		{"cooperative", false, []string{"low1", "low2", "low3", "high"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := testConfig()
			c.AllowPreemption = tc.preempt
			k, r := newTestKernel(t, c)
			mb := k.NewMailbox("button")
			spawn(t, k, "high", 3, func(c *Context) {
				mb.Wait(c)
				r.add("high")
			})
			spawn(t, k, "low", 10, func(c *Context) {
				r.add("low1")
				if err := c.Kernel().Interrupt(testIRQ, func(isr *ISR) { isr.Notify(mb) }); err != nil {
					panic(err)
				}
				r.add("low2")
				c.Checkpoint()
				r.add("low3")
			})
			require.NoError(t, k.RunUntilIdle())
			require.Equal(t, tc.expect, r.Steps())
			if tc.preempt {
				require.Equal(t, uint64(1), k.Stats().Preemptions)
			} else {
				require.Zero(t, k.Stats().Preemptions)
			}
		})
	}
}

func TestMailboxCountsEarlyNotifications(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	mb := k.NewMailbox("rx")
	notify := func(isr *ISR) { isr.Notify(mb) }
	require.NoError(t, k.Interrupt(testIRQ, notify))
	require.NoError(t, k.Interrupt(testIRQ, notify))
	require.Equal(t, uint32(2), mb.Pending(k))
	spawn(t, k, "consumer", 6, func(c *Context) {
		for n := 0; n < 3; n++ {
			mb.Wait(c)
			r.add("got%d", n)
		}
	})
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"got0", "got1"}, r.Steps())
	require.Zero(t, mb.Pending(k))
	require.NoError(t, k.Interrupt(testIRQ, notify))
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"got0", "got1", "got2"}, r.Steps())
	require.Equal(t, uint64(3), k.Stats().Interrupts)
}

func TestInterruptPanicIsContained(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	err := k.Interrupt(testIRQ, func(isr *ISR) { panic("bad vector") })
	var perr *TaskPanicError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "bad vector", perr.Value)
	require.False(t, k.InISR())
	require.Nil(t, k.Halted())
	require.Len(t, r.events, 1)
	require.Equal(t, EventISRFault, r.events[0].Kind)
	require.Equal(t, "TIM2", r.events[0].IRQ)

	spawn(t, k, "still-alive", 5, func(c *Context) { r.add("ran") })
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"ran"}, r.Steps())
}

func TestSleepAndIntervalBarrier(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	sleeper := spawn(t, k, "sleeper", 5, func(c *Context) {
		c.Sleep(3)
		r.add("woke@%d", c.Ticks())
	})
	spawn(t, k, "periodic", 6, func(c *Context) {
		b := NewIntervalBarrier(c, 2)
		for n := 0; n < 3; n++ {
			b.Wait(c)
			r.add("tick@%d", c.Ticks())
		}
	})
	require.NoError(t, k.RunUntilIdle())
	info, _ := k.Task(sleeper)
	require.Equal(t, "timer", info.BlockedOn)
	for n := 0; n < 6; n++ {
		require.NoError(t, k.Tick())
		require.NoError(t, k.RunUntilIdle())
	}
	require.Equal(t, []string{"tick@2", "woke@3", "tick@4", "tick@6"}, r.Steps())
	require.Equal(t, uint64(6), k.Ticks())
}

func TestStackPushTracksUsage(t *testing.T) {
	k, _ := newTestKernel(t, testConfig())
	var sps []uint32
	var frameLen int
	id := spawn(t, k, "frames", 5, func(c *Context) {
		sps = append(sps, c.SP())
		c.Call(10, func(frame []byte) {
			frameLen = len(frame)
			sps = append(sps, c.SP())
			c.Call(100, func([]byte) {
				sps = append(sps, c.SP())
			})
		})
		sps = append(sps, c.SP())
		c.Sleep(1)
	})
	require.NoError(t, k.RunUntilIdle())
	info, _ := k.Task(id)
	top := info.StackTop
	require.Equal(t, []uint32{top, top - 12, top - 112, top}, sps)
	require.Equal(t, 12, frameLen)
	require.Equal(t, uint32(112), info.StackPeak)
	require.Zero(t, info.StackUsed())
}

func TestStackGuardFlagsWriteBeforeCorruption(t *testing.T) {
	testCases := []struct {
		name  string
		entry Entry
	}{
		{"push", func(c *Context) {
			for {
				c.Push(100)
			}
		}},
		{"push near max", func(c *Context) {
			c.Push(0xFFFFFFFE)
		}},
		{"write", func(c *Context) {
			info, _ := c.Kernel().Task(c.ID())
			c.WriteStack(info.StackBase+28, []byte{1, 2, 3, 4, 5, 6, 7, 8})
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			k, r := newTestKernel(t, testConfig())
			id, err := k.Build().SetName(tc.name).SetPriority(5).SetStackLimit(256).SetEntry(tc.entry).Spawn()
			require.NoError(t, err)
			err = k.RunUntilIdle()
			var halt *HaltError
			require.ErrorAs(t, err, &halt)
			require.ErrorIs(t, err, ErrHalted)
			var overflow *StackOverflowError
			require.ErrorAs(t, err, &overflow)
			require.False(t, overflow.Corrupted)
			require.Equal(t, id, overflow.Task)
			require.Equal(t, id, halt.Task.ID)
			require.Equal(t, Faulted, halt.Task.State)

			t.Logf("%v", halt)
			task := k.table.lookup(id)
			require.NotNil(t, task)
			require.Equal(t, task.stackBase+32, overflow.Boundary)
			guard := k.arena.bytes(task.stackBase, task.stackBase+32)
			for n, b := range guard {
				require.Equalf(t, canary[n%4], b, "guard[%d]", n)
			}
			require.Nil(t, k.arena.check(task), "guard still intact")
			require.Equal(t, uint64(1), k.Stats().Overflows)
			require.Equal(t, []EventKind{EventSpawned, EventFaulted, EventHalted}, r.kinds(id))
		})
	}
}

func TestStackGuardCorruptionDetectedAtSwitch(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	var starts []int
	id := spawnRestartable(t, k, "victim", 5, func(c *Context) {
		starts = append(starts, c.Restarts())
		c.Sleep(1)
	})
	require.NoError(t, k.RunUntilIdle())
	require.NoError(t, k.CorruptGuard(id))
	require.NoError(t, k.Tick())
	require.NoError(t, k.RunUntilIdle())

	require.Equal(t, []int{0, 1}, starts)
	require.Equal(t, []EventKind{EventSpawned, EventFaulted, EventRestarted}, r.kinds(id))
	var overflow *StackOverflowError
	require.ErrorAs(t, r.events[len(r.events)-1].Err, &overflow)
	require.True(t, overflow.Corrupted)
	info, ok := k.Task(id)
	require.True(t, ok, "restarted in place")
	require.Equal(t, 1, info.Restarts)
	require.Equal(t, Blocked, info.State)
	require.Nil(t, k.arena.check(k.table.lookup(id)), "guard refilled on restart")
	stats := k.Stats()
	require.Equal(t, uint64(1), stats.Overflows)
	require.Equal(t, uint64(1), stats.Restarts)
}

func TestRestartableTaskRestarts(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	var top, spAtRestart uint32
	id := spawnRestartable(t, k, "blinker", 5, func(c *Context) {
		if c.Restarts() == 0 {
			c.Push(64)
			panic("boom")
		}
		spAtRestart = c.SP()
		r.add("restarted")
	})
	info, _ := k.Task(id)
	top = info.StackTop
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"restarted"}, r.Steps())
	require.Equal(t, top, spAtRestart, "stack reset on restart")
	require.Equal(t, []EventKind{EventSpawned, EventFaulted, EventRestarted, EventExited}, r.kinds(id))
	var perr *TaskPanicError
	require.ErrorAs(t, r.events[1].Err, &perr)
	require.Equal(t, "boom", perr.Value)
	require.NotEmpty(t, perr.Stack)
	_, ok := k.Task(id)
	require.False(t, ok)
}

func TestRestartableFaultReleasesMutex(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	m := k.NewMutex("spi")
	gate := k.NewMailbox("gate")
	spawnRestartable(t, k, "holder", 3, func(c *Context) {
		if c.Restarts() > 0 {
			r.add("holder-restarted")
			return
		}
		if err := m.Acquire(c); err != nil {
			panic(err)
		}
		gate.Wait(c)
		panic("holder fault")
	})
	spawn(t, k, "waiter", 6, func(c *Context) {
		if err := m.Acquire(c); err != nil {
			panic(err)
		}
		r.add("waiter-acquired")
		if err := m.Release(c); err != nil {
			panic(err)
		}
	})
	require.NoError(t, k.RunUntilIdle())
	require.NoError(t, k.Interrupt(testIRQ, func(isr *ISR) { isr.Notify(gate) }))
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"holder-restarted", "waiter-acquired"}, r.Steps())
}

func TestNonRestartableFaultHalts(t *testing.T) {
	k, _ := newTestKernel(t, testConfig())
	bystander := spawn(t, k, "bystander", 9, func(c *Context) {
		c.Sleep(100)
	})
	faulty := spawn(t, k, "faulty", 4, func(c *Context) {
		c.Yield()
		panic(errors.New("sensor gone"))
	})
	err := k.RunUntilIdle()
	var halt *HaltError
	require.ErrorAs(t, err, &halt)
	require.ErrorIs(t, err, ErrHalted)
	require.EqualError(t, errors.Unwrap(halt.Reason), "sensor gone")
	require.Equal(t, faulty, halt.Task.ID)
	var ids []TaskID
	for _, info := range halt.Tasks {
		ids = append(ids, info.ID)
	}
	require.ElementsMatch(t, []TaskID{TaskID(conf.IdleTaskID), bystander, faulty}, ids)

	require.Equal(t, halt, k.Halted())
	_, err = k.Build().SetEntry(func(*Context) {}).Spawn()
	require.ErrorIs(t, err, ErrHalted)
	require.ErrorIs(t, k.Tick(), ErrHalted)
	require.ErrorIs(t, k.RunUntilIdle(), ErrHalted)
}

func TestRestartLimitHalts(t *testing.T) {
	c := testConfig()
	c.MaxRestarts = 2
	k, r := newTestKernel(t, c)
	id := spawnRestartable(t, k, "flaky", 5, func(c *Context) {
		r.add("run%d", c.Restarts())
		panic("again")
	})
	err := k.RunUntilIdle()
	var halt *HaltError
	require.ErrorAs(t, err, &halt)
	require.Equal(t, id, halt.Task.ID)
	require.Equal(t, 2, halt.Task.Restarts)
	var perr *TaskPanicError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, []string{"run0", "run1", "run2"}, r.Steps())
	stats := k.Stats()
	require.Equal(t, uint64(3), stats.Faults)
	require.Equal(t, uint64(2), stats.Restarts)
}

func TestFaultTerminatesWithoutHalt(t *testing.T) {
	c := testConfig()
	c.HaltOnFault = false
	k, r := newTestKernel(t, c)
	m := k.NewMutex("i2c")
	gate := k.NewMailbox("gate")
	faulty := spawn(t, k, "faulty", 3, func(c *Context) {
		if err := m.Acquire(c); err != nil {
			panic(err)
		}
		gate.Wait(c)
		panic("overrun")
	})
	spawn(t, k, "waiter", 5, func(c *Context) {
		if err := m.Acquire(c); err != nil {
			panic(err)
		}
		r.add("waiter-acquired")
	})
	require.NoError(t, k.RunUntilIdle())
	require.NoError(t, k.Interrupt(testIRQ, func(isr *ISR) { isr.Notify(gate) }))
	require.NoError(t, k.RunUntilIdle())

	require.Nil(t, k.Halted())
	require.Equal(t, []string{"waiter-acquired"}, r.Steps())
	require.Equal(t, []EventKind{EventSpawned, EventFaulted, EventTerminated}, r.kinds(faulty))
	_, ok := k.Task(faulty)
	require.False(t, ok, "slot reclaimed")
	require.Len(t, k.Tasks(), 1)
}

func TestBuilderValidation(t *testing.T) {
	k, _ := newTestKernel(t, testConfig())
	nop := func(*Context) {}
	testCases := []struct {
		name string
		b    *TaskBuilder
		err  error
	}{
		{"no-entry", k.Build(), ErrNoEntry},
		{"idle-priority", k.Build().SetEntry(nop).SetPriority(conf.IdlePriority), ErrInvalidPriority},
		{"stack-too-large", k.Build().SetEntry(nop).SetStackLimit(2048), ErrStackLimit},
		{"stack-within-guard", k.Build().SetEntry(nop).SetStackLimit(32), ErrStackLimit},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.b.Spawn()
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestTaskTableFull(t *testing.T) {
	c := testConfig()
	c.MaxTasks = 3
	k, _ := newTestKernel(t, c)
	gate := k.NewMailbox("gate")
	first := spawn(t, k, "first", 5, func(c *Context) {
		c.Call(16, func(frame []byte) {
			for n := range frame {
				frame[n] = 0xaa
			}
			gate.Wait(c)
		})
	})
	spawn(t, k, "second", 5, func(c *Context) { c.Sleep(10) })
	_, err := k.Build().SetEntry(func(*Context) {}).Spawn()
	require.ErrorIs(t, err, ErrTableFull)

	require.NoError(t, k.RunUntilIdle())
	firstInfo, _ := k.Task(first)
	require.NoError(t, k.Interrupt(testIRQ, func(isr *ISR) { isr.Notify(gate) }))
	require.NoError(t, k.RunUntilIdle())

	var dirty []byte
	id, err := k.Build().SetName("third").SetEntry(func(c *Context) {
		c.Call(16, func(frame []byte) {
			dirty = append(dirty, frame...)
		})
	}).Spawn()
	require.NoError(t, err)
	require.Greater(t, uint32(id), uint32(first), "ids are not reused")
	info, _ := k.Task(id)
	require.Equal(t, firstInfo.StackTop, info.StackTop, "freed slot reused")
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, make([]byte, 16), dirty)
}

func TestRunUntilCancelled(t *testing.T) {
	k, _ := newTestKernel(t, testConfig())
	done := make(chan uint64, 1)
	spawn(t, k, "sleeper", 5, func(c *Context) {
		c.Sleep(2)
		done <- c.Ticks()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- k.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	var woke uint64
	for woke == 0 {
		select {
		case woke = <-done:
		case <-time.After(time.Millisecond):
			require.NoError(t, k.Tick())
		case <-deadline:
			t.Fatal("sleeper never woke")
		}
	}
	require.GreaterOrEqual(t, woke, uint64(2))
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestSpawnWakesIdleRun(t *testing.T) {
	k, _ := newTestKernel(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- k.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	ran := make(chan struct{})
	spawn(t, k, "late", 5, func(*Context) { close(ran) })
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task spawned while idle never ran")
	}
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestKilledTaskUnwindsDeferredCalls(t *testing.T) {
	c := testConfig()
	c.HaltOnFault = false
	k, r := newTestKernel(t, c)
	m := k.NewMutex("cleanup")
	id := spawn(t, k, "victim", 5, func(c *Context) {
		defer func() {
			r.add("acquire: %v", m.Acquire(c))
			c.Yield()
			r.add("not reached")
		}()
		c.Sleep(1)
	})
	require.NoError(t, k.RunUntilIdle())
	require.NoError(t, k.CorruptGuard(id))
	require.NoError(t, k.Tick())
	require.NoError(t, k.RunUntilIdle())

	require.Equal(t, []string{"acquire: " + ErrKilled.Error()}, r.Steps())
	require.Equal(t, []EventKind{EventSpawned, EventFaulted, EventTerminated}, r.kinds(id))
	_, ok := m.Owner(k)
	require.False(t, ok)
	require.Len(t, k.Tasks(), 1)
}

func TestBreathingTasksBoundWorkPhase(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	mb := k.NewMailbox("work")
	var inWork, peak int
	for n := 0; n < conf.BreathingConcurrency+2; n++ {
		name := fmt.Sprintf("breath%d", n)
		_, err := k.BuildBreathing().
			SetName(name).
			SetPriority(6).
			SetInit(func(*Context) interface{} { return new(int) }).
			SetWait(func(c *Context, state interface{}) interface{} {
				mb.Wait(c)
				return *state.(*int)
			}).
			SetWork(func(c *Context, state, item interface{}) {
				inWork++
				if inWork > peak {
					peak = inWork
				}
				r.add("%s:%d", name, item)
				c.Yield()
				inWork--
				*state.(*int)++
			}).
			Spawn()
		require.NoError(t, err)
	}
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, conf.BreathingConcurrency, k.BreathingSlots())

	for n := 0; n < 2*(conf.BreathingConcurrency+2); n++ {
		require.NoError(t, k.Interrupt(testIRQ, func(isr *ISR) { isr.Notify(mb) }))
	}
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, conf.BreathingConcurrency, peak)
	require.Len(t, r.Steps(), 2*(conf.BreathingConcurrency+2))
	require.Equal(t, conf.BreathingConcurrency, k.BreathingSlots())

	_, err := k.BuildBreathing().SetWork(func(*Context, interface{}, interface{}) {}).Spawn()
	require.ErrorIs(t, err, ErrNoEntry)
}

func TestRestartedBreathingTaskReleasesWorkSlot(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	id, err := k.BuildBreathing().
		SetName("breath").
		SetInit(func(c *Context) interface{} {
			r.add("init#%d", c.Restarts())
			return nil
		}).
		SetWait(func(c *Context, _ interface{}) interface{} {
			c.Sleep(1)
			return nil
		}).
		SetWork(func(c *Context, _, _ interface{}) {
			if c.Restarts() == 0 {
				panic("work failed")
			}
		}).
		SpawnRestartable()
	require.NoError(t, err)
	require.NoError(t, k.RunUntilIdle())
	require.NoError(t, k.Tick())
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, []string{"init#0", "init#1"}, r.Steps())
	require.Equal(t, []EventKind{EventSpawned, EventFaulted, EventRestarted}, r.kinds(id))
	require.Equal(t, conf.BreathingConcurrency, k.BreathingSlots())
}

func TestKilledBreathingTaskReturnsHandedSlot(t *testing.T) {
	k, r := newTestKernel(t, testConfig())
	var inWork int
	ids := make([]TaskID, conf.BreathingConcurrency+1)
	for n := range ids {
		id, err := k.BuildBreathing().
			SetName(fmt.Sprintf("breath%d", n)).
			SetPriority(6).
			SetWait(func(*Context, interface{}) interface{} { return nil }).
			SetWork(func(c *Context, _, _ interface{}) {
				inWork++
				c.Sleep(2)
				inWork--
			}).
			SpawnRestartable()
		require.NoError(t, err)
		ids[n] = id
	}
	require.NoError(t, k.RunUntilIdle())
	require.Equal(t, conf.BreathingConcurrency, inWork)

	// The last task is parked on the work slot semaphore. It is handed a
	// slot at tick 2 and faults at its next switch-in.
	last := ids[len(ids)-1]
	require.NoError(t, k.CorruptGuard(last))
	for n := 0; n < 8; n++ {
		require.NoError(t, k.Tick())
		require.NoError(t, k.RunUntilIdle())
		require.Equalf(t, conf.BreathingConcurrency, inWork, "tick %d", n+1)
	}
	require.Equal(t, []EventKind{EventSpawned, EventFaulted, EventRestarted}, r.kinds(last))
	require.Zero(t, k.BreathingSlots())
}
