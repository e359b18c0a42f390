// Package firmware is the demo application: four LED blinkers exercising
// plain, restartable, breathing and interrupt driven tasks, plus a task
// recursing until its stack overflows.
package firmware

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/glog"

	"github.com/robotalks/taskvisor/pkg/board"
	"github.com/robotalks/taskvisor/pkg/conf"
	"github.com/robotalks/taskvisor/pkg/kernel"
)

// Task names.
const (
	GreenTask    = "blink-green"
	OrangeTask   = "blink-orange"
	RedTask      = "blink-red"
	BlueTask     = "blink-blue"
	OverflowTask = "fibonacci"
)

const fibFrameSize = 32

// Firmware holds the shared objects of the demo tasks.
type Firmware struct {
	Config Config
	Board  *board.Board

	k      *kernel.Kernel
	orange *kernel.Mutex
	red    *kernel.Mutex
	tim2   *kernel.Mailbox
	ids    map[string]kernel.TaskID
}

// New creates the firmware with the default config without starting it.
func New(k *kernel.Kernel, b *board.Board) *Firmware {
	return &Firmware{
		Config: *Default(),
		Board:  b,
		k:      k,
		orange: k.NewMutex("orange"),
		red:    k.NewMutex("red"),
		tim2:   k.NewMailbox("tim2"),
		ids:    make(map[string]kernel.TaskID),
	}
}

// TaskID returns the id a task was first spawned with. Restarts keep it.
func (fw *Firmware) TaskID(name string) (kernel.TaskID, bool) {
	id, ok := fw.ids[name]
	return id, ok
}

type spawnStep struct {
	name  string
	spawn func() (kernel.TaskID, error)
}

// Start spawns all tasks and hooks the TIM2 interrupt.
func (fw *Firmware) Start() error {
	if fw.Config.BlinkInterval == 0 {
		return fmt.Errorf("blink interval must be positive")
	}
	fw.Board.OnTIM2(fw.tim2Handler)
	steps := []spawnStep{
		{GreenTask, fw.spawnGreen},
		{OrangeTask, fw.spawnOrange},
		{RedTask, fw.spawnRed},
		{BlueTask, fw.spawnBlue},
	}
	if fw.Config.Overflow {
		steps = append(steps, spawnStep{OverflowTask, fw.spawnOverflow})
	}
	for _, step := range steps {
		id, err := step.spawn()
		if err != nil {
			return fmt.Errorf("spawn %s: %w", step.name, err)
		}
		fw.ids[step.name] = id
	}
	glog.Infof("firmware started with %d tasks", len(fw.ids))
	return nil
}

func (fw *Firmware) spawnGreen() (kernel.TaskID, error) {
	led := fw.Board.LED(board.Green)
	return fw.k.Build().
		SetName(GreenTask).
		SetEntry(func(c *kernel.Context) {
			barrier := kernel.NewIntervalBarrier(c, fw.Config.BlinkInterval)
			for {
				barrier.Wait(c)
				led.Toggle()
			}
		}).
		Spawn()
}

// The orange LED is held by the task for its whole life. A panic releases
// it and the restarted instance acquires it again.
func (fw *Firmware) spawnOrange() (kernel.TaskID, error) {
	led := fw.Board.LED(board.Orange)
	panicEvery := fw.Config.OrangePanicEvery
	return fw.k.Build().
		SetName(OrangeTask).
		SetEntry(func(c *kernel.Context) {
			if err := fw.orange.Acquire(c); err != nil {
				panic(err)
			}
			barrier := kernel.NewIntervalBarrier(c, fw.Config.BlinkInterval)
			for cnt := 1; ; cnt++ {
				barrier.Wait(c)
				led.Toggle()
				if panicEvery > 0 && cnt >= panicEvery {
					panic(fmt.Sprintf("orange blinker cycle %d", cnt))
				}
			}
		}).
		SpawnRestartable()
}

type redState struct {
	barrier *kernel.IntervalBarrier
}

func (fw *Firmware) spawnRed() (kernel.TaskID, error) {
	led := fw.Board.LED(board.Red)
	return fw.k.BuildBreathing().
		SetName(RedTask).
		SetInit(func(c *kernel.Context) interface{} {
			return &redState{barrier: kernel.NewIntervalBarrier(c, fw.Config.BlinkInterval)}
		}).
		SetWait(func(c *kernel.Context, state interface{}) interface{} {
			state.(*redState).barrier.Wait(c)
			return nil
		}).
		SetWork(func(c *kernel.Context, _, _ interface{}) {
			if err := fw.red.Acquire(c); err != nil {
				panic(err)
			}
			led.Toggle()
			if err := fw.red.Release(c); err != nil {
				panic(err)
			}
		}).
		SpawnRestartable()
}

func (fw *Firmware) spawnBlue() (kernel.TaskID, error) {
	led := fw.Board.LED(board.Blue)
	return fw.k.Build().
		SetName(BlueTask).
		SetEntry(func(c *kernel.Context) {
			for {
				fw.tim2.Wait(c)
				led.Toggle()
			}
		}).
		Spawn()
}

func (fw *Firmware) tim2Handler(isr *kernel.ISR) {
	isr.Notify(fw.tim2)
}

// ButtonHandler is the EXTI0 ISR. A button press toggles the blue LED like a
// TIM2 update does.
func (fw *Firmware) ButtonHandler() kernel.Handler {
	return fw.tim2Handler
}

// The overflow task runs above the blinkers. Once it is gone the blinkers
// keep their pace.
func (fw *Firmware) spawnOverflow() (kernel.TaskID, error) {
	b := fw.k.Build().
		SetName(OverflowTask).
		SetPriority(conf.DefaultPriority - 1).
		SetEntry(func(c *kernel.Context) {
			fibonacci(c, math.MaxUint32)
		})
	if limit := fw.Config.OverflowStackLimit; limit != 0 {
		b.SetStackLimit(limit)
	}
	return b.Spawn()
}

// fibonacci recurses with a stack frame per call holding its argument.
func fibonacci(c *kernel.Context, x uint64) uint64 {
	var r uint64
	c.Call(fibFrameSize, func(frame []byte) {
		binary.LittleEndian.PutUint64(frame, x)
		if x < 2 {
			r = x
			return
		}
		r = fibonacci(c, x-1) + fibonacci(c, x-2)
	})
	return r
}
