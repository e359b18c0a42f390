package sh

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/robotalks/taskvisor/pkg/board"
	"github.com/robotalks/taskvisor/pkg/diag"
	"github.com/robotalks/taskvisor/pkg/kernel"
)

type command struct {
	name    string
	aliases []string
	help    string
	run     func(s *Shell, w io.Writer, args []string) error
}

var commands = make(map[string]*command)

func register(cmds ...*command) {
	for _, cmd := range cmds {
		commands[cmd.name] = cmd
	}
}

func lookup(name string) *command {
	if cmd, ok := commands[name]; ok {
		return cmd
	}
	for _, cmd := range commands {
		for _, alias := range cmd.aliases {
			if alias == name {
				return cmd
			}
		}
	}
	return nil
}

// Workloads are the task bodies the spawn command can start.
var Workloads = map[string]kernel.Entry{
	"exit": func(c *kernel.Context) {},
	"sleep": func(c *kernel.Context) {
		for {
			c.Sleep(100)
		}
	},
	"panic": func(c *kernel.Context) {
		c.Sleep(1)
		panic("panic requested from console")
	},
	"overflow": func(c *kernel.Context) {
		recurse(c)
	},
}

func recurse(c *kernel.Context) {
	c.Call(64, func([]byte) { recurse(c) })
}

func parseTaskID(arg string) (kernel.TaskID, error) {
	id, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return kernel.TaskID(id), nil
}

func init() {
	register(
		&command{
			name:    "ps",
			aliases: []string{"tasks"},
			help:    "list tasks",
			run: func(s *Shell, w io.Writer, args []string) error {
				diag.FormatTasks(w, s.Kernel.Tasks())
				return nil
			},
		},
		&command{
			name: "spawn",
			help: "NAME PRIORITY WORKLOAD [restart], workloads: exit, sleep, panic, overflow",
			run:  spawnCmd,
		},
		&command{
			name:    "corrupt",
			aliases: []string{"fault"},
			help:    "ID, overwrite the stack guard of a task",
			run: func(s *Shell, w io.Writer, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("usage: corrupt ID")
				}
				id, err := parseTaskID(args[0])
				if err != nil {
					return err
				}
				return s.Kernel.CorruptGuard(id)
			},
		},
		&command{
			name: "poke",
			help: "ADDR HEX, write raw bytes into task stack memory",
			run: func(s *Shell, w io.Writer, args []string) error {
				if len(args) != 2 {
					return fmt.Errorf("usage: poke ADDR HEX")
				}
				addr, err := strconv.ParseUint(args[0], 0, 32)
				if err != nil {
					return fmt.Errorf("invalid address %q", args[0])
				}
				data, err := hex.DecodeString(args[1])
				if err != nil {
					return fmt.Errorf("invalid data: %w", err)
				}
				return s.Kernel.WriteMemory(uint32(addr), data)
			},
		},
		&command{
			name:    "button",
			aliases: []string{"irq"},
			help:    "press the user button (EXTI0)",
			run: func(s *Shell, w io.Writer, args []string) error {
				if s.Loop == nil || s.Firmware == nil {
					return fmt.Errorf("no firmware running")
				}
				s.Board.PressButton(s.Loop, s.Firmware.ButtonHandler())
				return nil
			},
		},
		&command{
			name: "tick",
			help: "[N], raise SysTick N times",
			run: func(s *Shell, w io.Writer, args []string) error {
				n := 1
				if len(args) > 0 {
					v, err := strconv.Atoi(args[0])
					if err != nil || v <= 0 {
						return fmt.Errorf("invalid count %q", args[0])
					}
					n = v
				}
				for ; n > 0; n-- {
					if err := s.Kernel.Tick(); err != nil {
						return err
					}
				}
				fmt.Fprintf(w, "tick %d\n", s.Kernel.Ticks())
				return nil
			},
		},
		&command{
			name: "stats",
			help: "show kernel counters",
			run: func(s *Shell, w io.Writer, args []string) error {
				st := s.Kernel.Stats()
				fmt.Fprintf(w, "ticks=%d switches=%d preemptions=%d interrupts=%d\n",
					st.Ticks, st.Switches, st.Preemptions, st.Interrupts)
				fmt.Fprintf(w, "faults=%d restarts=%d overflows=%d inversions=%d\n",
					st.Faults, st.Restarts, st.Overflows, st.Inversions)
				if h := s.Kernel.Halted(); h != nil {
					diag.FormatHalt(w, h)
				}
				return nil
			},
		},
		&command{
			name: "leds",
			help: "show the user LEDs",
			run: func(s *Shell, w io.Writer, args []string) error {
				fmt.Fprintln(w, board.FormatLEDs(s.Board.LEDs()))
				return nil
			},
		},
	)
}

func spawnCmd(s *Shell, w io.Writer, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("usage: spawn NAME PRIORITY WORKLOAD [restart]")
	}
	prio, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return fmt.Errorf("invalid priority %q", args[1])
	}
	entry, ok := Workloads[strings.ToLower(args[2])]
	if !ok {
		return fmt.Errorf("unknown workload %q", args[2])
	}
	b := s.Kernel.Build().SetName(args[0]).SetPriority(kernel.Priority(prio)).SetEntry(entry)
	var id kernel.TaskID
	switch {
	case len(args) == 3:
		id, err = b.Spawn()
	case args[3] == "restart":
		id, err = b.SpawnRestartable()
	default:
		return fmt.Errorf("unexpected %q", args[3])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "spawned %s id %d\n", args[0], id)
	return nil
}
