// Package conf defines the kernel configuration parameters.
//
// Defaults match a STM32F407 discovery board: 16 task slots, 16 priority
// levels with 0 the highest, and a 1 ms SysTick.
package conf

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"
)

// Task priority parameters.
const (
	// PriorityLevels is the number of task priority levels.
	PriorityLevels = 16
	// IdlePriority is the priority of the idle task.
	IdlePriority = PriorityLevels - 1
	// DefaultPriority is used when a task doesn't specify one.
	DefaultPriority = 8
	// BreathingConcurrency bounds the breathing tasks in their work phase.
	BreathingConcurrency = 2
)

// Task ids with a fixed meaning.
const (
	IdleTaskID uint32 = 0
	MainTaskID uint32 = 1
)

// Interrupt priorities. Smaller value is higher priority.
const (
	IRQPriorityGranularity uint8 = 32
	IRQMaxPriority               = 1 * IRQPriorityGranularity
	IRQHighPriority              = 2 * IRQPriorityGranularity
	IRQNormalPriority            = 3 * IRQPriorityGranularity
	IRQLowPriority               = 4 * IRQPriorityGranularity
	IRQMinPriority               = 5 * IRQPriorityGranularity
	SysTickPriority              = IRQLowPriority
)

// Config holds kernel parameters.
type Config struct {
	// MaxTasks is the number of task slots, including the idle task.
	MaxTasks int `yaml:"max_tasks"`
	// StackSize is the size of the stack region reserved per slot.
	StackSize uint32 `yaml:"-"`
	// GuardSize is the size of the guard region at the low end of a stack.
	GuardSize uint32 `yaml:"-"`
	// TickHz is the SysTick frequency.
	TickHz uint32 `yaml:"tick_hz"`
	// AllowPreemption lets a ready higher priority task preempt the running one.
	AllowPreemption bool `yaml:"allow_preemption"`
	// HaltOnFault halts the system when a non-restartable task faults,
	// otherwise the task is terminated and its resources reclaimed.
	HaltOnFault bool `yaml:"halt_on_fault"`
	// MaxRestarts bounds restarts of a single task, 0 means unbounded.
	MaxRestarts int `yaml:"max_restarts"`
}

// fileConfig is the YAML form of Config. Sizes are human readable, e.g. 4KB.
type fileConfig struct {
	Config    `yaml:",inline"`
	StackSize string `yaml:"stack_size"`
	GuardSize string `yaml:"guard_size"`
}

var defaultConfig = Config{
	MaxTasks:        16,
	StackSize:       4096,
	GuardSize:       32,
	TickHz:          1000,
	AllowPreemption: true,
	HaltOnFault:     true,
}

func init() {
	if val := os.Getenv("TASKVISOR_MAX_TASKS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.MaxTasks = n
		}
	}
	if val := os.Getenv("TASKVISOR_STACK_SIZE"); val != "" {
		if n, err := ParseSize(val); err == nil {
			defaultConfig.StackSize = n
		}
	}
	if val := os.Getenv("TASKVISOR_HALT_ON_FAULT"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			defaultConfig.HaltOnFault = b
		}
	}
}

// sizeFlag adapts a byte size to flag.Value.
type sizeFlag struct {
	val *uint32
}

func (f sizeFlag) String() string {
	if f.val == nil {
		return ""
	}
	return bytesize.New(float64(*f.val)).String()
}

func (f sizeFlag) Set(s string) error {
	n, err := ParseSize(s)
	if err != nil {
		return err
	}
	*f.val = n
	return nil
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.MaxTasks, "max-tasks", defaultConfig.MaxTasks, "Number of task slots, including the idle task.")
	flag.Var(sizeFlag{&defaultConfig.StackSize}, "stack-size", "Stack region reserved per task slot, e.g. 4KB.")
	flag.Var(sizeFlag{&defaultConfig.GuardSize}, "guard-size", "Guard region at the low end of each stack.")
	flag.BoolVar(&defaultConfig.AllowPreemption, "preempt", defaultConfig.AllowPreemption, "Allow priority preemption.")
	flag.BoolVar(&defaultConfig.HaltOnFault, "halt-on-fault", defaultConfig.HaltOnFault, "Halt when a non-restartable task faults.")
	flag.IntVar(&defaultConfig.MaxRestarts, "max-restarts", defaultConfig.MaxRestarts, "Restarts allowed per task, 0 for unlimited.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// ParseSize parses a byte size like "4KB" or "512".
func ParseSize(s string) (uint32, error) {
	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		return uint32(n), nil
	}
	b, err := bytesize.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %v", s, err)
	}
	if b < 0 || float64(b) > float64(^uint32(0)) {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return uint32(b), nil
}

// LoadFile overrides the config with values from a YAML file.
func (c *Config) LoadFile(fn string) error {
	data, err := ioutil.ReadFile(fn)
	if err != nil {
		return err
	}
	return c.Load(data)
}

// Load overrides the config with values from YAML content.
func (c *Config) Load(data []byte) error {
	fc := fileConfig{Config: *c}
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return fmt.Errorf("parse config: %v", err)
	}
	if fc.StackSize != "" {
		n, err := ParseSize(fc.StackSize)
		if err != nil {
			return err
		}
		fc.Config.StackSize = n
	}
	if fc.GuardSize != "" {
		n, err := ParseSize(fc.GuardSize)
		if err != nil {
			return err
		}
		fc.Config.GuardSize = n
	}
	*c = fc.Config
	return nil
}

// Validate checks the parameters are consistent.
func (c *Config) Validate() error {
	if c.MaxTasks < 2 {
		return fmt.Errorf("max tasks must be at least 2, got %d", c.MaxTasks)
	}
	if c.StackSize%4 != 0 || c.GuardSize%4 != 0 {
		return fmt.Errorf("stack size and guard size must be 4-byte aligned")
	}
	if c.GuardSize == 0 || c.GuardSize >= c.StackSize {
		return fmt.Errorf("guard size %d must be non-zero and below stack size %d", c.GuardSize, c.StackSize)
	}
	if c.TickHz == 0 {
		return fmt.Errorf("tick frequency must be non-zero")
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("max restarts must not be negative")
	}
	return nil
}
