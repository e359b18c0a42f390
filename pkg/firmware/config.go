package firmware

import (
	"flag"

	"github.com/robotalks/taskvisor/pkg/board"
	"github.com/robotalks/taskvisor/pkg/kernel"
)

// Config defines the parameters of the demo firmware.
type Config struct {
	// BlinkInterval is the blinking period in ticks.
	BlinkInterval uint64
	// OrangePanicEvery makes the orange blinker panic after that many
	// cycles, 0 never.
	OrangePanicEvery int
	// Overflow enables the task overflowing its stack.
	Overflow bool
	// OverflowStackLimit is the stack limit of the overflow task, 0 for the
	// kernel's stack size.
	OverflowStackLimit uint32
}

var defaultConfig = Config{
	BlinkInterval:      500,
	OrangePanicEvery:   10,
	Overflow:           true,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.Uint64Var(&defaultConfig.BlinkInterval, "blink", defaultConfig.BlinkInterval, "Blink period in ticks.")
	flag.IntVar(&defaultConfig.OrangePanicEvery, "orange-panic-every", defaultConfig.OrangePanicEvery, "Panic the orange blinker every N cycles, 0 for never.")
	flag.BoolVar(&defaultConfig.Overflow, "overflow", defaultConfig.Overflow, "Spawn the stack overflow task.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Install spawns the firmware tasks on k.
func (c *Config) Install(k *kernel.Kernel, b *board.Board) (*Firmware, error) {
	fw := New(k, b)
	fw.Config = *c
	if err := fw.Start(); err != nil {
		return nil, err
	}
	return fw, nil
}
