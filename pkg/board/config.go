package board

import (
	"flag"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// Config defines the simulated board parameters.
type Config struct {
	// ID identifies the board in telemetry topics.
	ID string
	// TIM2Period is the period of the TIM2 update interrupt.
	TIM2Period time.Duration
}

const appID = "taskvisor"

var defaultConfig = Config{
	TIM2Period: 500 * time.Millisecond,
}

func init() {
	if val := os.Getenv("TASKVISOR_BOARD_ID"); val != "" {
		defaultConfig.ID = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ID, "board-id", defaultConfig.ID, "Board ID, default derived from the machine ID")
	flag.DurationVar(&defaultConfig.TIM2Period, "tim2-period", defaultConfig.TIM2Period, "TIM2 update interrupt period")
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

// BoardID returns the configured ID or one derived from the machine ID.
func (c *Config) BoardID() string {
	if c.ID != "" {
		return c.ID
	}
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("machine ID unavailable: %v", err)
		return "board"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
