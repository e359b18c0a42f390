package diag

import (
	"flag"
	"fmt"
	"os"

	"go.bug.st/serial"
)

// Config defines the serial link parameters.
type Config struct {
	// Device is the serial device, e.g. /dev/ttyACM0. Empty disables the
	// link.
	Device   string
	BaudRate int
}

var defaultConfig = Config{
	BaudRate: 115200,
}

func init() {
	if val := os.Getenv("TASKVISOR_DIAG_SERIAL"); val != "" {
		defaultConfig.Device = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Device, "diag-serial", defaultConfig.Device, "Serial device of the diagnostic link")
	flag.IntVar(&defaultConfig.BaudRate, "diag-baud", defaultConfig.BaudRate, "Baud rate of the diagnostic link")
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

// Enabled reports whether a device is configured.
func (c *Config) Enabled() bool {
	return c.Device != ""
}

// Open opens the serial device, 8N1.
func (c *Config) Open() (serial.Port, error) {
	if c.Device == "" {
		return nil, ErrNoDevice
	}
	port, err := serial.Open(c.Device, &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Device, err)
	}
	return port, nil
}

// ListDevices lists the serial devices of the host.
func ListDevices() ([]string, error) {
	return serial.GetPortsList()
}
