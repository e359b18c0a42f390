package telemetry

import (
	"flag"
	"os"
	"time"
)

// Config defines the telemetry parameters.
type Config struct {
	// MQTTBrokerURL specifies the MQTT broker to use, empty disables MQTT.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// WebsocketAddr is the listen address of the websocket feed, empty
	// disables it.
	WebsocketAddr string
	// SnapshotInterval is the period of stats and task table snapshots.
	SnapshotInterval time.Duration
}

var defaultConfig = Config{
	SnapshotInterval: 5 * time.Second,
}

func init() {
	if val := os.Getenv("TASKVISOR_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, e.g. mqtt://localhost:1883/taskvisor/")
	flag.StringVar(&defaultConfig.WebsocketAddr, "ws", defaultConfig.WebsocketAddr, "Listen address of the websocket event feed, e.g. :8080")
	flag.DurationVar(&defaultConfig.SnapshotInterval, "snapshot-interval", defaultConfig.SnapshotInterval, "Period of stats and task table snapshots")
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
