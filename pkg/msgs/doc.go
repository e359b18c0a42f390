// Package msgs defines the telemetry messages and their wire format.
package msgs

// Messages are produced by the supervisor (kernel events, halt reports,
// statistics and task tables) and consumed by monitors. They travel in a
// Typed envelope whose type ID selects the schema, over MQTT, websocket or
// the diagnostic serial link.
//
// Producer: taskvisor firmware
// Consumer: taskmon, dashboards
