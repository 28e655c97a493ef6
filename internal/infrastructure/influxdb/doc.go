// Package influxdb records channel telemetry history in InfluxDB v2.
//
// The gateway keeps current state in SQLite; this package only appends
// history points (decoded status fields, signal strength, battery) so
// applications can chart environment sensors over time. Telemetry is
// optional: when disabled in configuration, Connect returns ErrDisabled
// and the gateway runs without history.
//
// Writes use the non-blocking batched write API. Errors surface through
// the SetOnError callback, never at the write call site.
package influxdb
