// Package logging provides structured logging for the Homegate core.
//
// It is a thin wrapper around log/slog that applies the configured level,
// format and output, and stamps every record with the service name and
// version. Components derive scoped loggers via With:
//
//	log := logging.New(cfg.Logging, version)
//	storeLog := log.With("component", "device_store")
package logging
