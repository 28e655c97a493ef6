// Package config loads and validates the Homegate core configuration.
//
// Configuration comes from a single YAML file with environment variable
// overrides for secrets and deployment-specific values (database path,
// gateway credentials, broker endpoints).
//
// The package is intentionally dependency-free within the project so every
// other package can accept config structs without import cycles.
package config
