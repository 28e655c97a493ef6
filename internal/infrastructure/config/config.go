package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Homegate core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	LocalBus  BusConfig       `yaml:"local_bus"`
	CloudBus  BusConfig       `yaml:"cloud_bus"`
	Alarm     AlarmConfig     `yaml:"alarm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GatewayConfig identifies this gateway towards the cloud backend and
// local applications. Serial and token are written at provisioning time
// and must match the homegate row in the database.
type GatewayConfig struct {
	ID     string `yaml:"id"`
	Site   string `yaml:"site"`
	Name   string `yaml:"name"`
	Model  string `yaml:"model"`
	Serial string `yaml:"serial"`
	Token  string `yaml:"token"`
	AppID  string `yaml:"app_id"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// BusConfig contains MQTT connection settings for one message bus.
// The local bus and the cloud bus use the same structure; the cloud bus
// additionally carries TLS client-certificate material.
type BusConfig struct {
	Host      string             `yaml:"host"`
	Port      int                `yaml:"port"`
	RootTopic string             `yaml:"root_topic"`
	Username  string             `yaml:"username"`
	QoS       int                `yaml:"qos"`
	TLS       BusTLSConfig       `yaml:"tls"`
	Reconnect BusReconnectConfig `yaml:"reconnect"`
}

// BusTLSConfig contains TLS client-certificate settings for a bus connection.
type BusTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// BusReconnectConfig contains reconnection backoff settings (seconds).
type BusReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// AlarmConfig contains alarm-engine timing settings.
type AlarmConfig struct {
	// DoorReminderThreshold is how long a door may stay open before a
	// reminder notification is emitted (seconds).
	DoorReminderThreshold int `yaml:"door_reminder_threshold"`

	// SirenDuration is the default siren sounding time (seconds).
	SirenDuration int `yaml:"siren_duration"`

	// SirenLevel is the default siren volume level (1-4).
	SirenLevel int `yaml:"siren_level"`
}

// SchedulerConfig contains the periodic rule-checker tick intervals (seconds).
type SchedulerConfig struct {
	RuleInterval int `yaml:"rule_interval"`
	DoorInterval int `yaml:"door_interval"`
}

// TelemetryConfig contains InfluxDB settings for channel telemetry history.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DHOME_SECTION_KEY.
// For example: DHOME_DATABASE_PATH, DHOME_GATEWAY_TOKEN.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Site:  "dicomiot",
			Name:  "Dhome mini",
			Model: "DHG-A1",
		},
		Database: DatabaseConfig{
			Path:        "data/homegate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		LocalBus: BusConfig{
			Host:      "127.0.0.1",
			Port:      1883,
			RootTopic: "dhome/local",
			Username:  "dicomiots",
			QoS:       1,
			Reconnect: BusReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		CloudBus: BusConfig{
			Host:      "mqtt.dicomiot.com",
			Port:      8883,
			RootTopic: "dhome/cloud",
			QoS:       1,
			TLS:       BusTLSConfig{Enabled: true},
			Reconnect: BusReconnectConfig{InitialDelay: 1, MaxDelay: 120},
		},
		Alarm: AlarmConfig{
			DoorReminderThreshold: 160,
			SirenDuration:         180,
			SirenLevel:            1,
		},
		Scheduler: SchedulerConfig{
			RuleInterval: 10,
			DoorInterval: 10,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides replaces config values with DHOME_* environment
// variables where set. Only secrets and deployment-specific values are
// overridable; structural settings come from the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DHOME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DHOME_GATEWAY_ID"); v != "" {
		cfg.Gateway.ID = v
	}
	if v := os.Getenv("DHOME_GATEWAY_SERIAL"); v != "" {
		cfg.Gateway.Serial = v
	}
	if v := os.Getenv("DHOME_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("DHOME_LOCAL_BUS_HOST"); v != "" {
		cfg.LocalBus.Host = v
	}
	if v := os.Getenv("DHOME_LOCAL_BUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.LocalBus.Port = port
		}
	}
	if v := os.Getenv("DHOME_CLOUD_BUS_HOST"); v != "" {
		cfg.CloudBus.Host = v
	}
	if v := os.Getenv("DHOME_CLOUD_BUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.CloudBus.Port = port
		}
	}
	if v := os.Getenv("DHOME_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
	if v := os.Getenv("DHOME_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	var problems []string

	if c.Gateway.Serial == "" {
		problems = append(problems, "gateway.serial is required")
	}
	if c.Gateway.Token == "" {
		problems = append(problems, "gateway.token is required")
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		problems = append(problems, "database.busy_timeout must not be negative")
	}

	for _, bus := range []struct {
		name string
		cfg  BusConfig
	}{{"local_bus", c.LocalBus}, {"cloud_bus", c.CloudBus}} {
		if bus.cfg.Host == "" {
			problems = append(problems, bus.name+".host is required")
		}
		if bus.cfg.Port <= 0 || bus.cfg.Port > 65535 {
			problems = append(problems, bus.name+".port must be 1-65535")
		}
		if bus.cfg.RootTopic == "" {
			problems = append(problems, bus.name+".root_topic is required")
		}
		if bus.cfg.QoS < 0 || bus.cfg.QoS > 2 {
			problems = append(problems, bus.name+".qos must be 0, 1 or 2")
		}
		if bus.cfg.TLS.Enabled && (bus.cfg.TLS.CertFile == "" || bus.cfg.TLS.KeyFile == "") {
			problems = append(problems, bus.name+".tls requires cert_file and key_file")
		}
	}

	if c.Alarm.DoorReminderThreshold <= 0 {
		problems = append(problems, "alarm.door_reminder_threshold must be positive")
	}
	if c.Alarm.SirenLevel < 1 || c.Alarm.SirenLevel > 4 {
		problems = append(problems, "alarm.siren_level must be 1-4")
	}
	if c.Scheduler.RuleInterval <= 0 || c.Scheduler.DoorInterval <= 0 {
		problems = append(problems, "scheduler intervals must be positive")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			problems = append(problems, "telemetry.url is required when enabled")
		}
		if c.Telemetry.Org == "" || c.Telemetry.Bucket == "" {
			problems = append(problems, "telemetry.org and telemetry.bucket are required when enabled")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, "logging.level must be debug, info, warn or error")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
