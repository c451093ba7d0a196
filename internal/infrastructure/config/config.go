package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the printer emulator.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Emulator  EmulatorConfig  `yaml:"emulator"`
	History   HistoryConfig   `yaml:"history"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EmulatorConfig contains the virtual printer settings.
type EmulatorConfig struct {
	// Host and Port form the TCP listen address printer clients connect to.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// BufferCapacity is the receive buffer limit in bytes.
	BufferCapacity int `yaml:"buffer_capacity"`

	// IdleTimeout disconnects clients idle for this many seconds. 0 disables.
	IdleTimeout int `yaml:"idle_timeout"`

	// OfflinePolicy is "reject" or "buffer": what happens to client traffic
	// while the printer is offline.
	OfflinePolicy string `yaml:"offline_policy"`

	// Seed, when non-zero, makes randomised faults reproducible.
	Seed uint64 `yaml:"seed"`
}

// HistoryConfig contains command history persistence settings.
type HistoryConfig struct {
	// Persist enables the SQLite recorder. When false the history lives
	// in memory only and vanishes on restart.
	Persist  bool           `yaml:"persist"`
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP control API settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// AuthToken, when set, requires a matching bearer token on every
	// control request. Empty disables authentication; the emulator is a
	// test tool normally bound to loopback.
	AuthToken string `yaml:"auth_token"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains the optional MQTT status bridge settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
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
// Environment variables follow the pattern: ESCPOSSIM_SECTION_KEY
// For example: ESCPOSSIM_EMULATOR_PORT, ESCPOSSIM_API_HOST
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

// Default returns the built-in configuration, used when no config file is
// given. The emulator binds loopback ports only.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Emulator: EmulatorConfig{
			Host:           "127.0.0.1",
			Port:           9100,
			BufferCapacity: 64 * 1024,
			IdleTimeout:    30,
			OfflinePolicy:  "reject",
		},
		History: HistoryConfig{
			Persist: false,
			Database: DatabaseConfig{
				Path:        "./data/escpos-sim.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "escpos-sim",
			},
			QoS:         1,
			TopicPrefix: "escpos-sim",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ESCPOSSIM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Emulator
	if v := os.Getenv("ESCPOSSIM_EMULATOR_HOST"); v != "" {
		cfg.Emulator.Host = v
	}
	if v := os.Getenv("ESCPOSSIM_EMULATOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Emulator.Port = port
		}
	}
	if v := os.Getenv("ESCPOSSIM_EMULATOR_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Emulator.Seed = seed
		}
	}

	// History
	if v := os.Getenv("ESCPOSSIM_HISTORY_DATABASE_PATH"); v != "" {
		cfg.History.Database.Path = v
	}

	// API
	if v := os.Getenv("ESCPOSSIM_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ESCPOSSIM_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("ESCPOSSIM_API_AUTH_TOKEN"); v != "" {
		cfg.API.AuthToken = v
	}

	// MQTT
	if v := os.Getenv("ESCPOSSIM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ESCPOSSIM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ESCPOSSIM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Emulator.Port < 0 || c.Emulator.Port > 65535 {
		errs = append(errs, "emulator.port must be between 0 and 65535")
	}
	if c.Emulator.BufferCapacity < 1 {
		errs = append(errs, "emulator.buffer_capacity must be positive")
	}
	if c.Emulator.IdleTimeout < 0 {
		errs = append(errs, "emulator.idle_timeout must not be negative")
	}
	switch c.Emulator.OfflinePolicy {
	case "reject", "buffer":
	default:
		errs = append(errs, `emulator.offline_policy must be "reject" or "buffer"`)
	}

	if c.History.Persist && c.History.Database.Path == "" {
		errs = append(errs, "history.database.path is required when history.persist is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt.enabled")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ListenAddr returns the printer TCP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Emulator.Host, c.Emulator.Port)
}

// APIAddr returns the HTTP API listen address.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// GetIdleTimeout returns the client idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Emulator.IdleTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetAPIIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetAPIIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
