package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
emulator:
  host: "0.0.0.0"
  port: 9100
  buffer_capacity: 4096
  offline_policy: "buffer"
history:
  persist: true
  database:
    path: "/tmp/test.db"
    wal_mode: true
    busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Emulator.Port != 9100 {
		t.Errorf("Emulator.Port = %d, want 9100", cfg.Emulator.Port)
	}

	if cfg.Emulator.BufferCapacity != 4096 {
		t.Errorf("Emulator.BufferCapacity = %d, want 4096", cfg.Emulator.BufferCapacity)
	}

	if cfg.History.Database.Path != "/tmp/test.db" {
		t.Errorf("History.Database.Path = %q, want %q", cfg.History.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
emulator:
  port: 9100
  offline_policy: "discard"
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for bad offline policy, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "negative emulator port",
			mutate:  func(c *Config) { c.Emulator.Port = -1 },
			wantErr: true,
		},
		{
			name:    "zero buffer capacity",
			mutate:  func(c *Config) { c.Emulator.BufferCapacity = 0 },
			wantErr: true,
		},
		{
			name:    "unknown offline policy",
			mutate:  func(c *Config) { c.Emulator.OfflinePolicy = "discard" },
			wantErr: true,
		},
		{
			name: "persist without path",
			mutate: func(c *Config) {
				c.History.Persist = true
				c.History.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "api port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "api port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "mqtt enabled without host",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker.Host = ""
			},
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Addrs(t *testing.T) {
	cfg := defaultConfig()
	cfg.Emulator.Host = "10.0.0.5"
	cfg.Emulator.Port = 9100
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 8088

	if got := cfg.ListenAddr(); got != "10.0.0.5:9100" {
		t.Errorf("ListenAddr() = %q", got)
	}
	if got := cfg.APIAddr(); got != "127.0.0.1:8088" {
		t.Errorf("APIAddr() = %q", got)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Emulator: EmulatorConfig{IdleTimeout: 15},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 15 {
		t.Errorf("GetIdleTimeout() = %v, want 15", got)
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetAPIIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetAPIIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ESCPOSSIM_EMULATOR_HOST", "0.0.0.0")
	t.Setenv("ESCPOSSIM_EMULATOR_PORT", "9101")
	t.Setenv("ESCPOSSIM_EMULATOR_SEED", "42")
	t.Setenv("ESCPOSSIM_HISTORY_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ESCPOSSIM_API_HOST", "192.168.1.1")
	t.Setenv("ESCPOSSIM_API_AUTH_TOKEN", "secret-token")
	t.Setenv("ESCPOSSIM_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ESCPOSSIM_MQTT_USERNAME", "testuser")
	t.Setenv("ESCPOSSIM_MQTT_PASSWORD", "testpass")

	applyEnvOverrides(cfg)

	if cfg.Emulator.Host != "0.0.0.0" {
		t.Errorf("Emulator.Host = %q", cfg.Emulator.Host)
	}

	if cfg.Emulator.Port != 9101 {
		t.Errorf("Emulator.Port = %d, want 9101", cfg.Emulator.Port)
	}

	if cfg.Emulator.Seed != 42 {
		t.Errorf("Emulator.Seed = %d, want 42", cfg.Emulator.Seed)
	}

	if cfg.History.Database.Path != "/custom/path.db" {
		t.Errorf("History.Database.Path = %q", cfg.History.Database.Path)
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q", cfg.API.Host)
	}

	if cfg.API.AuthToken != "secret-token" {
		t.Errorf("API.AuthToken = %q", cfg.API.AuthToken)
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q", cfg.MQTT.Auth.Username)
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q", cfg.MQTT.Auth.Password)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Emulator.Port != 9100 {
		t.Errorf("defaultConfig Emulator.Port = %d, want 9100", cfg.Emulator.Port)
	}

	if cfg.Emulator.OfflinePolicy != "reject" {
		t.Errorf("defaultConfig Emulator.OfflinePolicy = %q, want reject", cfg.Emulator.OfflinePolicy)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig fails validation: %v", err)
	}
}
