package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
bridge:
  id: "kasa-test"
  name: "Test Bridge"
kasa:
  driver: simulated
  poll_interval: 250ms
  io_timeout: 2s
  simulated:
    latency: 5ms
    devices:
      - address: "192.168.1.10"
        alias: "Lamp"
        type: bulb
      - address: "192.168.1.11"
        alias: "Power Strip"
        type: strip
        children: ["Kettle", "Toaster"]
database:
  path: "/tmp/kasa.db"
  wal_mode: true
mqtt:
  broker:
    host: "mqtt.local"
    port: 1884
  qos: 1
api:
  port: 9000
security:
  jwt:
    secret: "` + validJWTSecret + `"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "kasa-test" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "kasa-test")
	}
	if cfg.Kasa.PollInterval != 250*time.Millisecond {
		t.Errorf("Kasa.PollInterval = %v, want 250ms", cfg.Kasa.PollInterval)
	}
	if cfg.Kasa.IOTimeout != 2*time.Second {
		t.Errorf("Kasa.IOTimeout = %v, want 2s", cfg.Kasa.IOTimeout)
	}
	if len(cfg.Kasa.Simulated.Devices) != 2 {
		t.Fatalf("len(Simulated.Devices) = %d, want 2", len(cfg.Kasa.Simulated.Devices))
	}
	if got := cfg.Kasa.Simulated.Devices[1].Children; len(got) != 2 || got[0] != "Kettle" {
		t.Errorf("Devices[1].Children = %v, want [Kettle Toaster]", got)
	}
	if cfg.MQTT.Broker.Host != "mqtt.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.local")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	// Defaults survive partial YAML.
	if cfg.Kasa.HealthInterval != 30*time.Second {
		t.Errorf("Kasa.HealthInterval = %v, want default 30s", cfg.Kasa.HealthInterval)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "bridge: [unterminated"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationError(t *testing.T) {
	content := `
bridge:
  id: ""
api:
  enabled: false
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty bridge.id, got nil")
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	t.Setenv("KASABRIDGE_JWT_SECRET", validJWTSecret)

	cfg, err := Load("../../../configs/kasabridge.yaml")
	if err != nil {
		t.Fatalf("Load() sample config error = %v", err)
	}
	if len(cfg.Kasa.Simulated.Devices) == 0 {
		t.Error("sample config should define simulated devices")
	}
	if cfg.Database.HistoryRetention != 720*time.Hour {
		t.Errorf("HistoryRetention = %v, want 720h", cfg.Database.HistoryRetention)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing bridge ID",
			mutate:  func(c *Config) { c.Bridge.ID = "" },
			wantErr: "bridge.id",
		},
		{
			name:    "unsupported driver",
			mutate:  func(c *Config) { c.Kasa.Driver = "tapo" },
			wantErr: "kasa.driver",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Kasa.PollInterval = 0 },
			wantErr: "kasa.poll_interval",
		},
		{
			name:    "negative io timeout",
			mutate:  func(c *Config) { c.Kasa.IOTimeout = -time.Second },
			wantErr: "kasa.io_timeout",
		},
		{
			name: "duplicate simulated address",
			mutate: func(c *Config) {
				c.Kasa.Simulated.Devices = []SimulatedDeviceConfig{
					{Address: "10.0.0.1"}, {Address: "10.0.0.1"},
				}
			},
			wantErr: "duplicated",
		},
		{
			name: "simulated device without address",
			mutate: func(c *Config) {
				c.Kasa.Simulated.Devices = []SimulatedDeviceConfig{{Alias: "Lamp"}}
			},
			wantErr: "address is required",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "negative history retention",
			mutate:  func(c *Config) { c.Database.HistoryRetention = -time.Hour },
			wantErr: "database.history_retention",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "security.jwt.secret",
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32",
		},
		{
			name: "API disabled needs no secret",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.Security.JWT.Secret = ""
			},
		},
		{
			name: "no intake surface",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.MQTT.Enabled = false
			},
			wantErr: "at least one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("KASABRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("KASABRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("KASABRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("KASABRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("KASABRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("KASABRIDGE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("KASABRIDGE_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.ID == "" {
		t.Error("defaultConfig should have non-empty Bridge.ID")
	}
	if cfg.Kasa.Driver != DriverSimulated {
		t.Errorf("defaultConfig Kasa.Driver = %q, want %q", cfg.Kasa.Driver, DriverSimulated)
	}
	if cfg.Kasa.PollInterval != time.Second {
		t.Errorf("defaultConfig Kasa.PollInterval = %v, want 1s", cfg.Kasa.PollInterval)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
}
