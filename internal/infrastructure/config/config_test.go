package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
effects:
  hal:
    type: hidl
    major: 7
    minor: 1
  dump_lock_timeout: 250ms
  library:
    - name: Dynamics Processing
      uuid: e0e6539b-1781-7261-676f-6d7573696340
      type: 7261676f-6d75-7369-6364-28e2fd3ac39e
      implementor: The Android Open Source Project
      classification: post_proc
routing:
  patches:
    - id: 1
      sinks:
        - type: out_speaker
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Effects.HAL.Type != "hidl" || cfg.Effects.HAL.Major != 7 {
		t.Errorf("Effects.HAL = %+v, want hidl 7.1", cfg.Effects.HAL)
	}
	if cfg.Effects.DumpLockTimeout != 250*time.Millisecond {
		t.Errorf("Effects.DumpLockTimeout = %v, want 250ms", cfg.Effects.DumpLockTimeout)
	}
	if cfg.Effects.MinDeviceHAL.Major != 6 {
		t.Errorf("Effects.MinDeviceHAL default lost: %+v", cfg.Effects.MinDeviceHAL)
	}
	if len(cfg.Effects.Library) != 1 || cfg.Effects.Library[0].Classification != "post_proc" {
		t.Errorf("Effects.Library = %+v", cfg.Effects.Library)
	}
	if len(cfg.Routing.Patches) != 1 || cfg.Routing.Patches[0].Sinks[0].Type != "out_speaker" {
		t.Errorf("Routing.Patches = %+v", cfg.Routing.Patches)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8090
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing site ID", func(c *Config) { c.Site.ID = "" }, "site.id"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"missing JWT secret", func(c *Config) { c.Security.JWT.Secret = "" }, "security.jwt.secret is required"},
		{"JWT secret too short", func(c *Config) { c.Security.JWT.Secret = "short" }, "at least 32"},
		{"unknown HAL type", func(c *Config) { c.Effects.HAL.Type = "corba" }, "effects.hal.type"},
		{"negative minimum", func(c *Config) { c.Effects.MinDeviceHAL.Major = -1 }, "effects.min_device_hal"},
		{"zero dump timeout", func(c *Config) { c.Effects.DumpLockTimeout = 0 }, "dump_lock_timeout"},
		{"zero event buffer", func(c *Config) { c.Effects.EventBuffer = 0 }, "event_buffer"},
		{
			"library entry without uuid",
			func(c *Config) { c.Effects.Library = []EffectLibraryEntry{{Name: "EQ"}} },
			"requires name and uuid",
		},
		{
			"duplicate library uuid",
			func(c *Config) {
				c.Effects.Library = []EffectLibraryEntry{
					{Name: "A", UUID: "ce772f20-847d-11df-bb17-0002a5d5c51b"},
					{Name: "B", UUID: "CE772F20-847D-11DF-BB17-0002A5D5C51B"},
				}
			},
			"duplicates uuid",
		},
		{
			"patch without devices",
			func(c *Config) { c.Routing.Patches = []PatchConfig{{ID: 1}} },
			"at least one device",
		},
		{
			"patch with zero id",
			func(c *Config) {
				c.Routing.Patches = []PatchConfig{{Sinks: []DeviceConfig{{Type: "out_speaker"}}}}
			},
			"id must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"site.id", "api.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
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
		Security: SecurityConfig{JWT: JWTConfig{AccessTokenTTL: 15}},
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
	if got := cfg.GetAccessTokenTTL(); got != 15*time.Minute {
		t.Errorf("GetAccessTokenTTL() = %v, want 15m", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_FX_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_FX_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_FX_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_FX_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_FX_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_FX_API_PORT", "9191")
	t.Setenv("GRAYLOGIC_FX_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_FX_LOG_LEVEL", "debug")
	t.Setenv("GRAYLOGIC_FX_JWT_SECRET", "jwt-secret")

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
	if cfg.API.Port != 9191 {
		t.Errorf("API.Port = %d, want 9191", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("GRAYLOGIC_FX_API_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8090 {
		t.Errorf("API.Port = %d, want default 8090", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
	if cfg.Effects.MinDeviceHAL != (HALVersionConfig{Type: "hidl", Major: 6, Minor: 0}) {
		t.Errorf("defaultConfig Effects.MinDeviceHAL = %+v, want hidl 6.0", cfg.Effects.MinDeviceHAL)
	}
}
