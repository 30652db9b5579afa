package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/ajpd/pkg/adapter/ajp"
)

// isolateConfigDir points the default config location at a temp dir.
func isolateConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"

adapters:
  ajp:
    enabled: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Adapters.AJP.Port != 8009 {
		t.Errorf("Expected default AJP port 8009, got %d", cfg.Adapters.AJP.Port)
	}
	if !cfg.Adapters.AJP.TCP.NoDelay {
		t.Error("Expected TCP no_delay to default to true")
	}
}

func TestLoad_FullConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  shutdown_timeout: 10s
  metrics:
    enabled: true
    port: 9191

adapters:
  ajp:
    enabled: true
    port: 8010
    address: 127.0.0.1
    max_connections: 500
    accept_rate: 200
    accept_burst: 50
    packet_size: 65536
    max_body_size: 1048576
    secret: s3cret
    timeouts:
      read: 20s
      write: 10s
      idle: 2m
    processors:
      max_total: 200
      max_idle: 50
      idle_ttl: 10m
      trim_interval: 30s
    registry_shards: 32
    transport:
      type: tcp
      options:
        no_delay: false
        reuse_port: true
        keep_alive: 45s
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	a := cfg.Adapters.AJP
	if a.Port != 8010 || a.Address != "127.0.0.1" {
		t.Errorf("Unexpected endpoint %s:%d", a.Address, a.Port)
	}
	if a.MaxConnections != 500 || a.AcceptRate != 200 || a.AcceptBurst != 50 {
		t.Errorf("Unexpected admission settings: %+v", a)
	}
	if a.PacketSize != 65536 || a.MaxBodySize != 1048576 || a.Secret != "s3cret" {
		t.Errorf("Unexpected protocol settings: packet_size=%d max_body_size=%d secret=%q", a.PacketSize, a.MaxBodySize, a.Secret)
	}
	if a.Timeouts.Read != 20*time.Second || a.Timeouts.Write != 10*time.Second || a.Timeouts.Idle != 2*time.Minute {
		t.Errorf("Unexpected timeouts: %+v", a.Timeouts)
	}
	if a.Processors.MaxTotal != 200 || a.Processors.MaxIdle != 50 ||
		a.Processors.IdleTTL != 10*time.Minute || a.Processors.TrimInterval != 30*time.Second {
		t.Errorf("Unexpected processors: %+v", a.Processors)
	}
	if a.RegistryShards != 32 {
		t.Errorf("Expected 32 registry shards, got %d", a.RegistryShards)
	}
	want := ajp.TCPOptions{NoDelay: false, ReusePort: true, KeepAlive: 45 * time.Second}
	if a.TCP != want {
		t.Errorf("Expected TCP options %+v, got %+v", want, a.TCP)
	}
	if !cfg.Server.Metrics.Enabled || cfg.Server.Metrics.Port != 9191 {
		t.Errorf("Unexpected metrics config: %+v", cfg.Server.Metrics)
	}
}

func TestLoad_UnixTransport(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
adapters:
  ajp:
    enabled: true
    transport:
      type: unix
      options:
        path: /run/ajpd/ajp.sock
        mode: "0660"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Adapters.AJP.Unix.Path != "/run/ajpd/ajp.sock" {
		t.Errorf("Expected unix path, got %q", cfg.Adapters.AJP.Unix.Path)
	}
	if cfg.Adapters.AJP.Unix.Mode != 0o660 {
		t.Errorf("Expected mode 0660, got %o", cfg.Adapters.AJP.Unix.Mode)
	}
}

func TestLoad_UnixTransportWithoutPath(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
adapters:
  ajp:
    enabled: true
    transport:
      type: unix
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for unix transport without path")
	}
}

func TestLoad_UnknownTransportOption(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
adapters:
  ajp:
    enabled: true
    transport:
      type: tcp
      options:
        no_dealy: true
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for misspelled transport option")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if !cfg.Adapters.AJP.Enabled {
		t.Error("Expected AJP adapter enabled by default")
	}
}

func TestLoad_DefaultLocation(t *testing.T) {
	dir := isolateConfigDir(t)
	if err := os.MkdirAll(filepath.Join(dir, "ajpd"), 0755); err != nil {
		t.Fatal(err)
	}
	content := "adapters:\n  ajp:\n    enabled: true\n    port: 8123\n"
	if err := os.WriteFile(filepath.Join(dir, "ajpd", "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Adapters.AJP.Port != 8123 {
		t.Errorf("Expected port 8123 from default location, got %d", cfg.Adapters.AJP.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[adapters.ajp]
enabled = true
port = 8009
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if !cfg.Adapters.AJP.Enabled {
		t.Error("Expected AJP adapter enabled by default")
	}
	if cfg.Adapters.AJP.Port != 8009 {
		t.Errorf("Expected default AJP port 8009, got %d", cfg.Adapters.AJP.Port)
	}
	if cfg.Adapters.AJP.TCP != ajp.DefaultTCPOptions() {
		t.Errorf("Expected default TCP options, got %+v", cfg.Adapters.AJP.TCP)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	dir := isolateConfigDir(t)

	path := GetDefaultConfigPath()
	if path != filepath.Join(dir, "ajpd", "config.yaml") {
		t.Errorf("Unexpected default path %q", path)
	}
	if ConfigExists() {
		t.Error("Expected no config in a fresh directory")
	}
}

func TestGetConfigDir(t *testing.T) {
	isolateConfigDir(t)

	if filepath.Base(GetConfigDir()) != "ajpd" {
		t.Errorf("Expected directory name 'ajpd', got %q", filepath.Base(GetConfigDir()))
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("AJPD_LOGGING_LEVEL", "ERROR")
	t.Setenv("AJPD_ADAPTERS_AJP_PORT", "8049")
	t.Setenv("AJPD_ADAPTERS_AJP_PROCESSORS_MAX_IDLE", "7")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

adapters:
  ajp:
    enabled: true
    port: 8009
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.AJP.Port != 8049 {
		t.Errorf("Expected port 8049 from env var, got %d", cfg.Adapters.AJP.Port)
	}
	if cfg.Adapters.AJP.Processors.MaxIdle != 7 {
		t.Errorf("Expected max_idle 7 from env var (key absent from file), got %d", cfg.Adapters.AJP.Processors.MaxIdle)
	}
}
