package config

import (
	"strings"
	"time"

	"github.com/marmos91/ajpd/pkg/adapter/ajp"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Transport options are merged over the transport's own defaults by
//     CreateTransportOptions
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the AJP adapter when it looks unconfigured, so that a config
	// loaded without a file passes validation. An explicit enabled: false
	// together with a port keeps it disabled.
	if !cfg.AJP.Enabled && cfg.AJP.Port == 0 {
		cfg.AJP.Enabled = true
	}

	applyAJPDefaults(&cfg.AJP)
}

// applyAJPDefaults sets AJP adapter defaults.
func applyAJPDefaults(cfg *ajp.AJPConfig) {
	if cfg.Port == 0 {
		cfg.Port = ajp.DefaultPort
	}

	// MaxConnections and AcceptRate default to 0 (unlimited)

	if cfg.PacketSize == 0 {
		cfg.PacketSize = 8192
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 16 << 20
	}
	if cfg.Timeouts.Read == 0 {
		cfg.Timeouts.Read = 60 * time.Second
	}
	if cfg.Timeouts.Write == 0 {
		cfg.Timeouts.Write = 30 * time.Second
	}
	if cfg.Timeouts.Idle == 0 {
		cfg.Timeouts.Idle = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
	if cfg.Processors.TrimInterval == 0 {
		cfg.Processors.TrimInterval = time.Minute
	}
	if cfg.RegistryShards == 0 {
		cfg.RegistryShards = 16
	}
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = ajp.TransportTCP
	}
	if cfg.Transport.Options == nil {
		cfg.Transport.Options = make(map[string]any)
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	tcp := ajp.DefaultTCPOptions()
	cfg := &Config{
		Adapters: AdaptersConfig{
			AJP: ajp.AJPConfig{
				Enabled: true,
				Transport: ajp.TransportConfig{
					Type: ajp.TransportTCP,
					Options: map[string]any{
						"no_delay":   tcp.NoDelay,
						"reuse_port": tcp.ReusePort,
						"keep_alive": tcp.KeepAlive.String(),
					},
				},
			},
		},
	}

	ApplyDefaults(cfg)
	_ = CreateTransportOptions(&cfg.Adapters.AJP)
	return cfg
}
