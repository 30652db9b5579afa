package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `ajpd Configuration File
Values shown are the defaults. Any key can be overridden with an
environment variable: AJPD_ followed by the upper-cased key path joined
with underscores, e.g. AJPD_ADAPTERS_AJP_PORT=8010.`

// InitConfig writes the default configuration to the default location.
//
// Returns the path of the written file. Fails if a file already exists
// unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path, creating parent
// directories as needed. Fails if the file exists unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// RenderYAML renders cfg in the same commented layout InitConfig writes.
func RenderYAML(cfg *Config) (string, error) {
	return generateYAMLWithComments(cfg)
}

// field is one key of a generated mapping with its head comment.
type field struct {
	key     string
	comment string
	value   *yaml.Node
}

func mapping(fields ...field) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range fields {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.key, HeadComment: f.comment}
		n.Content = append(n.Content, key, f.value)
	}
	return n
}

func scalar(v any) *yaml.Node {
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	return n
}

// generateYAMLWithComments renders cfg as a commented YAML document.
//
// Durations are written in their string form so that the file round-trips
// through Load.
func generateYAMLWithComments(cfg *Config) (string, error) {
	a := cfg.Adapters.AJP

	root := mapping(
		field{key: "logging", comment: "Logging configuration", value: mapping(
			field{key: "level", comment: "DEBUG, INFO, WARN or ERROR", value: scalar(cfg.Logging.Level)},
			field{key: "format", comment: "text or json", value: scalar(cfg.Logging.Format)},
			field{key: "output", comment: "stdout, stderr or a file path", value: scalar(cfg.Logging.Output)},
		)},
		field{key: "server", comment: "Server-wide settings", value: mapping(
			field{key: "shutdown_timeout", value: scalar(cfg.Server.ShutdownTimeout.String())},
			field{key: "metrics", comment: "Prometheus endpoint serving /metrics", value: mapping(
				field{key: "enabled", value: scalar(cfg.Server.Metrics.Enabled)},
				field{key: "port", value: scalar(cfg.Server.Metrics.Port)},
			)},
		)},
		field{key: "adapters", comment: "Protocol adapters", value: mapping(
			field{key: "ajp", value: mapping(
				field{key: "enabled", value: scalar(a.Enabled)},
				field{key: "port", value: scalar(a.Port)},
				field{key: "address", comment: "Interface to bind, empty for all", value: scalar(a.Address)},
				field{key: "max_connections", comment: "0 means unlimited", value: scalar(a.MaxConnections)},
				field{key: "accept_rate", comment: "Accepted connections per second, 0 means unlimited", value: scalar(a.AcceptRate)},
				field{key: "accept_burst", value: scalar(a.AcceptBurst)},
				field{key: "packet_size", comment: "8192-65536, must match the web server", value: scalar(a.PacketSize)},
				field{key: "max_body_size", comment: "Request body limit in bytes, larger bodies get 413", value: scalar(a.MaxBodySize)},
				field{key: "secret", comment: "Required request secret, empty disables the check", value: scalar(a.Secret)},
				field{key: "timeouts", value: mapping(
					field{key: "read", value: scalar(a.Timeouts.Read.String())},
					field{key: "write", value: scalar(a.Timeouts.Write.String())},
					field{key: "idle", value: scalar(a.Timeouts.Idle.String())},
				)},
				field{key: "shutdown_timeout", value: scalar(a.ShutdownTimeout.String())},
				field{key: "metrics_log_interval", comment: "0 disables periodic metrics logging", value: scalar(a.MetricsLogInterval.String())},
				field{key: "processors", comment: "Processor pool; 0 means unlimited, idle_ttl 0 disables trimming", value: mapping(
					field{key: "max_total", value: scalar(a.Processors.MaxTotal)},
					field{key: "max_idle", value: scalar(a.Processors.MaxIdle)},
					field{key: "idle_ttl", value: scalar(a.Processors.IdleTTL.String())},
					field{key: "trim_interval", value: scalar(a.Processors.TrimInterval.String())},
				)},
				field{key: "registry_shards", value: scalar(a.RegistryShards)},
				field{key: "transport", comment: "tcp options: no_delay, reuse_port, keep_alive\nunix options: path, mode (octal string, e.g. \"0660\")", value: mapping(
					field{key: "type", value: scalar(a.Transport.Type)},
					field{key: "options", value: scalar(a.Transport.Options)},
				)},
			)},
		)},
	)

	doc := &yaml.Node{Kind: yaml.DocumentNode, HeadComment: configHeader, Content: []*yaml.Node{root}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return buf.String(), nil
}
