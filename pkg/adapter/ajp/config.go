package ajp

import (
	"fmt"
	"net"
	"time"

	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
)

// Transport types understood by the adapter.
const (
	TransportTCP  = "tcp"
	TransportUnix = "unix"
)

// DefaultPort is the registered AJP/1.3 port.
const DefaultPort = 8009

// AJPConfig holds configuration parameters for the AJP endpoint.
//
// These values control connection admission, timeouts, processor pooling and
// the listening transport.
//
// Zero values are replaced by defaults in applyDefaults, except Port: port 0
// binds an ephemeral port.
type AJPConfig struct {
	// Enabled controls whether the AJP adapter is active.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on. Ignored for the unix transport.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Address is the interface to bind. Empty binds all interfaces.
	Address string `mapstructure:"address"`

	// MaxConnections limits the number of concurrent sockets.
	// 0 means unlimited. Sockets beyond the limit are closed on accept.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// AcceptRate limits accepted sockets per second. 0 means unlimited.
	AcceptRate float64 `mapstructure:"accept_rate" validate:"min=0"`

	// AcceptBurst is the accept limiter burst. 0 derives it from AcceptRate.
	AcceptBurst int `mapstructure:"accept_burst" validate:"min=0"`

	// PacketSize is the maximum AJP packet size.
	// Valid range: 8192-65536. Default: 8192
	PacketSize int `mapstructure:"packet_size" validate:"min=8192,max=65536"`

	// MaxBodySize limits request bodies in bytes. Larger requests are
	// answered with 413 and the connection is closed. Default: 16 MiB
	MaxBodySize int64 `mapstructure:"max_body_size" validate:"min=0"`

	// Secret is the required request secret. Empty disables the check.
	Secret string `mapstructure:"secret"`

	// Timeouts groups the socket timeouts.
	Timeouts AJPTimeoutsConfig `mapstructure:"timeouts"`

	// ShutdownTimeout bounds the wait for connection goroutines during
	// shutdown. Remaining sockets are force-closed afterwards.
	// Default: 30s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// MetricsLogInterval is the interval for logging connection and pool
	// counters. 0 disables periodic logging. Default: 5m
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`

	// Processors configures the processor pool.
	Processors ProcessorsConfig `mapstructure:"processors"`

	// RegistryShards is the number of connection registry shards.
	// Default: 16
	RegistryShards int `mapstructure:"registry_shards" validate:"min=0,max=4096"`

	// Transport selects the listening transport.
	Transport TransportConfig `mapstructure:"transport"`

	// TCP and Unix are the typed transport options, resolved from
	// Transport.Options by the configuration layer.
	TCP  TCPOptions  `mapstructure:"-"`
	Unix UnixOptions `mapstructure:"-"`

	// OnUpgrade takes over sockets whose request asked for a protocol
	// upgrade. nil rejects upgrades.
	OnUpgrade UpgradeHandler `mapstructure:"-" json:"-" yaml:"-"`
}

// AJPTimeoutsConfig groups the socket timeouts.
type AJPTimeoutsConfig struct {
	// Read bounds each read while a request is in progress.
	// Default: 60s
	Read time.Duration `mapstructure:"read" validate:"min=0"`

	// Write bounds each write. Default: 30s
	Write time.Duration `mapstructure:"write" validate:"min=0"`

	// Idle bounds the wait for the next request on a kept-alive socket.
	// Default: 5m
	Idle time.Duration `mapstructure:"idle" validate:"min=0"`
}

// ProcessorsConfig configures the processor pool.
type ProcessorsConfig struct {
	// MaxTotal caps live processors. 0 means unlimited.
	MaxTotal int `mapstructure:"max_total" validate:"min=0"`

	// MaxIdle caps pooled processors. 0 keeps every released processor.
	MaxIdle int `mapstructure:"max_idle" validate:"min=0"`

	// IdleTTL discards pooled processors unused for this long. 0 disables
	// trimming.
	IdleTTL time.Duration `mapstructure:"idle_ttl" validate:"min=0"`

	// TrimInterval is how often the pool is trimmed. Default: 1m
	TrimInterval time.Duration `mapstructure:"trim_interval" validate:"min=0"`
}

// TransportConfig selects the listening transport. Options are decoded
// into TCPOptions or UnixOptions depending on Type.
type TransportConfig struct {
	// Type is "tcp" or "unix". Default: tcp
	Type string `mapstructure:"type" validate:"omitempty,oneof=tcp unix"`

	// Options holds the transport-specific settings.
	Options map[string]any `mapstructure:"options"`
}

// TCPOptions are the tcp transport settings.
type TCPOptions struct {
	// NoDelay disables Nagle's algorithm on accepted sockets.
	NoDelay bool `mapstructure:"no_delay"`

	// ReusePort sets SO_REUSEPORT on the listener.
	ReusePort bool `mapstructure:"reuse_port"`

	// KeepAlive is the TCP keep-alive period for accepted sockets.
	// Negative disables keep-alives.
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

// UnixOptions are the unix transport settings.
type UnixOptions struct {
	// Path is the socket file path.
	Path string `mapstructure:"path"`

	// Mode is the permission applied to the socket file. 0 keeps the
	// process umask.
	Mode uint32 `mapstructure:"mode" validate:"lte=511"`
}

// DefaultTCPOptions returns the tcp settings used when none are configured.
func DefaultTCPOptions() TCPOptions {
	return TCPOptions{NoDelay: true, KeepAlive: 30 * time.Second}
}

// UpgradeHandler owns a socket after an upgrade. buffered holds bytes read
// past the upgrading request. The handler must not block the caller.
type UpgradeHandler func(nc net.Conn, buffered []byte)

// applyDefaults fills in zero values with sensible defaults.
func (c *AJPConfig) applyDefaults() {
	if c.PacketSize == 0 {
		c.PacketSize = ajpproto.DefaultPacketSize
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = ajpproto.DefaultMaxBodySize
	}
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 60 * time.Second
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 30 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
	if c.Processors.TrimInterval == 0 {
		c.Processors.TrimInterval = time.Minute
	}
	if c.Transport.Type == "" {
		c.Transport.Type = TransportTCP
	}
}

// validate checks that configuration values are valid.
func (c *AJPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max_connections %d: must be >= 0", c.MaxConnections)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("invalid accept_rate %v: must be >= 0", c.AcceptRate)
	}
	if c.PacketSize < ajpproto.DefaultPacketSize || c.PacketSize > ajpproto.MaxPacketSize {
		return fmt.Errorf("invalid packet_size %d: must be %d-%d", c.PacketSize, ajpproto.DefaultPacketSize, ajpproto.MaxPacketSize)
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("invalid max_body_size %d: must be >= 0", c.MaxBodySize)
	}
	if c.Timeouts.Read < 0 || c.Timeouts.Write < 0 || c.Timeouts.Idle < 0 {
		return fmt.Errorf("invalid timeouts: must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown_timeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.Processors.MaxTotal < 0 || c.Processors.MaxIdle < 0 {
		return fmt.Errorf("invalid processor limits: must be >= 0")
	}
	if c.Processors.MaxTotal > 0 && c.Processors.MaxIdle > c.Processors.MaxTotal {
		return fmt.Errorf("processors.max_idle (%d) exceeds processors.max_total (%d)",
			c.Processors.MaxIdle, c.Processors.MaxTotal)
	}

	switch c.Transport.Type {
	case TransportTCP:
	case TransportUnix:
		if c.Unix.Path == "" {
			return fmt.Errorf("unix transport requires a socket path")
		}
	default:
		return fmt.Errorf("unknown transport type %q", c.Transport.Type)
	}
	return nil
}
