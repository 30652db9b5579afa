package config

import (
	"strings"
	"testing"
	"time"

	"github.com/marmos91/ajpd/pkg/adapter/ajp"
)

func TestCreateTransportOptions_TCP(t *testing.T) {
	cfg := &ajp.AJPConfig{
		Transport: ajp.TransportConfig{
			Type: ajp.TransportTCP,
			Options: map[string]any{
				"reuse_port": "true",
				"keep_alive": "1m",
			},
		},
	}

	if err := CreateTransportOptions(cfg); err != nil {
		t.Fatalf("CreateTransportOptions failed: %v", err)
	}

	want := ajp.TCPOptions{NoDelay: true, ReusePort: true, KeepAlive: time.Minute}
	if cfg.TCP != want {
		t.Errorf("Expected %+v, got %+v", want, cfg.TCP)
	}
}

func TestCreateTransportOptions_NilOptionsUseDefaults(t *testing.T) {
	cfg := &ajp.AJPConfig{Transport: ajp.TransportConfig{Type: ajp.TransportTCP}}

	if err := CreateTransportOptions(cfg); err != nil {
		t.Fatalf("CreateTransportOptions failed: %v", err)
	}
	if cfg.TCP != ajp.DefaultTCPOptions() {
		t.Errorf("Expected default TCP options, got %+v", cfg.TCP)
	}
}

func TestCreateTransportOptions_Unix(t *testing.T) {
	cfg := &ajp.AJPConfig{
		Transport: ajp.TransportConfig{
			Type:    ajp.TransportUnix,
			Options: map[string]any{"path": "/tmp/ajp.sock", "mode": 432},
		},
	}

	if err := CreateTransportOptions(cfg); err != nil {
		t.Fatalf("CreateTransportOptions failed: %v", err)
	}
	if cfg.Unix.Path != "/tmp/ajp.sock" || cfg.Unix.Mode != 0o660 {
		t.Errorf("Unexpected unix options %+v", cfg.Unix)
	}
}

func TestCreateTransportOptions_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ajp.TransportConfig
		wantErr string
	}{
		{
			name:    "unknown type",
			cfg:     ajp.TransportConfig{Type: "sctp"},
			wantErr: "unknown transport",
		},
		{
			name:    "unknown key",
			cfg:     ajp.TransportConfig{Type: ajp.TransportTCP, Options: map[string]any{"backlog": 10}},
			wantErr: "backlog",
		},
		{
			name:    "bad duration",
			cfg:     ajp.TransportConfig{Type: ajp.TransportTCP, Options: map[string]any{"keep_alive": "soon"}},
			wantErr: "keep_alive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &ajp.AJPConfig{Transport: tt.cfg}
			err := CreateTransportOptions(cfg)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
