package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
	"github.com/marmos91/ajpd/pkg/adapter/ajp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		cfgFile = ""
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ajpd ")
	assert.Contains(t, out, "commit:")
}

func TestConfigInitValidateShow(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "ajpd", "config.yaml")

	out, err := execute(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = execute(t, "config", "init", "--path", path)
	require.Error(t, err, "existing file must not be overwritten")

	out, err = execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid (ajp tcp :8009)")

	out, err = execute(t, "config", "show", "--config", path, "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "packet_size: 8192")

	out, err = execute(t, "config", "show", "--config", path, "--output", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"PacketSize": 8192`)
}

func TestPing(t *testing.T) {
	a, err := ajp.New(ajp.AJPConfig{
		Address:         "127.0.0.1",
		ShutdownTimeout: 2 * time.Second,
	}, ajpproto.EchoHandler{ServerName: "test"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-a.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("listener not ready")
	}

	out, err := execute(t, "ping", a.Addr().String(), "--count", "2", "--request", "/status")
	require.NoError(t, err)
	assert.Contains(t, out, "seq=1")
	assert.Contains(t, out, "seq=2")
	assert.Contains(t, out, "GET /status: 200")
}
