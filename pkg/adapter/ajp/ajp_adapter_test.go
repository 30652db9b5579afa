package ajp

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
)

type runningAdapter struct {
	*AJPAdapter
	cancel context.CancelFunc
	done   chan error
}

func startAdapter(t *testing.T, cfg AJPConfig, handler ajpproto.RequestHandler) *runningAdapter {
	t.Helper()

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	if cfg.Address == "" && cfg.Transport.Type != TransportUnix {
		cfg.Address = "127.0.0.1"
	}

	a, err := New(cfg, handler, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	select {
	case <-a.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Serve failed: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("listener not ready")
	}

	r := &runningAdapter{AJPAdapter: a, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("adapter did not shut down")
		}
	})
	return r
}

func (r *runningAdapter) dial(t *testing.T) (*ajpproto.Client, net.Conn) {
	t.Helper()
	addr := r.Addr()
	nc, err := net.DialTimeout(addr.Network(), addr.String(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	return ajpproto.NewClient(nc, r.config.PacketSize), nc
}

func getRequest(uri string) *ajpproto.ForwardRequest {
	return &ajpproto.ForwardRequest{
		Method:     "GET",
		Protocol:   "HTTP/1.1",
		RequestURI: uri,
		RemoteAddr: "192.0.2.10",
		RemoteHost: "client.example",
		ServerName: "www.example",
		ServerPort: 80,
		Header:     http.Header{"Host": {"www.example"}},
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// expectClosed asserts the peer closes nc without sending more data.
func expectClosed(t *testing.T, nc net.Conn) {
	t.Helper()
	require.NoError(t, nc.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err := io.ReadAll(nc)
	require.NoError(t, err, "expected the server to close the socket")
}

func TestServeKeepAlive(t *testing.T) {
	a := startAdapter(t, AJPConfig{}, ajpproto.EchoHandler{ServerName: "test"})
	client, _ := a.dial(t)
	ctx := testContext(t)

	rtt, err := client.Ping(ctx)
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	for _, uri := range []string{"/first", "/second"} {
		resp, reuse, err := client.Do(ctx, getRequest(uri))
		require.NoError(t, err)
		assert.True(t, reuse)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Contains(t, string(resp.Body), "GET "+uri+" HTTP/1.1")
		assert.Equal(t, "test", resp.Header.Get("Servlet-Engine"))
	}

	// One processor served both requests and is back in the pool.
	require.Eventually(t, func() bool { return a.Handler().Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), a.Handler().Pool().Created())
	assert.Equal(t, int32(1), a.GetActiveConnections())
}

func TestOversizedBodyRejected(t *testing.T) {
	a := startAdapter(t, AJPConfig{MaxBodySize: 1024}, ajpproto.EchoHandler{})
	client, _ := a.dial(t)

	req := getRequest("/upload")
	req.Method = "POST"
	req.Header.Set("Content-Length", "4096")
	req.Body = make([]byte, 4096)

	resp, reuse, err := client.Do(testContext(t), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Status)
	assert.False(t, reuse)
	require.Eventually(t, func() bool { return a.GetActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeRequestBody(t *testing.T) {
	a := startAdapter(t, AJPConfig{}, ajpproto.EchoHandler{})
	client, _ := a.dial(t)

	body := make([]byte, 20000)
	for i := range body {
		body[i] = byte('a' + i%26)
	}
	req := getRequest("/upload")
	req.Method = "POST"
	req.Header.Set("Content-Length", "20000")
	req.Body = body

	resp, reuse, err := client.Do(testContext(t), req)
	require.NoError(t, err)
	assert.True(t, reuse)
	assert.Contains(t, string(resp.Body), "body: 20000 bytes")
}

func TestSecretMismatchCloses(t *testing.T) {
	a := startAdapter(t, AJPConfig{Secret: "s3cret"}, ajpproto.EchoHandler{})
	client, nc := a.dial(t)

	resp, reuse, err := client.Do(testContext(t), getRequest("/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.False(t, reuse)
	expectClosed(t, nc)

	client, _ = a.dial(t)
	req := getRequest("/")
	req.Secret = "s3cret"
	resp, reuse, err = client.Do(testContext(t), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, reuse)
}

func TestIdleTimeoutClosesSocket(t *testing.T) {
	a := startAdapter(t, AJPConfig{Timeouts: AJPTimeoutsConfig{Idle: 100 * time.Millisecond}}, nil)
	_, nc := a.dial(t)

	expectClosed(t, nc)
	require.Eventually(t, func() bool { return a.GetActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(0), a.Handler().Pool().Created(), "an idle socket never needs a processor")
}

func TestMaxConnectionsRejects(t *testing.T) {
	a := startAdapter(t, AJPConfig{MaxConnections: 1}, nil)

	first, _ := a.dial(t)
	_, err := first.Ping(testContext(t))
	require.NoError(t, err)

	_, nc := a.dial(t)
	expectClosed(t, nc)
	assert.Equal(t, int32(1), a.GetActiveConnections())
}

func TestStopClosesIdleConnections(t *testing.T) {
	a := startAdapter(t, AJPConfig{}, nil)
	client, nc := a.dial(t)

	_, reuse, err := client.Do(testContext(t), getRequest("/"))
	require.NoError(t, err)
	require.True(t, reuse)

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))

	expectClosed(t, nc)
	assert.Equal(t, int32(0), a.GetActiveConnections())
	assert.NoError(t, <-a.done)
	a.done <- nil
}

func TestShutdownClosesInFlightRequest(t *testing.T) {
	a := startAdapter(t, AJPConfig{}, nil)
	_, nc := a.dial(t)

	// Headers announce a body that never arrives, so the request stays in
	// progress with its processor bound.
	req := getRequest("/slow")
	req.Method = "POST"
	req.Header.Set("Content-Length", "100")
	_, err := nc.Write(ajpproto.AppendForwardRequest(nil, req, ajpproto.DefaultPacketSize))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.Handler().Registry().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	a.cancel()
	select {
	case err := <-a.done:
		require.NoError(t, err)
		a.done <- nil
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Less(t, time.Since(start), 2*time.Second)

	expectClosed(t, nc)
	assert.Equal(t, 0, a.Handler().Registry().Len())
	assert.Equal(t, 1, a.Handler().Pool().Len(), "the processor is recycled into the pool")
}

func TestUpgradeHandsOffSocket(t *testing.T) {
	type handoff struct {
		nc       net.Conn
		buffered []byte
	}
	upgraded := make(chan handoff, 1)

	cfg := AJPConfig{
		OnUpgrade: func(nc net.Conn, buffered []byte) {
			upgraded <- handoff{nc: nc, buffered: buffered}
		},
	}
	handler := ajpproto.HandlerFunc(func(context.Context, *ajpproto.ForwardRequest) (*ajpproto.Response, error) {
		return &ajpproto.Response{
			Status:  http.StatusSwitchingProtocols,
			Header:  http.Header{"Upgrade": {"websocket"}, "Connection": {"Upgrade"}},
			Upgrade: true,
		}, nil
	})
	a := startAdapter(t, cfg, handler)
	client, nc := a.dial(t)

	resp, _, err := client.Do(testContext(t), getRequest("/ws"))
	require.NoError(t, err)
	assert.True(t, resp.Upgrade)

	var h handoff
	select {
	case h = <-upgraded:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade hook not called")
	}
	defer h.nc.Close()
	assert.Empty(t, h.buffered)

	// The adapter no longer tracks the socket, but it stays open.
	require.Eventually(t, func() bool { return a.GetActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = nc.Write([]byte("frame"))
	require.NoError(t, err)

	got := make([]byte, 5)
	require.NoError(t, h.nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(h.nc, got)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(got))
	assert.Equal(t, uint64(1), a.Handler().Pool().Created())
	assert.Equal(t, 0, a.Handler().Pool().Live(), "an upgraded processor leaves the pool")
}

func TestUpgradeWithoutHookCloses(t *testing.T) {
	handler := ajpproto.HandlerFunc(func(context.Context, *ajpproto.ForwardRequest) (*ajpproto.Response, error) {
		return &ajpproto.Response{Status: http.StatusSwitchingProtocols, Upgrade: true}, nil
	})
	a := startAdapter(t, AJPConfig{}, handler)
	client, nc := a.dial(t)

	resp, _, err := client.Do(testContext(t), getRequest("/ws"))
	require.NoError(t, err)
	assert.True(t, resp.Upgrade)
	expectClosed(t, nc)
	require.Eventually(t, func() bool { return a.GetActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnixTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ajp.sock")
	cfg := AJPConfig{
		Transport: TransportConfig{Type: TransportUnix},
		Unix:      UnixOptions{Path: path, Mode: 0o600},
	}
	a := startAdapter(t, cfg, nil)
	assert.Equal(t, "unix", a.Addr().Network())

	client, _ := a.dial(t)
	_, err := client.Ping(testContext(t))
	require.NoError(t, err)

	resp, _, err := client.Do(testContext(t), getRequest("/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestPortReportsBoundPort(t *testing.T) {
	a := startAdapter(t, AJPConfig{}, nil)
	assert.NotZero(t, a.Port())
	assert.Equal(t, "AJP", a.Protocol())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AJPConfig
		wantErr string
	}{
		{name: "defaults", cfg: AJPConfig{}},
		{name: "bad port", cfg: AJPConfig{Port: 70000}, wantErr: "invalid port"},
		{name: "small packet", cfg: AJPConfig{PacketSize: 1024}, wantErr: "packet_size"},
		{name: "large packet", cfg: AJPConfig{PacketSize: 70000}, wantErr: "packet_size"},
		{name: "negative body limit", cfg: AJPConfig{MaxBodySize: -1}, wantErr: "max_body_size"},
		{
			name:    "idle above total",
			cfg:     AJPConfig{Processors: ProcessorsConfig{MaxTotal: 2, MaxIdle: 4}},
			wantErr: "max_idle",
		},
		{
			name:    "unix without path",
			cfg:     AJPConfig{Transport: TransportConfig{Type: TransportUnix}},
			wantErr: "socket path",
		},
		{
			name:    "unknown transport",
			cfg:     AJPConfig{Transport: TransportConfig{Type: "udp"}},
			wantErr: "unknown transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyDefaults()
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg AJPConfig
	cfg.applyDefaults()

	assert.Equal(t, 0, cfg.Port, "port 0 is kept for ephemeral binds")
	assert.Equal(t, ajpproto.DefaultPacketSize, cfg.PacketSize)
	assert.Equal(t, int64(ajpproto.DefaultMaxBodySize), cfg.MaxBodySize)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Read)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Write)
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.Idle)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.Minute, cfg.Processors.TrimInterval)
	assert.Equal(t, TransportTCP, cfg.Transport.Type)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(AJPConfig{PacketSize: 10}, nil, nil)
	require.Error(t, err)
}
