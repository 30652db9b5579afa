// Package framework runs an ajpd server in-process for end-to-end tests.
package framework

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/ajpd/internal/logger"
	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
	"github.com/marmos91/ajpd/pkg/adapter/ajp"
	"github.com/marmos91/ajpd/pkg/config"
	"github.com/marmos91/ajpd/pkg/metrics"
	"github.com/marmos91/ajpd/pkg/server"
)

// TestServerConfig holds configuration for the test server.
type TestServerConfig struct {
	Port           int
	Secret         string
	MaxConnections int
	MaxProcessors  int
	IdleTimeout    time.Duration
	LogLevel       string
	StartupTimeout time.Duration

	// Handler serves forwarded requests. Defaults to the echo handler.
	Handler ajpproto.RequestHandler
}

// TestServer wraps a server with a single AJP adapter.
type TestServer struct {
	t       testing.TB
	config  TestServerConfig
	server  *server.Server
	adapter *ajp.AJPAdapter
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewTestServer creates a new test server instance.
func NewTestServer(t testing.TB, config TestServerConfig) *TestServer {
	t.Helper()

	if config.Port == 0 {
		config.Port = findFreePort(t)
	}
	if config.LogLevel == "" {
		config.LogLevel = "ERROR"
	}
	if config.StartupTimeout == 0 {
		config.StartupTimeout = 10 * time.Second
	}
	if config.Handler == nil {
		config.Handler = ajpproto.EchoHandler{ServerName: "ajpd-e2e"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TestServer{t: t, config: config, ctx: ctx, cancel: cancel}
}

// Start builds the adapter from the default configuration and serves it in
// the background.
func (ts *TestServer) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return fmt.Errorf("server already started")
	}

	ts.t.Helper()
	logger.SetLevel(ts.config.LogLevel)

	cfg := config.GetDefaultConfig()
	cfg.Server.Metrics.Enabled = false
	cfg.Server.ShutdownTimeout = 5 * time.Second

	a := &cfg.Adapters.AJP
	a.Address = "127.0.0.1"
	a.Port = ts.config.Port
	a.Secret = ts.config.Secret
	a.MaxConnections = ts.config.MaxConnections
	a.Processors.MaxTotal = ts.config.MaxProcessors
	a.ShutdownTimeout = 2 * time.Second
	a.MetricsLogInterval = 0
	if ts.config.IdleTimeout > 0 {
		a.Timeouts.Idle = ts.config.IdleTimeout
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid test configuration: %w", err)
	}

	adapters, err := config.CreateAdapters(cfg, ts.config.Handler, metrics.NewNoopAJPMetrics())
	if err != nil {
		return fmt.Errorf("failed to create adapters: %w", err)
	}

	ts.server = server.New(server.Config{StopTimeout: cfg.Server.ShutdownTimeout})
	for _, adp := range adapters {
		if err := ts.server.AddAdapter(adp); err != nil {
			return err
		}
		if aa, ok := adp.(*ajp.AJPAdapter); ok {
			ts.adapter = aa
		}
	}
	if ts.adapter == nil {
		return fmt.Errorf("no AJP adapter created")
	}

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		if err := ts.server.Serve(ts.ctx); err != nil && err != context.Canceled {
			ts.t.Logf("Server error: %v", err)
		}
	}()

	select {
	case <-ts.adapter.Ready():
	case <-time.After(ts.config.StartupTimeout):
		ts.cancel()
		ts.wg.Wait()
		return fmt.Errorf("timeout waiting for server to start")
	}

	ts.started = true
	ts.t.Logf("Server started on %s", ts.Addr())
	return nil
}

// Stop cancels the server and waits for it to return.
func (ts *TestServer) Stop() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return nil
	}

	ts.cancel()

	done := make(chan struct{})
	go func() {
		ts.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("server stop timeout")
	}

	ts.started = false
	return nil
}

// Addr returns the listening address.
func (ts *TestServer) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", ts.config.Port)
}

// Adapter returns the running AJP adapter.
func (ts *TestServer) Adapter() *ajp.AJPAdapter {
	return ts.adapter
}

// Dial opens a client connection to the server.
func (ts *TestServer) Dial() *ajpproto.Client {
	ts.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := ajpproto.Dial(ctx, "tcp", ts.Addr(), ajpproto.DefaultPacketSize)
	if err != nil {
		ts.t.Fatalf("Failed to dial %s: %v", ts.Addr(), err)
	}
	return c
}

// findFreePort finds an available port.
func findFreePort(t testing.TB) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}
