package adapter

import "context"

// Adapter represents a protocol endpoint that can be managed by the server.
//
// Each adapter listens for one protocol (e.g., AJP) and owns everything
// tied to its connections: the listener, the connection handler and its
// processor pool.
//
// Lifecycle:
//  1. Creation: adapter is created with protocol-specific configuration
//  2. Startup: Serve() starts listening and blocks until shutdown
//  3. Shutdown: Stop() or context cancellation initiates graceful shutdown
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Close or drain active connections (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - context.Canceled if cancelled via context
	//   - error if startup fails or shutdown is not graceful
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown of the protocol server.
	//
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context timeout for shutdown operations
	//
	// Returns:
	//   - nil if shutdown completed successfully
	//   - error if shutdown exceeded timeout or encountered errors
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter listens on, or 0 for non-TCP
	// listeners.
	Port() int
}
