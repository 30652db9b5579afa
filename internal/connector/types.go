package connector

import (
	"context"
	"errors"
	"io"
	"net"
)

var (
	// ErrProcessorUnavailable is returned when no processor can be obtained
	// for a new connection (the processor cap is reached or the factory failed).
	ErrProcessorUnavailable = errors.New("connector: no processor available")

	// ErrAlreadyBound is returned by Registry.Bind when the connection already
	// has a processor.
	ErrAlreadyBound = errors.New("connector: connection already bound")
)

// Event is the kind of completion delivered by the transport.
type Event int

const (
	// EventData means a read completed with new bytes in Connection.Received.
	EventData Event = iota
	// EventError means the read failed (reset, EOF, I/O error).
	EventError
	// EventTimeout means the read deadline expired before any bytes arrived.
	EventTimeout
)

func (e Event) String() string {
	switch e {
	case EventData:
		return "DATA"
	case EventError:
		return "ERROR"
	case EventTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// State is the outcome of one processing step.
type State int

const (
	// StateContinue keeps the binding and asks for more input.
	StateContinue State = iota
	// StateFinished ends the request cycle; Result.KeepAlive decides whether
	// the socket stays open.
	StateFinished
	// StateError ends the cycle and closes the socket.
	StateError
	// StateUpgrade hands the connection off to another protocol.
	StateUpgrade
)

func (s State) String() string {
	switch s {
	case StateContinue:
		return "CONTINUE"
	case StateFinished:
		return "FINISHED"
	case StateError:
		return "ERROR"
	case StateUpgrade:
		return "UPGRADE"
	default:
		return "UNKNOWN"
	}
}

// Result is what a Processor reports after one step.
type Result struct {
	State     State
	KeepAlive bool
	// Err carries the cause of a StateError outcome, for logging only.
	Err error
}

// Connection is the transport's handle for one accepted socket.
//
// The handler never creates or closes a Connection; it only keeps a reference
// while the connection is registered.
type Connection interface {
	// ID is unique for every accepted socket.
	ID() string
	RemoteAddr() net.Addr
	// Received returns the bytes of the completion being delivered. The slice
	// is only valid for the duration of the callback.
	Received() []byte
	io.Writer
}

// Processor is a recyclable protocol state machine. A Processor is bound to
// at most one Connection at a time.
type Processor interface {
	// Process drives the processor one step for the given event.
	Process(ctx context.Context, conn Connection, event Event) Result

	// Recycle clears all per-connection state. closing reports whether the
	// socket is going away. Recycle must be idempotent and must not panic.
	Recycle(closing bool)
}

// ProcessorFactory constructs a new Processor when the pool is empty.
type ProcessorFactory func() (Processor, error)

// Transport is the set of socket operations the handler needs from the
// endpoint. Implementations must not call back into the Handler
// synchronously from these methods.
type Transport interface {
	// CloseSocket requests closure of the connection's socket. Closing an
	// already-closed socket is a no-op.
	CloseSocket(conn Connection)

	// Rearm issues the next asynchronous read for the connection.
	Rearm(conn Connection)

	// Detach stops the transport from managing the socket. Used when the
	// connection is handed off by an upgrade.
	Detach(conn Connection)
}

// UpgradeFunc takes ownership of a connection after a StateUpgrade outcome.
// The processor is never recycled by the handler afterwards.
type UpgradeFunc func(conn Connection, p Processor)
