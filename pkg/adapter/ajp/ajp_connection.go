package ajp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/ajpd/internal/connector"
	"github.com/marmos91/ajpd/internal/logger"
	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
)

// ajpConn is the adapter's handle for one accepted socket. It implements
// connector.Connection.
//
// Reads happen only on the connection's own goroutine. received and rearmed
// are therefore only touched from that goroutine, while closeRequested and
// detached may be set by any goroutine.
type ajpConn struct {
	id      string
	server  *AJPAdapter
	nc      net.Conn
	created time.Time

	received []byte
	rearmed  bool

	closeRequested atomic.Bool
	detached       atomic.Bool
}

func newAJPConn(server *AJPAdapter, nc net.Conn) *ajpConn {
	return &ajpConn{
		id:      uuid.NewString(),
		server:  server,
		nc:      nc,
		created: time.Now(),
	}
}

func (c *ajpConn) ID() string { return c.id }

func (c *ajpConn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func (c *ajpConn) Received() []byte { return c.received }

// Write writes p to the socket, honouring the write timeout.
func (c *ajpConn) Write(p []byte) (int, error) {
	if timeout := c.server.config.Timeouts.Write; timeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	}
	return c.nc.Write(p)
}

// close requests closure of the socket. Safe to call more than once.
func (c *ajpConn) close() {
	if c.closeRequested.Swap(true) {
		return
	}
	if err := c.nc.Close(); err != nil {
		logger.Debug("Error closing socket", "conn_id", c.id, "error", err)
	}
}

// serve runs the completion loop for the socket.
//
// Each iteration issues exactly one read and delivers its completion to the
// connection handler. The next read is issued only if the handler re-armed
// the socket during that delivery. When the loop ends the handler is told to
// release any binding it still holds, and the socket is closed unless it was
// handed off by an upgrade.
func (c *ajpConn) serve(ctx context.Context) {
	handler := c.server.handler

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection loop", "conn_id", c.id, "client", c.nc.RemoteAddr().String(), "panic", r)
		}
		handler.ForceRelease(c)
		if !c.detached.Load() {
			c.close()
		}
	}()

	logger.Debug("Connection loop started", "conn_id", c.id, "client", c.nc.RemoteAddr().String())

	buf := ajpproto.GetBuffer(c.server.config.PacketSize)
	defer ajpproto.PutBuffer(buf)

	for {
		_, bound := handler.Registry().Lookup(c.id)

		timeout := c.server.config.Timeouts.Idle
		if bound {
			timeout = c.server.config.Timeouts.Read
		}
		var deadline time.Time
		if timeout > 0 {
			deadline = time.Now().Add(timeout)
		}
		if err := c.nc.SetReadDeadline(deadline); err != nil {
			logger.Debug("Failed to set read deadline", "conn_id", c.id, "error", err)
			return
		}

		// A shutdown that started before the deadline was set has already
		// woken idle sockets; an idle socket must not start a new read.
		if !bound && c.server.isShuttingDown() {
			return
		}

		n, err := c.nc.Read(buf)

		var event connector.Event
		switch {
		case n > 0:
			// Bytes are delivered before any error; a pending error resurfaces
			// on the next read.
			event = connector.EventData
			c.received = buf[:n]
			c.server.metrics.RecordBytesTransferred("read", int64(n))
		case c.closeRequested.Load() || c.detached.Load():
			return
		case isTimeout(err):
			event = connector.EventTimeout
		default:
			if errors.Is(err, io.EOF) {
				logger.Debug("Connection closed by client", "conn_id", c.id)
			} else {
				logger.Debug("Read failed", "conn_id", c.id, "error", err)
			}
			event = connector.EventError
		}

		c.rearmed = false
		if err := handler.OnConnectionEvent(ctx, c, event); err != nil {
			logger.Debug("Connection event failed", "conn_id", c.id, "event", event.String(), "error", err)
		}
		c.received = nil

		if !c.rearmed || c.closeRequested.Load() || c.detached.Load() {
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
