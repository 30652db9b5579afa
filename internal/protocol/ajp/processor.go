package ajp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/ajpd/internal/connector"
	"github.com/marmos91/ajpd/internal/logger"
	"github.com/marmos91/ajpd/pkg/metrics"
)

// DefaultMaxBodySize is the request body limit used when none is configured.
const DefaultMaxBodySize = 16 << 20

var (
	// ErrTransport is reported when the transport delivers an error event.
	ErrTransport = errors.New("ajp: transport error")
	// ErrRequestTimeout is reported when a read times out mid-request.
	ErrRequestTimeout = errors.New("ajp: timeout while reading request")
)

// Config configures AJP processors.
type Config struct {
	// PacketSize is the maximum packet size, header included.
	// Valid range: 8192-65536. Default: 8192
	PacketSize int

	// MaxBodySize limits the request body a processor buffers. Larger
	// requests are answered with 413 and the connection is closed.
	// Default: 16 MiB
	MaxBodySize int64

	// Secret, when set, must match the secret attribute of every request.
	Secret string

	// Handler serves complete requests. Default: EchoHandler
	Handler RequestHandler

	// Metrics records per-request metrics. nil disables collection.
	Metrics metrics.AJPMetrics
}

func (c *Config) applyDefaults() {
	if c.PacketSize == 0 {
		c.PacketSize = DefaultPacketSize
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.Handler == nil {
		c.Handler = EchoHandler{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoopAJPMetrics()
	}
}

func (c *Config) validate() error {
	if c.PacketSize < DefaultPacketSize || c.PacketSize > MaxPacketSize {
		return fmt.Errorf("invalid packet size %d: must be between %d and %d", c.PacketSize, DefaultPacketSize, MaxPacketSize)
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("invalid max body size %d: must be positive", c.MaxBodySize)
	}
	return nil
}

// NewProcessorFactory returns a connector.ProcessorFactory building AJP
// processors that share cfg.
func NewProcessorFactory(cfg Config) (connector.ProcessorFactory, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return func() (connector.Processor, error) {
		return newProcessor(cfg), nil
	}, nil
}

type phase uint8

const (
	// phaseIdle: waiting for FORWARD_REQUEST or CPING.
	phaseIdle phase = iota
	// phaseBody: collecting request body packets.
	phaseBody
)

// Processor is the AJP/1.3 state machine for one connection at a time.
//
// It buffers the bytes of each read completion, decodes every complete
// packet, and writes CPONG replies, GET_BODY_CHUNK requests and responses
// through the connection. Several packets in one read (pipelining) are
// handled in the same step.
type Processor struct {
	cfg Config

	in  []byte
	out writer

	phase     phase
	req       *ForwardRequest
	remaining int64
	started   time.Time
}

func newProcessor(cfg Config) *Processor {
	return &Processor{cfg: cfg}
}

// Process implements connector.Processor.
func (p *Processor) Process(ctx context.Context, conn connector.Connection, event connector.Event) connector.Result {
	switch event {
	case connector.EventError:
		return connector.Result{State: connector.StateError, Err: ErrTransport}
	case connector.EventTimeout:
		if p.phase == phaseIdle && len(p.in) == 0 {
			return connector.Result{State: connector.StateFinished}
		}
		return connector.Result{State: connector.StateError, Err: ErrRequestTimeout}
	}

	if p.in == nil {
		p.in = GetBuffer(2 * p.cfg.PacketSize)[:0]
		p.out.buf = GetBuffer(p.cfg.PacketSize)[:0]
	}
	p.in = append(p.in, conn.Received()...)

	finished := false
	for {
		total, err := packetLength(p.in, magicIn0, magicIn1, p.cfg.PacketSize)
		if err != nil {
			return p.fail(conn, err)
		}
		if total == 0 || len(p.in) < total {
			break
		}

		done, stop := p.handlePacket(ctx, conn, p.in[headerLength:total])
		p.consume(total)
		if stop != nil {
			return *stop
		}
		if done {
			finished = true
		}
	}

	if finished && len(p.in) == 0 && p.phase == phaseIdle {
		return connector.Result{State: connector.StateFinished, KeepAlive: true}
	}
	return connector.Result{State: connector.StateContinue}
}

// Recycle implements connector.Processor.
func (p *Processor) Recycle(closing bool) {
	p.phase = phaseIdle
	p.req = nil
	p.remaining = 0
	p.started = time.Time{}
	p.out.reset()

	if closing {
		PutBuffer(p.in)
		p.in = nil
		PutBuffer(p.out.buf)
		p.out.buf = nil
		return
	}
	if p.in != nil {
		p.in = p.in[:0]
	}
}

// Buffered returns input received but not yet consumed. After an upgrade it
// holds the first bytes of the new protocol.
func (p *Processor) Buffered() []byte {
	return p.in
}

func (p *Processor) consume(n int) {
	rest := copy(p.in, p.in[n:])
	p.in = p.in[:rest]
}

// handlePacket processes one packet payload. done reports a completed
// request cycle; a non-nil stop ends the step with that result.
func (p *Processor) handlePacket(ctx context.Context, conn connector.Connection, payload []byte) (done bool, stop *connector.Result) {
	if p.phase == phaseBody {
		return p.handleBody(ctx, conn, payload)
	}

	if len(payload) == 0 {
		return false, p.stopError(conn, fmt.Errorf("%w: empty packet", ErrMalformed))
	}

	switch payload[0] {
	case prefixCPing:
		logger.Debug("CPING", "conn_id", conn.ID())
		appendCPong(&p.out)
		if err := p.flush(conn); err != nil {
			return false, p.stopError(conn, err)
		}
		return true, nil

	case prefixForwardRequest:
		req, err := decodeForwardRequest(payload)
		if err != nil {
			return false, p.stopError(conn, err)
		}
		p.req = req
		p.started = time.Now()

		logger.Debug("FORWARD_REQUEST", "conn_id", conn.ID(), "method", req.Method, "uri", req.RequestURI,
			"content_length", req.ContentLength)

		if p.cfg.Secret != "" && subtle.ConstantTimeCompare([]byte(req.Secret), []byte(p.cfg.Secret)) != 1 {
			logger.Warn("Rejecting request with invalid secret", "conn_id", conn.ID(), "client", conn.RemoteAddr())
			return p.respond(conn, errorResponse(http.StatusForbidden))
		}

		if req.ContentLength > p.cfg.MaxBodySize {
			logger.Warn("Rejecting oversized request body", "conn_id", conn.ID(), "uri", req.RequestURI,
				"content_length", req.ContentLength, "max_body_size", p.cfg.MaxBodySize)
			return p.respond(conn, errorResponse(http.StatusRequestEntityTooLarge))
		}

		if req.ContentLength > 0 || req.Chunked() {
			p.phase = phaseBody
			p.remaining = req.ContentLength
			return false, nil
		}
		return p.dispatch(ctx, conn)

	default:
		return false, p.stopError(conn, fmt.Errorf("%w: prefix %d while idle", ErrUnexpectedPacket, payload[0]))
	}
}

// handleBody appends a request body packet and asks the web server for
// more until the body is complete.
func (p *Processor) handleBody(ctx context.Context, conn connector.Connection, payload []byte) (bool, *connector.Result) {
	var chunk []byte
	if len(payload) >= 2 {
		r := &reader{buf: payload}
		n, _ := r.readInt()
		if int(n) > r.remaining() {
			return false, p.stopError(conn, fmt.Errorf("%w: body chunk of %d bytes in %d byte packet", ErrMalformed, n, len(payload)))
		}
		chunk = payload[2 : 2+int(n)]
	}

	if len(chunk) == 0 {
		if p.req.Chunked() {
			return p.dispatch(ctx, conn)
		}
		return false, p.stopError(conn, fmt.Errorf("%w: body ended with %d bytes outstanding", ErrMalformed, p.remaining))
	}

	if int64(len(p.req.Body)+len(chunk)) > p.cfg.MaxBodySize {
		logger.Warn("Request body exceeds limit", "conn_id", conn.ID(), "uri", p.req.RequestURI,
			"max_body_size", p.cfg.MaxBodySize)
		return p.respond(conn, errorResponse(http.StatusRequestEntityTooLarge))
	}
	p.req.Body = append(p.req.Body, chunk...)

	limit := maxRequestBodyChunk(p.cfg.PacketSize)
	if !p.req.Chunked() {
		p.remaining -= int64(len(chunk))
		if p.remaining < 0 {
			return false, p.stopError(conn, fmt.Errorf("%w: body exceeds Content-Length %d", ErrMalformed, p.req.ContentLength))
		}
		if p.remaining == 0 {
			return p.dispatch(ctx, conn)
		}
		limit = int(min(p.remaining, int64(limit)))
	}

	appendGetBodyChunk(&p.out, limit)
	if err := p.flush(conn); err != nil {
		return false, p.stopError(conn, err)
	}
	return false, nil
}

// dispatch hands the complete request to the RequestHandler and writes the
// response.
func (p *Processor) dispatch(ctx context.Context, conn connector.Connection) (bool, *connector.Result) {
	resp, err := p.serve(ctx)
	if err != nil {
		logger.Warn("Request handler failed", "conn_id", conn.ID(), "method", p.req.Method, "uri", p.req.RequestURI, "error", err)
		resp = errorResponse(http.StatusInternalServerError)
	}
	return p.respond(conn, resp)
}

func (p *Processor) serve(ctx context.Context) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	resp, err = p.cfg.Handler.ServeAJP(ctx, p.req)
	if err == nil && resp == nil {
		err = fmt.Errorf("handler returned no response")
	}
	return resp, err
}

// respond writes resp and ends the request cycle.
func (p *Processor) respond(conn connector.Connection, resp *Response) (bool, *connector.Result) {
	req := p.req
	appendResponse(&p.out, req.Method, resp, p.cfg.PacketSize)
	if err := p.flush(conn); err != nil {
		return false, p.stopError(conn, err)
	}

	p.cfg.Metrics.RecordRequest(req.Method, resp.status(), time.Since(p.started))
	logger.Debug("Request served", "conn_id", conn.ID(), "method", req.Method, "uri", req.RequestURI,
		"status", resp.status(), "duration", time.Since(p.started))

	p.phase = phaseIdle
	p.req = nil
	p.remaining = 0

	switch {
	case resp.Upgrade:
		return true, &connector.Result{State: connector.StateUpgrade}
	case resp.Close:
		return true, &connector.Result{State: connector.StateFinished, KeepAlive: false}
	}
	return true, nil
}

func (p *Processor) flush(conn connector.Connection) error {
	if len(p.out.buf) == 0 {
		return nil
	}
	n, err := conn.Write(p.out.buf)
	p.cfg.Metrics.RecordBytesTransferred("write", int64(n))
	p.out.reset()
	if err != nil {
		return fmt.Errorf("write to %s: %w", conn.ID(), err)
	}
	return nil
}

func (p *Processor) stopError(conn connector.Connection, err error) *connector.Result {
	r := p.fail(conn, err)
	return &r
}

func (p *Processor) fail(conn connector.Connection, err error) connector.Result {
	logger.Debug("AJP protocol error", "conn_id", conn.ID(), "client", conn.RemoteAddr(), "error", err)
	return connector.Result{State: connector.StateError, Err: err}
}
