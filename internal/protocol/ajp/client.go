package ajp

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client speaks the web server side of AJP over one connection. It is used
// by the ping command and by tests; it sends request bodies eagerly and
// ignores GET_BODY_CHUNK requests.
type Client struct {
	conn       net.Conn
	rd         *bufio.Reader
	packetSize int
}

// Dial connects to an AJP endpoint.
func Dial(ctx context.Context, network, address string, packetSize int) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}
	return NewClient(conn, packetSize), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, packetSize int) *Client {
	if packetSize == 0 {
		packetSize = DefaultPacketSize
	}
	return &Client{conn: conn, rd: bufio.NewReaderSize(conn, packetSize), packetSize: packetSize}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping sends a CPING and waits for the CPONG reply.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	c.applyDeadline(ctx)
	start := time.Now()

	w := &writer{}
	w.begin(magicIn0, magicIn1)
	w.putByte(prefixCPing)
	w.end()
	if _, err := c.conn.Write(w.buf); err != nil {
		return 0, fmt.Errorf("send CPING: %w", err)
	}

	payload, err := c.readPacket()
	if err != nil {
		return 0, err
	}
	if len(payload) != 1 || payload[0] != prefixCPongReply {
		return 0, fmt.Errorf("%w: expected CPONG", ErrUnexpectedPacket)
	}
	return time.Since(start), nil
}

// Do sends req and reads the response. reuse reports whether the container
// kept the connection open.
func (c *Client) Do(ctx context.Context, req *ForwardRequest) (resp *Response, reuse bool, err error) {
	c.applyDeadline(ctx)

	if _, err := c.conn.Write(AppendForwardRequest(nil, req, c.packetSize)); err != nil {
		return nil, false, fmt.Errorf("send FORWARD_REQUEST: %w", err)
	}

	resp = &Response{Header: make(http.Header)}
	for {
		payload, err := c.readPacket()
		if err != nil {
			return nil, false, err
		}
		if len(payload) == 0 {
			return nil, false, fmt.Errorf("%w: empty packet", ErrMalformed)
		}

		r := &reader{buf: payload, pos: 1}
		switch payload[0] {
		case prefixSendHeaders:
			if err := decodeSendHeaders(r, resp); err != nil {
				return nil, false, err
			}
			if resp.Status == http.StatusSwitchingProtocols {
				resp.Upgrade = true
				return resp, false, nil
			}
		case prefixSendBodyChunk:
			n, err := r.readInt()
			if err != nil {
				return nil, false, err
			}
			if int(n) > r.remaining() {
				return nil, false, fmt.Errorf("%w: body chunk truncated", ErrMalformed)
			}
			resp.Body = append(resp.Body, payload[3:3+int(n)]...)
		case prefixGetBodyChunk:
			// Body was sent eagerly.
		case prefixEndResponse:
			reuse, err := r.readBool()
			if err != nil {
				return nil, false, err
			}
			resp.Close = !reuse
			return resp, reuse, nil
		default:
			return nil, false, fmt.Errorf("%w: prefix %d", ErrUnexpectedPacket, payload[0])
		}
	}
}

func decodeSendHeaders(r *reader, resp *Response) error {
	status, err := r.readInt()
	if err != nil {
		return err
	}
	resp.Status = int(status)
	if resp.Message, _, err = r.readString(); err != nil {
		return err
	}

	count, err := r.readInt()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		marker, err := r.peekInt()
		if err != nil {
			return err
		}

		var name string
		if marker&0xFF00 == 0xA000 {
			_, _ = r.readInt()
			name = responseHeaderName(marker)
			if name == "" {
				return fmt.Errorf("%w: unknown response header code %#04x", ErrMalformed, marker)
			}
		} else if name, _, err = r.readString(); err != nil {
			return err
		}

		value, _, err := r.readString()
		if err != nil {
			return err
		}
		resp.Header.Add(name, value)
	}
	return nil
}

func responseHeaderName(code uint16) string {
	for name, c := range responseHeaders {
		if c == code {
			return name
		}
	}
	return ""
}

func (c *Client) readPacket() ([]byte, error) {
	var hdr [headerLength]byte
	if _, err := io.ReadFull(c.rd, hdr[:]); err != nil {
		return nil, fmt.Errorf("read packet header: %w", err)
	}
	if hdr[0] != magicOut0 || hdr[1] != magicOut1 {
		return nil, fmt.Errorf("%w: %#02x %#02x", ErrBadMagic, hdr[0], hdr[1])
	}

	payload := make([]byte, binary.BigEndian.Uint16(hdr[2:]))
	if _, err := io.ReadFull(c.rd, payload); err != nil {
		return nil, fmt.Errorf("read packet payload: %w", err)
	}
	return payload, nil
}

func (c *Client) applyDeadline(ctx context.Context) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}
}
