package ajp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/marmos91/ajpd/internal/connector"
	"github.com/stretchr/testify/require"
)

// testConn is a connector.Connection that records everything written to it.
type testConn struct {
	data     []byte
	out      bytes.Buffer
	writeErr error
}

func (c *testConn) ID() string { return "test-conn" }

func (c *testConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 50000}
}

func (c *testConn) Received() []byte { return c.data }

func (c *testConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.out.Write(p)
}

// feed delivers data as one read completion.
func feed(p *Processor, c *testConn, data []byte) connector.Result {
	c.data = data
	return p.Process(context.Background(), c, connector.EventData)
}

// splitPackets splits container output into packet payloads.
func splitPackets(t *testing.T, out []byte) [][]byte {
	t.Helper()

	var packets [][]byte
	for len(out) > 0 {
		require.GreaterOrEqual(t, len(out), headerLength)
		require.Equal(t, byte('A'), out[0])
		require.Equal(t, byte('B'), out[1])
		n := int(binary.BigEndian.Uint16(out[2:4]))
		require.GreaterOrEqual(t, len(out), headerLength+n)
		packets = append(packets, out[headerLength:headerLength+n])
		out = out[headerLength+n:]
	}
	return packets
}

// parseResponse decodes SEND_HEADERS, SEND_BODY_CHUNK and END_RESPONSE
// packets from container output.
func parseResponse(t *testing.T, packets [][]byte) (resp *Response, reuse, ended bool) {
	t.Helper()

	resp = &Response{Header: make(http.Header)}
	for _, pkt := range packets {
		r := &reader{buf: pkt, pos: 1}
		switch pkt[0] {
		case prefixSendHeaders:
			require.NoError(t, decodeSendHeaders(r, resp))
		case prefixSendBodyChunk:
			n, err := r.readInt()
			require.NoError(t, err)
			resp.Body = append(resp.Body, pkt[3:3+int(n)]...)
			require.Equal(t, byte(0), pkt[3+int(n)], "body chunk must be NUL terminated")
		case prefixEndResponse:
			reuse, _ = r.readBool()
			ended = true
		}
	}
	return resp, reuse, ended
}

func newTestProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	factory, err := NewProcessorFactory(cfg)
	require.NoError(t, err)
	proc, err := factory()
	require.NoError(t, err)
	return proc.(*Processor)
}

func cpingPacket() []byte {
	return []byte{magicIn0, magicIn1, 0, 1, prefixCPing}
}

func simpleRequest(method, uri string) *ForwardRequest {
	return &ForwardRequest{
		Method:     method,
		Protocol:   "HTTP/1.1",
		RequestURI: uri,
		RemoteAddr: "192.0.2.10",
		RemoteHost: "client.example",
		ServerName: "www.example",
		ServerPort: 80,
		Header:     http.Header{"Host": {"www.example"}},
	}
}

var errHandler = errors.New("handler exploded")
