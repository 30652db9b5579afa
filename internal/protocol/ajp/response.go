package ajp

import (
	"net/http"
	"sort"
	"strconv"
)

// Response is what a RequestHandler sends back through the web server.
type Response struct {
	// Status defaults to 200.
	Status int
	// Message is the reason phrase. Defaults to http.StatusText(Status).
	Message string
	Header  http.Header
	Body    []byte

	// Close ends the connection after the response instead of reusing it.
	Close bool

	// Upgrade hands the connection off after the headers have been sent.
	// No body or END_RESPONSE is written.
	Upgrade bool
}

func (r *Response) status() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

func (r *Response) message() string {
	if r.Message != "" {
		return r.Message
	}
	return http.StatusText(r.status())
}

// errorResponse builds a plain-text response that closes the connection.
func errorResponse(status int) *Response {
	return &Response{
		Status: status,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte(http.StatusText(status) + "\n"),
		Close:  true,
	}
}

// maxResponseBodyChunk is the largest body slice one SEND_BODY_CHUNK can carry:
// header, prefix, length and trailing NUL take 8 bytes.
func maxResponseBodyChunk(packetSize int) int {
	return packetSize - headerLength - 4
}

// appendSendHeaders writes a SEND_HEADERS packet.
func appendSendHeaders(w *writer, resp *Response) {
	w.begin(magicOut0, magicOut1)
	w.putByte(prefixSendHeaders)
	w.putInt(uint16(resp.status()))
	w.putString(resp.message())

	names := make([]string, 0, len(resp.Header))
	count := 0
	for name, values := range resp.Header {
		names = append(names, name)
		count += len(values)
	}
	sort.Strings(names)

	w.putInt(uint16(count))
	for _, name := range names {
		code, known := responseHeaders[http.CanonicalHeaderKey(name)]
		for _, v := range resp.Header[name] {
			if known {
				w.putInt(code)
			} else {
				w.putString(name)
			}
			w.putString(v)
		}
	}
	w.end()
}

// appendBodyChunks writes body as SEND_BODY_CHUNK packets.
func appendBodyChunks(w *writer, body []byte, packetSize int) {
	limit := maxResponseBodyChunk(packetSize)
	for len(body) > 0 {
		n := min(len(body), limit)
		w.begin(magicOut0, magicOut1)
		w.putByte(prefixSendBodyChunk)
		w.putInt(uint16(n))
		w.putBytes(body[:n])
		w.putByte(0)
		w.end()
		body = body[n:]
	}
}

func appendEndResponse(w *writer, reuse bool) {
	w.begin(magicOut0, magicOut1)
	w.putByte(prefixEndResponse)
	w.putBool(reuse)
	w.end()
}

func appendGetBodyChunk(w *writer, size int) {
	w.begin(magicOut0, magicOut1)
	w.putByte(prefixGetBodyChunk)
	w.putInt(uint16(size))
	w.end()
}

func appendCPong(w *writer) {
	w.begin(magicOut0, magicOut1)
	w.putByte(prefixCPongReply)
	w.end()
}

// appendResponse writes a complete response. The Content-Length header is
// filled in when the handler did not set one. HEAD responses carry no body.
func appendResponse(w *writer, method string, resp *Response, packetSize int) {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if !resp.Upgrade && resp.Header.Get("Content-Length") == "" {
		resp.Header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}

	appendSendHeaders(w, resp)
	if resp.Upgrade {
		return
	}
	if method != http.MethodHead {
		appendBodyChunks(w, resp.Body, packetSize)
	}
	appendEndResponse(w, !resp.Close)
}
