package ajp

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// ForwardRequest is a decoded FORWARD_REQUEST packet plus the request body
// collected from the data packets that follow it.
type ForwardRequest struct {
	Method     string
	Protocol   string
	RequestURI string
	RemoteAddr string
	RemoteHost string
	ServerName string
	ServerPort int
	IsSSL      bool
	Header     http.Header

	Context      string
	ServletPath  string
	RemoteUser   string
	AuthType     string
	QueryString  string
	JVMRoute     string
	SSLCert      string
	SSLCipher    string
	SSLSession   string
	SSLKeySize   int
	Secret       string
	StoredMethod string

	// Attributes holds arbitrary req_attribute name/value pairs.
	Attributes map[string]string

	// ContentLength is -1 when the request has no Content-Length header.
	ContentLength int64
	Body          []byte
}

// Chunked reports whether the body is delimited by an empty data packet
// rather than a Content-Length.
func (r *ForwardRequest) Chunked() bool {
	return r.ContentLength < 0 && strings.EqualFold(r.Header.Get("Transfer-Encoding"), "chunked")
}

// URL returns the request URI with the query string appended.
func (r *ForwardRequest) URL() string {
	if r.QueryString == "" {
		return r.RequestURI
	}
	return r.RequestURI + "?" + r.QueryString
}

// decodeForwardRequest decodes the payload of a FORWARD_REQUEST packet
// (prefix byte included).
func decodeForwardRequest(payload []byte) (*ForwardRequest, error) {
	r := &reader{buf: payload}

	prefix, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if prefix != prefixForwardRequest {
		return nil, fmt.Errorf("%w: prefix %d is not FORWARD_REQUEST", ErrUnexpectedPacket, prefix)
	}

	req := &ForwardRequest{
		Header:        make(http.Header),
		ContentLength: -1,
	}

	code, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch {
	case code >= 1 && int(code) <= len(methods):
		req.Method = methods[code-1]
	case code == methodStored:
		// filled in from the stored_method attribute below
	default:
		return nil, fmt.Errorf("%w: unknown method code %d", ErrMalformed, code)
	}

	fields := []*string{&req.Protocol, &req.RequestURI, &req.RemoteAddr, &req.RemoteHost, &req.ServerName}
	for _, f := range fields {
		if *f, _, err = r.readString(); err != nil {
			return nil, err
		}
	}

	port, err := r.readInt()
	if err != nil {
		return nil, err
	}
	req.ServerPort = int(port)

	if req.IsSSL, err = r.readBool(); err != nil {
		return nil, err
	}

	if err := decodeHeaders(r, req); err != nil {
		return nil, err
	}
	if err := decodeAttributes(r, req); err != nil {
		return nil, err
	}

	if code == methodStored {
		if req.StoredMethod == "" {
			return nil, fmt.Errorf("%w: stored method code without stored_method attribute", ErrMalformed)
		}
		req.Method = req.StoredMethod
	}

	if cl := req.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid Content-Length %q", ErrMalformed, cl)
		}
		req.ContentLength = n
	}

	return req, nil
}

func decodeHeaders(r *reader, req *ForwardRequest) error {
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
			idx := int(marker&0x00FF) - 1
			if idx < 0 || idx >= len(requestHeaders) {
				return fmt.Errorf("%w: unknown header code %#04x", ErrMalformed, marker)
			}
			name = requestHeaders[idx]
		} else {
			if name, _, err = r.readString(); err != nil {
				return err
			}
		}

		value, _, err := r.readString()
		if err != nil {
			return err
		}
		req.Header.Add(name, value)
	}
	return nil
}

func decodeAttributes(r *reader, req *ForwardRequest) error {
	for {
		code, err := r.readByte()
		if err != nil {
			return err
		}

		var target *string
		switch code {
		case attrTerminator:
			return nil
		case attrContext:
			target = &req.Context
		case attrServletPath:
			target = &req.ServletPath
		case attrRemoteUser:
			target = &req.RemoteUser
		case attrAuthType:
			target = &req.AuthType
		case attrQueryString:
			target = &req.QueryString
		case attrJVMRoute:
			target = &req.JVMRoute
		case attrSSLCert:
			target = &req.SSLCert
		case attrSSLCipher:
			target = &req.SSLCipher
		case attrSSLSession:
			target = &req.SSLSession
		case attrSecret:
			target = &req.Secret
		case attrStoredMethod:
			target = &req.StoredMethod
		case attrSSLKeySize:
			size, err := r.readInt()
			if err != nil {
				return err
			}
			req.SSLKeySize = int(size)
			continue
		case attrReqAttribute:
			name, _, err := r.readString()
			if err != nil {
				return err
			}
			value, _, err := r.readString()
			if err != nil {
				return err
			}
			if req.Attributes == nil {
				req.Attributes = make(map[string]string)
			}
			req.Attributes[name] = value
			continue
		default:
			return fmt.Errorf("%w: unknown attribute code %#02x", ErrMalformed, code)
		}

		if *target, _, err = r.readString(); err != nil {
			return err
		}
	}
}

// AppendForwardRequest appends req as a FORWARD_REQUEST packet followed by
// its body data packets, the way a web server sends it. Body is split into
// packets of at most packetSize bytes; a chunked request without a
// Content-Length header ends with an empty data packet.
func AppendForwardRequest(dst []byte, req *ForwardRequest, packetSize int) []byte {
	w := &writer{buf: dst}
	w.begin(magicIn0, magicIn1)
	w.putByte(prefixForwardRequest)

	if code := methodCode(req.Method); code != 0 {
		w.putByte(code)
	} else {
		w.putByte(methodStored)
	}
	w.putString(req.Protocol)
	w.putString(req.RequestURI)
	w.putString(req.RemoteAddr)
	w.putString(req.RemoteHost)
	w.putString(req.ServerName)
	w.putInt(uint16(req.ServerPort))
	w.putBool(req.IsSSL)

	names := make([]string, 0, len(req.Header))
	count := 0
	for name, values := range req.Header {
		names = append(names, name)
		count += len(values)
	}
	sort.Strings(names)

	w.putInt(uint16(count))
	for _, name := range names {
		for _, v := range req.Header[name] {
			if code := requestHeaderCode(name); code != 0 {
				w.putInt(code)
			} else {
				w.putString(name)
			}
			w.putString(v)
		}
	}

	attrs := []struct {
		code  byte
		value string
	}{
		{attrContext, req.Context},
		{attrServletPath, req.ServletPath},
		{attrRemoteUser, req.RemoteUser},
		{attrAuthType, req.AuthType},
		{attrQueryString, req.QueryString},
		{attrJVMRoute, req.JVMRoute},
		{attrSSLCert, req.SSLCert},
		{attrSSLCipher, req.SSLCipher},
		{attrSSLSession, req.SSLSession},
		{attrSecret, req.Secret},
	}
	if methodCode(req.Method) == 0 {
		attrs = append(attrs, struct {
			code  byte
			value string
		}{attrStoredMethod, req.Method})
	}
	for _, a := range attrs {
		if a.value != "" {
			w.putByte(a.code)
			w.putString(a.value)
		}
	}
	if req.SSLKeySize > 0 {
		w.putByte(attrSSLKeySize)
		w.putInt(uint16(req.SSLKeySize))
	}

	attrNames := make([]string, 0, len(req.Attributes))
	for name := range req.Attributes {
		attrNames = append(attrNames, name)
	}
	sort.Strings(attrNames)
	for _, name := range attrNames {
		w.putByte(attrReqAttribute)
		w.putString(name)
		w.putString(req.Attributes[name])
	}
	w.putByte(attrTerminator)
	w.end()

	chunked := req.Header.Get("Content-Length") == "" &&
		strings.EqualFold(req.Header.Get("Transfer-Encoding"), "chunked")
	return appendBodyPackets(w.buf, req.Body, packetSize, chunked)
}

// appendBodyPackets appends body as web server data packets.
func appendBodyPackets(dst, body []byte, packetSize int, terminate bool) []byte {
	w := &writer{buf: dst}
	limit := maxRequestBodyChunk(packetSize)
	for len(body) > 0 {
		n := min(len(body), limit)
		w.begin(magicIn0, magicIn1)
		w.putInt(uint16(n))
		w.putBytes(body[:n])
		w.end()
		body = body[n:]
	}
	if terminate {
		w.begin(magicIn0, magicIn1)
		w.end()
	}
	return w.buf
}

// maxRequestBodyChunk is the largest body slice a data packet can carry.
func maxRequestBodyChunk(packetSize int) int {
	return packetSize - headerLength - 2
}
