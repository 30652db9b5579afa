package ajp

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// EchoHandler answers every request with a plain-text description of what
// the web server forwarded. It is the default handler of the ajpd binary.
type EchoHandler struct {
	// ServerName is reported in the Servlet-Engine header.
	ServerName string
}

func (h EchoHandler) ServeAJP(_ context.Context, req *ForwardRequest) (*Response, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s %s\n", req.Method, req.URL(), req.Protocol)
	fmt.Fprintf(&b, "remote: %s (%s)\n", req.RemoteAddr, req.RemoteHost)
	fmt.Fprintf(&b, "server: %s:%d ssl=%t\n", req.ServerName, req.ServerPort, req.IsSSL)
	if req.RemoteUser != "" {
		fmt.Fprintf(&b, "user: %s (%s)\n", req.RemoteUser, req.AuthType)
	}
	if req.JVMRoute != "" {
		fmt.Fprintf(&b, "route: %s\n", req.JVMRoute)
	}

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range req.Header[name] {
			fmt.Fprintf(&b, "header %s: %s\n", name, v)
		}
	}

	attrs := make([]string, 0, len(req.Attributes))
	for name := range req.Attributes {
		attrs = append(attrs, name)
	}
	sort.Strings(attrs)
	for _, name := range attrs {
		fmt.Fprintf(&b, "attribute %s: %s\n", name, req.Attributes[name])
	}

	fmt.Fprintf(&b, "body: %d bytes\n", len(req.Body))

	engine := h.ServerName
	if engine == "" {
		engine = "ajpd"
	}

	return &Response{
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type":   {"text/plain; charset=utf-8"},
			"Servlet-Engine": {engine},
		},
		Body: []byte(b.String()),
	}, nil
}
