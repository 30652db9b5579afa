package framework

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
)

// NewRequest builds a forwarded request as a front-end web server would.
func NewRequest(method, uri string, body []byte) *ajpproto.ForwardRequest {
	req := &ajpproto.ForwardRequest{
		Method:        method,
		Protocol:      "HTTP/1.1",
		RequestURI:    uri,
		RemoteAddr:    "192.0.2.10",
		RemoteHost:    "client.example",
		ServerName:    "www.example",
		ServerPort:    443,
		IsSSL:         true,
		Header:        http.Header{"Host": []string{"www.example"}},
		ContentLength: -1,
	}
	if body != nil {
		req.ContentLength = int64(len(body))
		req.Header.Set("Content-Length", strconv.Itoa(len(body)))
		req.Body = body
	}
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		req.RequestURI, req.QueryString = uri[:i], uri[i+1:]
	}
	return req
}

// MustDo sends req and fails the test unless the response arrives.
func MustDo(t testing.TB, c *ajpproto.Client, req *ajpproto.ForwardRequest) (*ajpproto.Response, bool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, reuse, err := c.Do(ctx, req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", req.Method, req.RequestURI, err)
	}
	return resp, reuse
}
