package ajp

import "context"

// RequestHandler serves forwarded requests.
type RequestHandler interface {
	ServeAJP(ctx context.Context, req *ForwardRequest) (*Response, error)
}

// HandlerFunc adapts an ordinary function to RequestHandler.
type HandlerFunc func(ctx context.Context, req *ForwardRequest) (*Response, error)

func (f HandlerFunc) ServeAJP(ctx context.Context, req *ForwardRequest) (*Response, error) {
	return f(ctx, req)
}
