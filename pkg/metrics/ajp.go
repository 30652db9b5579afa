package metrics

import "time"

// Release kinds reported through AJPMetrics.RecordRelease.
const (
	ReleaseForced      = "forced"
	ReleaseCooperative = "cooperative"
	ReleaseNoop        = "noop"
)

// AJPMetrics provides observability for the AJP adapter and its connection
// handler.
//
// Implementations collect request, connection lifecycle and processor pool
// metrics. The interface is optional - if nil is passed to the adapter or the
// connection handler, a no-op implementation is used.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewAJPMetrics()
//	adapter, err := ajp.New(config, handler, m)
//
//	// Without metrics (no-op)
//	adapter, err := ajp.New(config, handler, nil)
type AJPMetrics interface {
	// RecordRequest records a completed forwarded request.
	//
	// Parameters:
	//   - method: HTTP method name (e.g., "GET", "POST")
	//   - status: HTTP status code sent to the web server
	//   - duration: Time from the first FORWARD_REQUEST byte to END_RESPONSE
	RecordRequest(method string, status int, duration time.Duration)

	// RecordBytesTransferred records bytes read from or written to sockets.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	RecordConnectionAccepted()
	RecordConnectionClosed()

	// RecordConnectionRejected counts sockets closed before being served.
	//
	// Parameters:
	//   - reason: "max_connections", "rate_limited" or "no_processor"
	RecordConnectionRejected(reason string)

	// RecordConnectionForceClosed counts sockets closed after the shutdown
	// timeout expired.
	RecordConnectionForceClosed()

	RecordProcessorCreated()
	RecordProcessorRecycled()
	RecordProcessorDiscarded()
	RecordProcessorsTrimmed(count int)

	// SetIdleProcessors updates the number of processors waiting in the pool.
	SetIdleProcessors(count int)

	// RecordRelease counts a release by kind (ReleaseForced,
	// ReleaseCooperative or ReleaseNoop).
	RecordRelease(kind string)

	// RecordUpgrade counts connections handed off by a protocol upgrade.
	RecordUpgrade()
}

// NewNoopAJPMetrics returns an AJPMetrics that discards everything.
func NewNoopAJPMetrics() AJPMetrics {
	return noopAJPMetrics{}
}

type noopAJPMetrics struct{}

func (noopAJPMetrics) RecordRequest(string, int, time.Duration) {}
func (noopAJPMetrics) RecordBytesTransferred(string, int64) {}
func (noopAJPMetrics) SetActiveConnections(int32) {}
func (noopAJPMetrics) RecordConnectionAccepted() {}
func (noopAJPMetrics) RecordConnectionClosed() {}
func (noopAJPMetrics) RecordConnectionRejected(string) {}
func (noopAJPMetrics) RecordConnectionForceClosed() {}
func (noopAJPMetrics) RecordProcessorCreated() {}
func (noopAJPMetrics) RecordProcessorRecycled() {}
func (noopAJPMetrics) RecordProcessorDiscarded() {}
func (noopAJPMetrics) RecordProcessorsTrimmed(int) {}
func (noopAJPMetrics) SetIdleProcessors(int) {}
func (noopAJPMetrics) RecordRelease(string) {}
func (noopAJPMetrics) RecordUpgrade() {}
