package connector

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

type fakeConn struct {
	id   string
	data []byte
	out  bytes.Buffer
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *fakeConn) Received() []byte { return c.data }

func (c *fakeConn) Write(p []byte) (int, error) { return c.out.Write(p) }

// fakeTransport records the socket operations requested by the handler.
type fakeTransport struct {
	mu       sync.Mutex
	closed   map[string]int
	rearmed  map[string]int
	detached map[string]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		closed:   make(map[string]int),
		rearmed:  make(map[string]int),
		detached: make(map[string]int),
	}
}

func (t *fakeTransport) CloseSocket(conn Connection) {
	t.mu.Lock()
	t.closed[conn.ID()]++
	t.mu.Unlock()
}

func (t *fakeTransport) Rearm(conn Connection) {
	t.mu.Lock()
	t.rearmed[conn.ID()]++
	t.mu.Unlock()
}

func (t *fakeTransport) Detach(conn Connection) {
	t.mu.Lock()
	t.detached[conn.ID()]++
	t.mu.Unlock()
}

func (t *fakeTransport) closes(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed[id]
}

func (t *fakeTransport) rearms(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rearmed[id]
}

func (t *fakeTransport) detaches(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detached[id]
}

// fakeProcessor returns scripted results and tracks its binding.
type fakeProcessor struct {
	n int

	mu        sync.Mutex
	script    []Result
	boundTo   string
	buffered  []byte
	seen      []Event
	recycles  int
	lastClose bool
	panicNext bool
	// violations counts steps driven for a connection other than the
	// one the processor is currently bound to.
	violations int
}

func (p *fakeProcessor) Process(_ context.Context, conn Connection, event Event) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.boundTo != "" && p.boundTo != conn.ID() {
		p.violations++
	}
	p.boundTo = conn.ID()
	p.buffered = append(p.buffered, conn.Received()...)
	p.seen = append(p.seen, event)

	if p.panicNext {
		p.panicNext = false
		panic("boom")
	}
	if len(p.script) == 0 {
		return Result{State: StateContinue}
	}
	r := p.script[0]
	p.script = p.script[1:]
	return r
}

func (p *fakeProcessor) Recycle(closing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.boundTo = ""
	p.buffered = nil
	p.seen = nil
	p.script = nil
	p.recycles++
	p.lastClose = closing
}

func (p *fakeProcessor) setScript(results ...Result) {
	p.mu.Lock()
	p.script = results
	p.mu.Unlock()
}

func (p *fakeProcessor) recycled() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recycles, p.lastClose
}

// fakeFactory hands out numbered fakeProcessors.
type fakeFactory struct {
	created atomic.Int32
	fail    atomic.Bool

	mu    sync.Mutex
	procs []*fakeProcessor
}

var errFactory = errors.New("out of memory")

func (f *fakeFactory) New() (Processor, error) {
	if f.fail.Load() {
		return nil, errFactory
	}
	p := &fakeProcessor{n: int(f.created.Add(1))}
	f.mu.Lock()
	f.procs = append(f.procs, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) last() *fakeProcessor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs[len(f.procs)-1]
}
