// Package pool implements a bounded pool of TCP connections to a single
// smoldb server address, grounded in the client connection pool described
// in spec.md §5: a counting semaphore bounds how many connections exist at
// once, idle connections are queued for reuse, and a connection is handed
// back to the pool (or discarded, if broken) when the caller is done
// with it.
package pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nikosl/smoldb/internal/storeerr"
)

// Conn is a pooled connection. Callers must call Release when finished;
// Release either returns the connection to the pool for reuse or, if the
// caller marked it broken, closes it and frees its slot for a fresh dial.
type Conn struct {
	net.Conn
	pool   *Pool
	broken bool
}

// Discard marks the connection as unusable so Release closes it instead of
// returning it to the pool. Callers should call Discard whenever a
// read/write on the connection fails, since a connection that errored
// mid-protocol cannot be trusted to still be framed correctly (spec.md §9's
// flagged "broken pooled connection" hazard).
func (c *Conn) Discard() {
	c.broken = true
}

// Release returns the connection to the pool, or closes it and opens a new
// slot if it was discarded.
func (c *Conn) Release() {
	c.pool.release(c)
}

// Pool is a fixed-capacity, lazily-populated pool of connections to addr.
// It is safe for concurrent use from many goroutines.
type Pool struct {
	addr string

	sem         chan struct{} // counting semaphore, one slot per permitted connection
	mu          sync.Mutex
	idle        []net.Conn
	closed      bool
	dial        func(ctx context.Context, addr string) (net.Conn, error)
	dialTimeout time.Duration
}

// New creates a Pool that dials addr and allows up to size concurrent
// connections. Connections are created lazily: New never dials.
func New(addr string, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		addr:        addr,
		sem:         make(chan struct{}, size),
		dial:        defaultDial,
		dialTimeout: 5 * time.Second,
	}
}

func defaultDial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// Get acquires a connection, blocking until a slot is free if the pool is
// already at capacity. It reuses an idle connection when one is queued,
// and otherwise dials a new one. A slot is consumed up front, mirroring
// the permit-forget/permit-add-back split in the pool this package is
// modeled on: it goes back to the semaphore on Release, or at once if the
// pool is closed or the dial fails.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return nil, storeerr.ErrPoolClosed
	}
	n := len(p.idle)
	var conn net.Conn
	if n > 0 {
		conn = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if conn == nil {
		dialCtx := ctx
		if p.dialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, p.dialTimeout)
			defer cancel()
		}
		c, err := p.dial(dialCtx, p.addr)
		if err != nil {
			<-p.sem // give the slot back; we never handed out a connection
			return nil, fmt.Errorf("pool: dialing %s: %w", p.addr, err)
		}
		conn = c
	}

	return &Conn{Conn: conn, pool: p}, nil
}

// release is called by Conn.Release. A broken connection is closed and its
// semaphore slot freed for a new dial; a healthy one is queued for reuse.
func (p *Pool) release(c *Conn) {
	if c.broken {
		_ = c.Conn.Close()
		<-p.sem
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = c.Conn.Close()
		<-p.sem
		return
	}
	p.idle = append(p.idle, c.Conn)
	p.mu.Unlock()
	<-p.sem
}

// Len reports the number of idle connections currently queued for reuse.
// It exists mainly for tests exercising pool bookkeeping.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close closes every idle connection currently queued and marks the pool
// closed: subsequent Get calls fail immediately with storeerr.ErrPoolClosed
// instead of blocking or dialing. In-flight connections checked out before
// Close was called are unaffected and will be closed when their holder
// calls Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var firstErr error
	for _, c := range p.idle {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.idle = nil
	return firstErr
}
