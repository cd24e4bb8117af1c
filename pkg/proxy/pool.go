package proxy

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

// BackendConn is one HTTP/1.1 connection to a backend. Between checkout and
// return it is exclusively owned by a single forwarding task; nothing else
// reads or writes the socket.
type BackendConn struct {
	backend string
	nc      net.Conn
	br      *bufio.Reader
	parked  time.Time
	reused  bool
}

// Reused reports whether the connection came from the idle pool rather than
// a fresh dial.
func (c *BackendConn) Reused() bool { return c.reused }

// Close discards the connection.
func (c *BackendConn) Close() error { return c.nc.Close() }

// Pool keeps idle backend connections keyed by backend address, with
// checkout/return ownership handoff. Checkout removes a connection from the
// pool entirely; two tasks can never hold the same socket.
type Pool struct {
	dialTimeout time.Duration
	idleTimeout time.Duration
	maxIdle     int

	mu     sync.Mutex
	idle   map[string][]*BackendConn
	closed bool

	stopReaper chan struct{}
	reaperOnce sync.Once
}

// NewPool creates a pool and starts its idle reaper.
func NewPool(cfg config.UpstreamConfig) *Pool {
	p := &Pool{
		dialTimeout: cfg.DialTimeout,
		idleTimeout: cfg.IdleTimeout,
		maxIdle:     cfg.MaxIdlePerBackend,
		idle:        make(map[string][]*BackendConn),
		stopReaper:  make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// Get checks out a connection to the backend: a parked idle connection when
// one exists, otherwise a fresh dial. The caller owns the result until it
// calls Put or Close.
func (p *Pool) Get(ctx context.Context, backend string) (*BackendConn, error) {
	if c := p.popIdle(backend); c != nil {
		c.reused = true
		return c, nil
	}
	return p.Dial(ctx, backend)
}

// Dial opens a fresh connection to the backend, bypassing the pool.
func (p *Pool) Dial(ctx context.Context, backend string) (*BackendConn, error) {
	d := net.Dialer{Timeout: p.dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", backend)
	if err != nil {
		return nil, err
	}
	return &BackendConn{
		backend: backend,
		nc:      nc,
		br:      bufio.NewReader(nc),
	}, nil
}

// Put returns a connection to the pool. The caller must have fully consumed
// the backend's response; a connection with unread response bytes must be
// closed instead. Over-cap and post-shutdown returns are discarded.
func (p *Pool) Put(c *BackendConn) {
	p.mu.Lock()
	if p.closed || len(p.idle[c.backend]) >= p.maxIdle {
		p.mu.Unlock()
		c.nc.Close()
		return
	}
	c.parked = time.Now()
	c.reused = false
	// Clear any deadline inherited from the previous request.
	c.nc.SetDeadline(time.Time{})
	p.idle[c.backend] = append(p.idle[c.backend], c)
	p.mu.Unlock()
}

// popIdle removes and returns the most recently parked live connection for
// the backend, discarding expired ones along the way.
func (p *Pool) popIdle(backend string) *BackendConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := p.idle[backend]
	for len(conns) > 0 {
		c := conns[len(conns)-1]
		conns = conns[:len(conns)-1]
		if time.Since(c.parked) > p.idleTimeout {
			c.nc.Close()
			continue
		}
		p.idle[backend] = conns
		return c
	}
	p.idle[backend] = conns
	return nil
}

// reapLoop closes idle connections past their timeout.
func (p *Pool) reapLoop() {
	interval := p.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.reap()
		case <-p.stopReaper:
			return
		}
	}
}

func (p *Pool) reap() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for backend, conns := range p.idle {
		live := conns[:0]
		for _, c := range conns {
			if time.Since(c.parked) > p.idleTimeout {
				c.nc.Close()
				continue
			}
			live = append(live, c)
		}
		if len(live) == 0 {
			delete(p.idle, backend)
		} else {
			p.idle[backend] = live
		}
	}
}

// IdleCount returns the number of parked connections for a backend.
func (p *Pool) IdleCount(backend string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[backend])
}

// Close discards all idle connections and stops the reaper. Checked-out
// connections are unaffected; their owners close them.
func (p *Pool) Close() {
	p.reaperOnce.Do(func() { close(p.stopReaper) })

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, conns := range p.idle {
		for _, c := range conns {
			c.nc.Close()
		}
	}
	p.idle = make(map[string][]*BackendConn)
}
