package perf

import (
	"context"
	"sync"
	"time"

	"github.com/cloud-shuttle/wsrpc/errs"
	"github.com/cloud-shuttle/wsrpc/transport"
)

// Factory constructs and connects a new transport for a URL.
type Factory func(ctx context.Context, url string) (transport.Transport, error)

type pooledConn struct {
	tr       transport.Transport
	url      string
	busy     bool
	idleSince time.Time
}

// ConnectionPool maintains up to MaxConnections transports keyed by URL.
// Plain mutex-guarded map plus an idle-timeout reaper goroutine — no
// generic transport-pool library appears in the retrieval pack outside
// database-specific pools, none of which fit a transport-agnostic pool of
// transport.Transport values (see DESIGN.md).
type ConnectionPool struct {
	factory        Factory
	maxConnections int
	idleTimeout    time.Duration

	mu    sync.Mutex
	byURL map[string][]*pooledConn
	total int

	stopCh chan struct{}
}

// NewConnectionPool builds a pool bounded at maxConnections total
// transports, reaping idle entries after idleTimeout. A non-positive
// idleTimeout disables reaping.
func NewConnectionPool(factory Factory, maxConnections int, idleTimeout time.Duration) *ConnectionPool {
	p := &ConnectionPool{
		factory:        factory,
		maxConnections: maxConnections,
		idleTimeout:    idleTimeout,
		byURL:          make(map[string][]*pooledConn),
		stopCh:         make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// Acquire returns an idle entry for url or constructs a new one. Returns
// PoolExhausted if the pool is at capacity and every entry is busy.
func (p *ConnectionPool) Acquire(ctx context.Context, url string) (transport.Transport, error) {
	p.mu.Lock()
	for _, pc := range p.byURL[url] {
		if !pc.busy {
			pc.busy = true
			p.mu.Unlock()
			return pc.tr, nil
		}
	}
	if p.total >= p.maxConnections {
		p.mu.Unlock()
		return nil, errs.NewResilienceError(errs.PoolExhausted)
	}
	p.total++
	p.mu.Unlock()

	tr, err := p.factory(ctx, url)
	if err != nil {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	p.byURL[url] = append(p.byURL[url], &pooledConn{tr: tr, url: url, busy: true})
	p.mu.Unlock()
	return tr, nil
}

// Release returns tr to the idle set for url.
func (p *ConnectionPool) Release(url string, tr transport.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pc := range p.byURL[url] {
		if pc.tr == tr {
			pc.busy = false
			pc.idleSince = time.Now()
			return
		}
	}
}

func (p *ConnectionPool) reapLoop() {
	interval := p.idleTimeout / 2
	if p.idleTimeout <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

func (p *ConnectionPool) reapOnce() {
	if p.idleTimeout <= 0 {
		return
	}
	now := time.Now()
	p.mu.Lock()
	for url, conns := range p.byURL {
		kept := conns[:0]
		for _, pc := range conns {
			if !pc.busy && now.Sub(pc.idleSince) > p.idleTimeout {
				_ = pc.tr.Disconnect(context.Background())
				p.total--
				continue
			}
			kept = append(kept, pc)
		}
		p.byURL[url] = kept
	}
	p.mu.Unlock()
}

// Close stops the reaper goroutine.
func (p *ConnectionPool) Close() { close(p.stopCh) }

// Size reports the current total number of pooled transports.
func (p *ConnectionPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
